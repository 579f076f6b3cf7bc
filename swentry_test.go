package mplsgos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func usableEntry() *SwitchingEntry {
	se := CreateSwitchingEntry()
	se.IncomingPort = 0
	se.LabelOrFEC = 1000
	se.OutgoingPort = 1
	se.OutgoingLabel = 17
	se.LabelStackOp = OpSwap
	se.LocalSessionID = 4
	se.TailEndIP = "10.0.0.9"
	return se
}

func TestSwitchingEntryDefaults(t *testing.T) {
	se := CreateSwitchingEntry()
	assert.Equal(t, Undefined, se.IncomingPort)
	assert.Equal(t, Undefined, se.OutgoingLabel)
	assert.Equal(t, OpUndefined, se.LabelStackOp)
	assert.Equal(t, LabelNone, se.LabelState)
	assert.Equal(t, DefaultTLDPTimeout, se.Timeout())
	assert.Equal(t, DefaultTLDPAttempts, se.Attempts())
	assert.False(t, se.IsUsable())
	assert.False(t, se.HasBackupLSP())
}

func TestSwitchingEntryUsable(t *testing.T) {
	assert.True(t, usableEntry().IsUsable())

	se := usableEntry()
	se.OutgoingLabel = Undefined
	assert.False(t, se.IsUsable(), "swap needs an outgoing label")

	se.LabelStackOp = OpPop
	assert.True(t, se.IsUsable(), "pop does not")

	se = usableEntry()
	se.TailEndIP = ""
	assert.False(t, se.IsUsable())

	se = usableEntry()
	se.LocalSessionID = Undefined
	assert.False(t, se.IsUsable())
}

func TestSwitchingEntryTimeoutOnlyAgesWhileWaiting(t *testing.T) {
	se := usableEntry()
	se.LabelState = LabelGranted
	se.DecreaseTimeout(DefaultTLDPTimeout)
	assert.Equal(t, DefaultTLDPTimeout, se.Timeout())

	se.LabelState = LabelRequested
	se.DecreaseTimeout(DefaultTLDPTimeout + 10)
	assert.Equal(t, int64(0), se.Timeout())
	assert.True(t, se.ShouldRetryExpiredTLDPRequest())
	assert.False(t, se.IsPurgeable())
}

func TestSwitchingEntryRetryBudget(t *testing.T) {
	se := usableEntry()
	se.LabelState = LabelRequested
	for i := DefaultTLDPAttempts; i > 0; i-- {
		se.DecreaseTimeout(DefaultTLDPTimeout)
		assert.True(t, se.ShouldRetryExpiredTLDPRequest())
		se.ResetTimeout()
		assert.Equal(t, DefaultTLDPTimeout, se.Timeout())
		assert.Equal(t, i-1, se.Attempts())
	}

	se.DecreaseTimeout(DefaultTLDPTimeout)
	assert.False(t, se.ShouldRetryExpiredTLDPRequest())
	assert.True(t, se.IsPurgeable())

	// without attempts the timeout is not restored
	se.ResetTimeout()
	assert.Equal(t, int64(0), se.Timeout())

	se.RestoreRetryBudget()
	assert.Equal(t, DefaultTLDPAttempts, se.Attempts())
	assert.False(t, se.IsPurgeable())
}

func TestSwitchingEntryBackupSwitchover(t *testing.T) {
	se := usableEntry()
	se.LabelState = LabelGranted
	assert.False(t, se.IsBackupLSPEstablished())

	se.BackupOutgoingPort = 2
	se.BackupLabelState = LabelRequested
	assert.True(t, se.HasBackupLSP())
	assert.False(t, se.IsBackupLSPEstablished())

	se.BackupLabelState = LabelGranted
	assert.False(t, se.IsBackupLSPEstablished(), "swap needs the backup label")
	se.BackupOutgoingLabel = 33
	assert.True(t, se.IsBackupLSPEstablished())

	se.SwitchToBackupLSP()
	assert.Equal(t, 2, se.OutgoingPort)
	assert.Equal(t, 33, se.OutgoingLabel)
	assert.Equal(t, LabelGranted, se.LabelState)
	assert.False(t, se.HasBackupLSP())
	assert.Equal(t, Undefined, se.BackupOutgoingLabel)
	assert.Equal(t, LabelNone, se.BackupLabelState)
}

func TestSwitchingEntryClearBackup(t *testing.T) {
	se := usableEntry()
	se.BackupOutgoingPort = 2
	se.BackupOutgoingLabel = 33
	se.BackupLabelState = LabelGranted
	se.ClearBackupLSP()
	assert.False(t, se.HasBackupLSP())
	assert.Equal(t, 1, se.OutgoingPort)
}

func TestSwitchingEntryStrings(t *testing.T) {
	assert.Equal(t, "SWAP", OpSwap.String())
	assert.Equal(t, "UNDEFINED", OpUndefined.String())
	assert.Equal(t, "FEC", FECEntry.String())
	assert.Equal(t, "LABEL", LabelEntry.String())
	assert.Equal(t, "granted", LabelGranted.String())
	assert.Contains(t, usableEntry().String(), "op SWAP")
}

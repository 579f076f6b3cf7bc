package mplsgos

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryFor(port, labelOrFEC int, kind EntryKind) *SwitchingEntry {
	se := CreateSwitchingEntry()
	se.IncomingPort = port
	se.LabelOrFEC = labelOrFEC
	se.Kind = kind
	return se
}

func TestSwitchingMatrixKeyIncludesKind(t *testing.T) {
	sm := CreateSwitchingMatrix()
	sm.Add(entryFor(1, 1000, LabelEntry))

	assert.True(t, sm.Exists(1, 1000, LabelEntry))
	assert.False(t, sm.Exists(1, 1000, FECEntry))
	assert.False(t, sm.Exists(2, 1000, LabelEntry))

	assert.False(t, sm.Remove(1, 1000, FECEntry))
	assert.True(t, sm.Remove(1, 1000, LabelEntry))
	assert.Equal(t, 0, sm.Count())
}

func TestSwitchingMatrixLookups(t *testing.T) {
	sm := CreateSwitchingMatrix()
	se := entryFor(0, FEC("10.0.0.9"), FECEntry)
	se.OutgoingPort = 3
	se.OutgoingLabel = 21
	se.LabelStackOp = OpPush
	se.LocalSessionID = 7
	se.UpstreamSessionID = 12
	sm.Add(se)

	assert.Equal(t, OpPush, sm.LabelStackOperation(0, FEC("10.0.0.9"), FECEntry))
	assert.Equal(t, 21, sm.OutgoingLabel(0, FEC("10.0.0.9"), FECEntry))
	assert.Equal(t, 3, sm.OutgoingPort(0, FEC("10.0.0.9"), FECEntry))

	assert.Equal(t, OpUndefined, sm.LabelStackOperation(0, 5, LabelEntry))
	assert.Equal(t, Undefined, sm.OutgoingLabel(0, 5, LabelEntry))
	assert.Equal(t, Undefined, sm.OutgoingPort(0, 5, LabelEntry))
	assert.Nil(t, sm.Get(0, 5, LabelEntry))

	assert.Same(t, se, sm.GetBySession(7))
	assert.Nil(t, sm.GetBySession(8))
	assert.Same(t, se, sm.GetByUpstreamSession(12, 0))
	assert.Nil(t, sm.GetByUpstreamSession(12, 1))

	assert.False(t, sm.RemoveBySession(7, 1))
	assert.True(t, sm.RemoveBySession(7, 0))
	assert.Equal(t, 0, sm.Count())
}

func TestSwitchingMatrixRemovesFirstMatchOnly(t *testing.T) {
	sm := CreateSwitchingMatrix()
	first := entryFor(1, 20, LabelEntry)
	second := entryFor(1, 20, LabelEntry)
	sm.Add(first)
	sm.Add(second)

	assert.Same(t, first, sm.Get(1, 20, LabelEntry))
	require.True(t, sm.Remove(1, 20, LabelEntry))
	assert.Same(t, second, sm.Get(1, 20, LabelEntry))
}

func TestSwitchingMatrixLabelAllocation(t *testing.T) {
	sm := CreateSwitchingMatrix()
	assert.Equal(t, MinLabel, sm.AllocateLabel())

	sm.Add(entryFor(0, MinLabel, LabelEntry))
	sm.Add(entryFor(0, MinLabel+2, LabelEntry))
	// a FEC equal to a label does not hold the label
	sm.Add(entryFor(0, MinLabel+1, FECEntry))

	assert.True(t, sm.IsLabelInUse(MinLabel))
	assert.False(t, sm.IsLabelInUse(MinLabel+1))
	assert.Equal(t, MinLabel+1, sm.AllocateLabel())
	assert.Equal(t, MinLabel+1, sm.AllocateLabel(), "allocation does not reserve")

	sm.Add(entryFor(1, MinLabel+1, LabelEntry))
	assert.Equal(t, MinLabel+3, sm.AllocateLabel())
}

func TestSwitchingMatrixLabelExhaustion(t *testing.T) {
	sm := CreateSwitchingMatrix()
	sm.maxLabel = MinLabel + 3
	for label := MinLabel; label <= sm.maxLabel; label++ {
		got := sm.AllocateLabel()
		require.Equal(t, label, got)
		sm.Add(entryFor(0, got, LabelEntry))
	}
	assert.Equal(t, LabelUnavailable, sm.AllocateLabel())

	sm.Remove(0, MinLabel+1, LabelEntry)
	assert.Equal(t, MinLabel+1, sm.AllocateLabel())
}

func TestSwitchingMatrixIterateAndReset(t *testing.T) {
	sm := CreateSwitchingMatrix()
	for label := 100; label < 105; label++ {
		sm.Add(entryFor(0, label, LabelEntry))
	}
	seen := []int{}
	sm.Iterate(func(se *SwitchingEntry) bool {
		seen = append(seen, se.LabelOrFEC)
		return se.LabelOrFEC < 102
	})
	assert.Equal(t, []int{100, 101, 102}, seen)

	entries := sm.Entries()
	require.Len(t, entries, 5)
	sm.Reset()
	assert.Equal(t, 0, sm.Count())
	assert.Len(t, entries, 5, "copies survive a reset")
}

func TestSwitchingMatrixConcurrentUse(t *testing.T) {
	sm := CreateSwitchingMatrix()
	var wg sync.WaitGroup
	for port := 0; port < 8; port++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			for label := 0; label < 50; label++ {
				sm.Add(entryFor(port, label, LabelEntry))
				sm.IsLabelInUse(label)
			}
			for label := 0; label < 50; label += 2 {
				sm.Remove(port, label, LabelEntry)
			}
		}(port)
	}
	wg.Wait()
	assert.Equal(t, 8*25, sm.Count())
}

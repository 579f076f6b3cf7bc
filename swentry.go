package mplsgos

// swentry.go holds one row of a node's switching matrix.  A row unifies the
// incoming-label-map, FEC-to-NHLFE and NHLFE roles of classic MPLS: it says
// where traffic for one flow comes in, where it goes out, and what happens
// to the label stack on the way.  It also carries the TLDP session state for
// the label that was (or is being) negotiated with the downstream neighbour.

import (
	"fmt"
)

// Undefined marks an integer field that has not been set
const Undefined = -1

// Default TLDP retry budgets for a switching entry
const (
	DefaultTLDPTimeout  int64 = 50000 // simulated ns
	DefaultTLDPAttempts int   = 3
)

// EntryKind tells whether the key of an entry is an incoming label or a FEC
type EntryKind int

const (
	LabelEntry EntryKind = iota
	FECEntry
)

func (ek EntryKind) String() string {
	if ek == FECEntry {
		return "FEC"
	}
	return "LABEL"
}

// LabelStackOp is what a node does to the label stack of a switched packet
type LabelStackOp int

const (
	OpUndefined LabelStackOp = iota - 1
	OpPush
	OpPop
	OpSwap
	OpNoop
)

var lsOpToStr = map[LabelStackOp]string{OpUndefined: "UNDEFINED", OpPush: "PUSH", OpPop: "POP", OpSwap: "SWAP", OpNoop: "NOOP"}

func (op LabelStackOp) String() string {
	return lsOpToStr[op]
}

// needsLabel is true for the operations that write an outgoing label
func (op LabelStackOp) needsLabel() bool {
	return op == OpPush || op == OpSwap
}

// LabelState follows the TLDP negotiation of an outgoing label
type LabelState int

const (
	LabelNone      LabelState = iota // nothing negotiated yet
	LabelRequested                   // request sent, waiting for the answer
	LabelGranted                     // downstream neighbour gave a label
	LabelRemoving                    // withdraw sent, waiting for the acknowledgement
	LabelWithdrawn                   // torn down
	LabelDenied                      // downstream neighbour refused
)

var lsToStr = map[LabelState]string{LabelNone: "none", LabelRequested: "requested", LabelGranted: "granted",
	LabelRemoving: "removing", LabelWithdrawn: "withdrawn", LabelDenied: "denied"}

func (ls LabelState) String() string {
	return lsToStr[ls]
}

// SwitchingEntry describes how one unidirectional flow crosses a node
type SwitchingEntry struct {
	IncomingPort int       // port the flow arrives on
	LabelOrFEC   int       // incoming label, or FEC when Kind is FECEntry
	Kind         EntryKind // how LabelOrFEC is to be read

	OutgoingPort        int // primary outgoing port
	BackupOutgoingPort  int // outgoing port of the protection path, Undefined if none
	OutgoingLabel       int // label written on the primary path
	BackupOutgoingLabel int // label written on the protection path

	LabelState       LabelState // negotiation of OutgoingLabel
	BackupLabelState LabelState // negotiation of BackupOutgoingLabel

	LabelStackOp LabelStackOp
	TailEndIP    string // final destination of the flow

	LocalSessionID    int // TLDP session this node opened downstream
	UpstreamSessionID int // TLDP session the upstream neighbour opened towards us, Undefined at ingress

	BackupEntry bool // the entry is itself part of a protection path

	timeout  int64
	attempts int
	protect  bool // ingress entry whose flow asked for a backup LSP
}

// CreateSwitchingEntry is a constructor; every field starts undefined
func CreateSwitchingEntry() *SwitchingEntry {
	se := new(SwitchingEntry)
	se.IncomingPort = Undefined
	se.LabelOrFEC = Undefined
	se.Kind = LabelEntry
	se.OutgoingPort = Undefined
	se.BackupOutgoingPort = Undefined
	se.OutgoingLabel = Undefined
	se.BackupOutgoingLabel = Undefined
	se.LabelState = LabelNone
	se.BackupLabelState = LabelNone
	se.LabelStackOp = OpUndefined
	se.LocalSessionID = Undefined
	se.UpstreamSessionID = Undefined
	se.timeout = DefaultTLDPTimeout
	se.attempts = DefaultTLDPAttempts
	return se
}

// IsUsable reports whether packets can be switched with this entry
func (se *SwitchingEntry) IsUsable() bool {
	if se.IncomingPort == Undefined || se.LabelOrFEC == Undefined || se.OutgoingPort == Undefined {
		return false
	}
	if se.LocalSessionID == Undefined || se.TailEndIP == "" {
		return false
	}
	if se.LabelStackOp.needsLabel() && se.OutgoingLabel == Undefined {
		return false
	}
	return true
}

// Timeout is what is left of the current TLDP timeout
func (se *SwitchingEntry) Timeout() int64 { return se.timeout }

// Attempts is what is left of the TLDP retry budget
func (se *SwitchingEntry) Attempts() int { return se.attempts }

// awaitingAnswer is true while a request or a withdraw is outstanding
func (se *SwitchingEntry) awaitingAnswer() bool {
	return se.LabelState == LabelRequested || se.LabelState == LabelRemoving ||
		se.BackupLabelState == LabelRequested
}

// DecreaseTimeout takes elapsed simulated ns off the timeout, which never goes below zero.
// Only outstanding negotiations age
func (se *SwitchingEntry) DecreaseTimeout(ns int64) {
	if !se.awaitingAnswer() {
		return
	}
	se.timeout -= ns
	if se.timeout < 0 {
		se.timeout = 0
	}
}

// ResetTimeout restores a full timeout if attempts remain, consuming one
func (se *SwitchingEntry) ResetTimeout() {
	if se.attempts > 0 {
		se.timeout = DefaultTLDPTimeout
		se.attempts -= 1
	}
}

// RestoreRetryBudget puts timeout and attempts back to their defaults, used when a
// new negotiation starts on an existing entry
func (se *SwitchingEntry) RestoreRetryBudget() {
	se.timeout = DefaultTLDPTimeout
	se.attempts = DefaultTLDPAttempts
}

// ShouldRetryExpiredTLDPRequest is true when an outstanding negotiation timed out
// and the owner still has attempts left to resend it
func (se *SwitchingEntry) ShouldRetryExpiredTLDPRequest() bool {
	return se.awaitingAnswer() && se.timeout == 0 && se.attempts > 0
}

// IsPurgeable is true when an outstanding negotiation timed out with no attempts left
func (se *SwitchingEntry) IsPurgeable() bool {
	return se.awaitingAnswer() && se.timeout == 0 && se.attempts == 0
}

// HasBackupLSP tells whether a protection path has been set up or is being set up
func (se *SwitchingEntry) HasBackupLSP() bool {
	return se.BackupOutgoingPort != Undefined
}

// IsBackupLSPEstablished tells whether traffic can be moved to the protection path
func (se *SwitchingEntry) IsBackupLSPEstablished() bool {
	if se.BackupOutgoingPort == Undefined || se.BackupLabelState != LabelGranted {
		return false
	}
	return !se.LabelStackOp.needsLabel() || se.BackupOutgoingLabel != Undefined
}

// SwitchToBackupLSP promotes the protection path to primary and clears the backup fields
func (se *SwitchingEntry) SwitchToBackupLSP() {
	se.OutgoingPort = se.BackupOutgoingPort
	se.OutgoingLabel = se.BackupOutgoingLabel
	se.LabelState = se.BackupLabelState
	se.BackupOutgoingPort = Undefined
	se.BackupOutgoingLabel = Undefined
	se.BackupLabelState = LabelNone
}

// ClearBackupLSP forgets the protection path
func (se *SwitchingEntry) ClearBackupLSP() {
	se.BackupOutgoingPort = Undefined
	se.BackupOutgoingLabel = Undefined
	se.BackupLabelState = LabelNone
}

func (se *SwitchingEntry) matchKey(port, labelOrFEC int, kind EntryKind) bool {
	return se.IncomingPort == port && se.LabelOrFEC == labelOrFEC && se.Kind == kind
}

func (se *SwitchingEntry) String() string {
	return fmt.Sprintf("[in %d %s %d] -> [out %d label %d %s] op %s session %d/%d to %s",
		se.IncomingPort, se.Kind, se.LabelOrFEC, se.OutgoingPort, se.OutgoingLabel, se.LabelState,
		se.LabelStackOp, se.LocalSessionID, se.UpstreamSessionID, se.TailEndIP)
}

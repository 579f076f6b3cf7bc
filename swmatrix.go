package mplsgos

// swmatrix.go holds the switching matrix of a node: the collection of
// SwitchingEntry rows, looked up by (incoming port, label or FEC, kind) or by
// TLDP session.  The owning node's packet processing and signalling both reach
// into the matrix, so every call holds the matrix lock for its whole duration.
// Tables in a simulated router are small, lookups are linear scans.

import (
	"sync"
)

// 20-bit label space.  0..15 are reserved and never allocated
const (
	MinLabel = 16
	MaxLabel = 1<<20 - 1
)

// LabelUnavailable is returned by AllocateLabel once every usable label is in use
const LabelUnavailable = -2

// SwitchingMatrix is owned by exactly one node
type SwitchingMatrix struct {
	mu       sync.Mutex
	entries  []*SwitchingEntry // insertion order
	maxLabel int               // top of the allocatable range
}

// CreateSwitchingMatrix is a constructor
func CreateSwitchingMatrix() *SwitchingMatrix {
	sm := new(SwitchingMatrix)
	sm.entries = []*SwitchingEntry{}
	sm.maxLabel = MaxLabel
	return sm
}

// Add appends an entry.  Replacing a flow's entry means calling Remove first
func (sm *SwitchingMatrix) Add(se *SwitchingEntry) {
	sm.mu.Lock()
	sm.entries = append(sm.entries, se)
	sm.mu.Unlock()
}

// Remove deletes the first entry with the given key, reporting whether there was one
func (sm *SwitchingMatrix) Remove(port, labelOrFEC int, kind EntryKind) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for idx, se := range sm.entries {
		if se.matchKey(port, labelOrFEC, kind) {
			sm.entries = append(sm.entries[:idx], sm.entries[idx+1:]...)
			return true
		}
	}
	return false
}

// RemoveBySession deletes the first entry opened with the given local session on the given incoming port
func (sm *SwitchingMatrix) RemoveBySession(localSessionID, port int) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for idx, se := range sm.entries {
		if se.LocalSessionID == localSessionID && se.IncomingPort == port {
			sm.entries = append(sm.entries[:idx], sm.entries[idx+1:]...)
			return true
		}
	}
	return false
}

// Get finds the entry with the given key, nil if there is none
func (sm *SwitchingMatrix) Get(port, labelOrFEC int, kind EntryKind) *SwitchingEntry {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.getLocked(port, labelOrFEC, kind)
}

func (sm *SwitchingMatrix) getLocked(port, labelOrFEC int, kind EntryKind) *SwitchingEntry {
	for _, se := range sm.entries {
		if se.matchKey(port, labelOrFEC, kind) {
			return se
		}
	}
	return nil
}

// GetBySession finds the entry whose local TLDP session is the one given
func (sm *SwitchingMatrix) GetBySession(localSessionID int) *SwitchingEntry {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, se := range sm.entries {
		if se.LocalSessionID == localSessionID {
			return se
		}
	}
	return nil
}

// GetByUpstreamSession finds the entry opened by the upstream session arriving on port
func (sm *SwitchingMatrix) GetByUpstreamSession(upstreamSessionID, port int) *SwitchingEntry {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, se := range sm.entries {
		if se.UpstreamSessionID == upstreamSessionID && se.IncomingPort == port {
			return se
		}
	}
	return nil
}

// Exists tells whether an entry with the given key is present
func (sm *SwitchingMatrix) Exists(port, labelOrFEC int, kind EntryKind) bool {
	return sm.Get(port, labelOrFEC, kind) != nil
}

// LabelStackOperation returns the operation for the key, OpUndefined on a miss
func (sm *SwitchingMatrix) LabelStackOperation(port, labelOrFEC int, kind EntryKind) LabelStackOp {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	se := sm.getLocked(port, labelOrFEC, kind)
	if se == nil {
		return OpUndefined
	}
	return se.LabelStackOp
}

// OutgoingLabel returns the outgoing label for the key, Undefined on a miss
func (sm *SwitchingMatrix) OutgoingLabel(port, labelOrFEC int, kind EntryKind) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	se := sm.getLocked(port, labelOrFEC, kind)
	if se == nil {
		return Undefined
	}
	return se.OutgoingLabel
}

// OutgoingPort returns the outgoing port for the key, Undefined on a miss
func (sm *SwitchingMatrix) OutgoingPort(port, labelOrFEC int, kind EntryKind) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	se := sm.getLocked(port, labelOrFEC, kind)
	if se == nil {
		return Undefined
	}
	return se.OutgoingPort
}

// IsLabelInUse tells whether some LABEL entry is keyed on label.  Labels are
// allocated by a node for traffic it receives, so only incoming labels count
func (sm *SwitchingMatrix) IsLabelInUse(label int) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, se := range sm.entries {
		if se.Kind == LabelEntry && se.LabelOrFEC == label {
			return true
		}
	}
	return false
}

// AllocateLabel returns the lowest label in [MinLabel, MaxLabel] not in use, or
// LabelUnavailable.  The label is not reserved: the caller adds an entry keyed on it
func (sm *SwitchingMatrix) AllocateLabel() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	inUse := make(map[int]bool, len(sm.entries))
	for _, se := range sm.entries {
		if se.Kind == LabelEntry {
			inUse[se.LabelOrFEC] = true
		}
	}
	for label := MinLabel; label <= sm.maxLabel; label++ {
		if !inUse[label] {
			return label
		}
	}
	return LabelUnavailable
}

// Count is the number of entries
func (sm *SwitchingMatrix) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.entries)
}

// Iterate calls visit on each entry in insertion order, under the lock, until visit returns false.
// visit must not call back into the matrix
func (sm *SwitchingMatrix) Iterate(visit func(se *SwitchingEntry) bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, se := range sm.entries {
		if !visit(se) {
			return
		}
	}
}

// Entries returns a copy of the entry list, in insertion order
func (sm *SwitchingMatrix) Entries() []*SwitchingEntry {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	rtn := make([]*SwitchingEntry, len(sm.entries))
	copy(rtn, sm.entries)
	return rtn
}

// Reset removes every entry
func (sm *SwitchingMatrix) Reset() {
	sm.mu.Lock()
	sm.entries = []*SwitchingEntry{}
	sm.mu.Unlock()
}

package mplsgos

// gpsrp.go holds the state an active node keeps for each packet it asked to
// have retransmitted.  A request is tried at the upstream active nodes that
// the lost packet crossed, most recent first, each one for at most one timeout,
// until one of them has a copy or the budget of attempts runs out.

import (
	"sync"

	"golang.org/x/exp/slices"
)

// Default GPSRP budgets
const (
	DefaultGPSRPTimeout  int64 = 50000 // simulated ns
	DefaultGPSRPAttempts int   = 8
)

// GPSRPRequestEntry is one outstanding retransmission request
type GPSRPRequestEntry struct {
	order        int // arrival order, the sort key
	flowID       int
	packetID     int
	outgoingPort int
	timeout      int64
	attempts     int
	crossedNodes []string // remaining candidates, next one first

	// header of the lost packet, re-applied to the recovered copy
	inPort int
	labels []int
}

// CreateGPSRPRequestEntry is a constructor
func CreateGPSRPRequestEntry(order int) *GPSRPRequestEntry {
	gre := new(GPSRPRequestEntry)
	gre.order = order
	gre.flowID = Undefined
	gre.packetID = Undefined
	gre.outgoingPort = Undefined
	gre.inPort = Undefined
	gre.timeout = DefaultGPSRPTimeout
	gre.attempts = DefaultGPSRPAttempts
	gre.crossedNodes = []string{}
	return gre
}

func (gre *GPSRPRequestEntry) Order() int        { return gre.order }
func (gre *GPSRPRequestEntry) FlowID() int       { return gre.flowID }
func (gre *GPSRPRequestEntry) PacketID() int     { return gre.packetID }
func (gre *GPSRPRequestEntry) OutgoingPort() int { return gre.outgoingPort }
func (gre *GPSRPRequestEntry) Timeout() int64    { return gre.timeout }
func (gre *GPSRPRequestEntry) Attempts() int     { return gre.attempts }

func (gre *GPSRPRequestEntry) SetFlowID(flowID int)     { gre.flowID = flowID }
func (gre *GPSRPRequestEntry) SetPacketID(packetID int) { gre.packetID = packetID }
func (gre *GPSRPRequestEntry) SetOutgoingPort(port int) { gre.outgoingPort = port }

// SetAttempts replaces the attempt budget
func (gre *GPSRPRequestEntry) SetAttempts(attempts int) {
	if attempts < 0 {
		attempts = 0
	}
	gre.attempts = attempts
}

// PushCandidateNode puts ip in front of the remaining candidates, it is tried next
func (gre *GPSRPRequestEntry) PushCandidateNode(ip string) {
	gre.crossedNodes = slices.Insert(gre.crossedNodes, 0, ip)
}

// PopNextCandidateNode removes and returns the next candidate; ok is false once none remain
func (gre *GPSRPRequestEntry) PopNextCandidateNode() (ip string, ok bool) {
	if len(gre.crossedNodes) == 0 {
		return "", false
	}
	ip = gre.crossedNodes[0]
	gre.crossedNodes = gre.crossedNodes[1:]
	return ip, true
}

// CandidatesLeft is the number of candidates not yet tried
func (gre *GPSRPRequestEntry) CandidatesLeft() int {
	return len(gre.crossedNodes)
}

// DecreaseTimeout takes ns off the timeout, clamping at zero
func (gre *GPSRPRequestEntry) DecreaseTimeout(ns int64) {
	gre.timeout -= ns
	if gre.timeout < 0 {
		gre.timeout = 0
	}
}

// ResetTimeout restores the timeout if attempts remain, consuming one
func (gre *GPSRPRequestEntry) ResetTimeout() {
	if gre.attempts > 0 {
		gre.timeout = DefaultGPSRPTimeout
		gre.attempts -= 1
	}
}

// ForceTimeoutReset restores the timeout and consumes an attempt whatever the
// timeout was, as happens when a candidate answers it cannot help.  With no
// attempts left both counters go to zero
func (gre *GPSRPRequestEntry) ForceTimeoutReset() {
	gre.attempts -= 1
	gre.timeout = DefaultGPSRPTimeout
	if gre.attempts <= 0 {
		gre.attempts = 0
		gre.timeout = 0
	}
}

// IsRetryable tells the owner to resend the request to the next candidate now
func (gre *GPSRPRequestEntry) IsRetryable() bool {
	return gre.attempts > 0 && gre.timeout == 0 && len(gre.crossedNodes) > 0
}

// IsPurgeable tells the owner to give up on the request
func (gre *GPSRPRequestEntry) IsPurgeable() bool {
	if len(gre.crossedNodes) == 0 {
		return true
	}
	return gre.attempts == 0 && gre.timeout == 0
}

// GPSRPRequests is the per-node collection of outstanding requests, kept in arrival order
type GPSRPRequests struct {
	mu      sync.Mutex
	entries []*GPSRPRequestEntry
	order   int
}

// CreateGPSRPRequests is a constructor
func CreateGPSRPRequests() *GPSRPRequests {
	grs := new(GPSRPRequests)
	grs.entries = []*GPSRPRequestEntry{}
	return grs
}

// AddEntry opens a request for lost packet p, which came in on inPort.  The
// active nodes p crossed become the candidates, the last crossed one first.
// The caller pops the first candidate and sets the outgoing port
func (grs *GPSRPRequests) AddEntry(p *Packet, inPort int) *GPSRPRequestEntry {
	grs.mu.Lock()
	defer grs.mu.Unlock()
	grs.order += 1
	gre := CreateGPSRPRequestEntry(grs.order)
	gre.SetFlowID(p.FlowID)
	gre.SetPacketID(p.GoSID)
	gre.inPort = inPort
	gre.labels = slices.Clone(p.Labels)
	for _, ip := range p.CrossedActiveNodes {
		gre.PushCandidateNode(ip)
	}
	grs.entries = append(grs.entries, gre)
	return gre
}

// Get finds the request for (flowID, packetID), nil if there is none
func (grs *GPSRPRequests) Get(flowID, packetID int) *GPSRPRequestEntry {
	grs.mu.Lock()
	defer grs.mu.Unlock()
	for _, gre := range grs.entries {
		if gre.flowID == flowID && gre.packetID == packetID {
			return gre
		}
	}
	return nil
}

// Remove drops the request for (flowID, packetID)
func (grs *GPSRPRequests) Remove(flowID, packetID int) {
	grs.mu.Lock()
	defer grs.mu.Unlock()
	grs.entries = slices.DeleteFunc(grs.entries, func(gre *GPSRPRequestEntry) bool {
		return gre.flowID == flowID && gre.packetID == packetID
	})
}

// DecreaseTimeouts ages every request by ns
func (grs *GPSRPRequests) DecreaseTimeouts(ns int64) {
	grs.mu.Lock()
	defer grs.mu.Unlock()
	for _, gre := range grs.entries {
		gre.DecreaseTimeout(ns)
	}
}

// Retryable lists the requests to resend this tick, in arrival order
func (grs *GPSRPRequests) Retryable() []*GPSRPRequestEntry {
	grs.mu.Lock()
	defer grs.mu.Unlock()
	rtn := []*GPSRPRequestEntry{}
	for _, gre := range grs.entries {
		if gre.IsRetryable() {
			rtn = append(rtn, gre)
		}
	}
	return rtn
}

// Purge drops the requests that have given up and returns how many there were
func (grs *GPSRPRequests) Purge() int {
	grs.mu.Lock()
	defer grs.mu.Unlock()
	before := len(grs.entries)
	grs.entries = slices.DeleteFunc(grs.entries, func(gre *GPSRPRequestEntry) bool { return gre.IsPurgeable() })
	return before - len(grs.entries)
}

// Count is the number of outstanding requests
func (grs *GPSRPRequests) Count() int {
	grs.mu.Lock()
	defer grs.mu.Unlock()
	return len(grs.entries)
}

// Reset drops every request
func (grs *GPSRPRequests) Reset() {
	grs.mu.Lock()
	grs.entries = []*GPSRPRequestEntry{}
	grs.order = 0
	grs.mu.Unlock()
}

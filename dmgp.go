package mplsgos

// dmgp.go holds the guaranteed memory an active node sets aside, per flow, for
// packets it may later be asked to retransmit.  Each flow gets a fixed budget of
// octets; when a new packet does not fit the oldest packets of that flow are
// evicted to make room.  A packet that cannot be placed is silently not stored:
// the guarantee is on space, not on delivery.

import (
	"sync"

	"golang.org/x/exp/slices"
)

// DMGP reservation by GoS level, as a percentage of the node's DMGP capacity
var gosPercentage = map[int]int{0: 0, 1: 5, 2: 10, 3: 15}

// dmgpPacket wraps a stored packet with its own insertion order
type dmgpPacket struct {
	order  int
	packet *Packet
}

// DMGPFlowEntry is one flow's reservation
type DMGPFlowEntry struct {
	mu sync.Mutex

	order              int // arrival order of the flow, the sort key
	flowID             int
	assignedPercentage int
	assignedOctets     int
	usedOctets         int
	entries            []dmgpPacket // oldest first
	nextPacketOrder    int
}

// CreateDMGPFlowEntry is a constructor
func CreateDMGPFlowEntry(order int) *DMGPFlowEntry {
	fe := new(DMGPFlowEntry)
	fe.order = order
	fe.flowID = Undefined
	fe.entries = []dmgpPacket{}
	return fe
}

func (fe *DMGPFlowEntry) Order() int { return fe.order }

func (fe *DMGPFlowEntry) FlowID() int {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.flowID
}

func (fe *DMGPFlowEntry) AssignedPercentage() int {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.assignedPercentage
}

func (fe *DMGPFlowEntry) AssignedOctets() int {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.assignedOctets
}

func (fe *DMGPFlowEntry) UsedOctets() int {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.usedOctets
}

func (fe *DMGPFlowEntry) SetFlowID(flowID int) {
	fe.mu.Lock()
	fe.flowID = flowID
	fe.mu.Unlock()
}

func (fe *DMGPFlowEntry) SetAssignedPercentage(pct int) {
	fe.mu.Lock()
	fe.assignedPercentage = pct
	fe.mu.Unlock()
}

// SetAssignedOctets sets the budget.  The owning node derives it from the percentage
func (fe *DMGPFlowEntry) SetAssignedOctets(octets int) {
	fe.mu.Lock()
	fe.assignedOctets = octets
	fe.mu.Unlock()
}

func (fe *DMGPFlowEntry) SetUsedOctets(octets int) {
	fe.mu.Lock()
	fe.usedOctets = octets
	fe.mu.Unlock()
}

// AddPacket stores p if it fits, otherwise evicts oldest packets first when the
// space in use could cover p, otherwise drops p.  Eviction is only tried when
// usedOctets >= size, so a packet larger than everything stored is dropped even
// if the free space plus the evictable space would have been enough.
// It returns the number of packets evicted and whether p was stored
func (fe *DMGPFlowEntry) AddPacket(p *Packet) (evicted int, stored bool) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	size := p.Size()
	if fe.assignedOctets-fe.usedOctets >= size {
		fe.appendLocked(p, size)
		return 0, true
	}
	if fe.usedOctets >= size {
		for fe.assignedOctets-fe.usedOctets < size && len(fe.entries) > 0 {
			oldest := fe.entries[0]
			fe.entries = fe.entries[1:]
			fe.usedOctets -= oldest.packet.Size()
			evicted += 1
		}
		if fe.assignedOctets-fe.usedOctets < size {
			return evicted, false
		}
		fe.appendLocked(p, size)
		return evicted, true
	}
	return 0, false
}

func (fe *DMGPFlowEntry) appendLocked(p *Packet, size int) {
	fe.nextPacketOrder += 1
	fe.entries = append(fe.entries, dmgpPacket{order: fe.nextPacketOrder, packet: p})
	fe.usedOctets += size
}

// Entries returns the stored packets, oldest first
func (fe *DMGPFlowEntry) Entries() []*Packet {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	rtn := make([]*Packet, 0, len(fe.entries))
	for _, dp := range fe.entries {
		rtn = append(rtn, dp.packet)
	}
	return rtn
}

// GetPacket returns a copy of the stored packet with the given GoS sequence number
func (fe *DMGPFlowEntry) GetPacket(gosID int) *Packet {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	for _, dp := range fe.entries {
		if dp.packet.GoSID == gosID {
			return dp.packet.Clone()
		}
	}
	return nil
}

// Reset empties the buffer, keeping the reservation
func (fe *DMGPFlowEntry) Reset() {
	fe.mu.Lock()
	fe.entries = []dmgpPacket{}
	fe.usedOctets = 0
	fe.nextPacketOrder = 0
	fe.mu.Unlock()
}

// DMGP is the guaranteed memory of one active node, split among flows
type DMGP struct {
	mu            sync.Mutex
	capacity      int // octets
	flows         []*DMGPFlowEntry
	assignedTotal int // percentage handed out so far
	order         int
}

// CreateDMGP is a constructor.  capacity is in octets
func CreateDMGP(capacity int) *DMGP {
	dmgp := new(DMGP)
	dmgp.capacity = capacity
	dmgp.flows = []*DMGPFlowEntry{}
	return dmgp
}

// Capacity is the size of the store, in octets
func (dmgp *DMGP) Capacity() int { return dmgp.capacity }

// Flow returns the reservation of flowID, nil if there is none
func (dmgp *DMGP) Flow(flowID int) *DMGPFlowEntry {
	dmgp.mu.Lock()
	defer dmgp.mu.Unlock()
	return dmgp.flowLocked(flowID)
}

func (dmgp *DMGP) flowLocked(flowID int) *DMGPFlowEntry {
	idx := slices.IndexFunc(dmgp.flows, func(fe *DMGPFlowEntry) bool { return fe.FlowID() == flowID })
	if idx == -1 {
		return nil
	}
	return dmgp.flows[idx]
}

// provision creates the reservation of a flow, giving it the percentage its
// GoS level asks for or whatever is left unassigned if that is less
func (dmgp *DMGP) provisionLocked(flowID, gosLevel int) *DMGPFlowEntry {
	pct := gosPercentage[min(max(gosLevel, 0), maxGoSLevel)]
	if pct > 100-dmgp.assignedTotal {
		pct = 100 - dmgp.assignedTotal
	}
	dmgp.assignedTotal += pct
	dmgp.order += 1
	fe := CreateDMGPFlowEntry(dmgp.order)
	fe.SetFlowID(flowID)
	fe.SetAssignedPercentage(pct)
	fe.SetAssignedOctets(dmgp.capacity * pct / 100)
	dmgp.flows = append(dmgp.flows, fe)
	return fe
}

// AddPacket stores a copy of p in its flow's reservation, provisioning the flow on first sight
func (dmgp *DMGP) AddPacket(p *Packet) (evicted int, stored bool) {
	dmgp.mu.Lock()
	fe := dmgp.flowLocked(p.FlowID)
	if fe == nil {
		fe = dmgp.provisionLocked(p.FlowID, p.GoSLevel)
	}
	dmgp.mu.Unlock()
	return fe.AddPacket(p.Clone())
}

// GetPacket looks for a stored copy of packet gosID of flow flowID
func (dmgp *DMGP) GetPacket(flowID, gosID int) *Packet {
	fe := dmgp.Flow(flowID)
	if fe == nil {
		return nil
	}
	return fe.GetPacket(gosID)
}

// Flows returns the reservations in arrival order
func (dmgp *DMGP) Flows() []*DMGPFlowEntry {
	dmgp.mu.Lock()
	defer dmgp.mu.Unlock()
	return slices.Clone(dmgp.flows)
}

// Reset forgets every reservation
func (dmgp *DMGP) Reset() {
	dmgp.mu.Lock()
	dmgp.flows = []*DMGPFlowEntry{}
	dmgp.assignedTotal = 0
	dmgp.order = 0
	dmgp.mu.Unlock()
}

package mplsgos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gosPacket is a packet of Size() == size
func gosPacket(flowID, gosID, size int) *Packet {
	return &Packet{Type: IPv4Packet, FlowID: flowID, GoSID: gosID, GoSLevel: 1, Payload: size - ipv4HeaderLen}
}

func flowEntry(assigned int) *DMGPFlowEntry {
	fe := CreateDMGPFlowEntry(1)
	fe.SetFlowID(1)
	fe.SetAssignedOctets(assigned)
	return fe
}

func storedIDs(fe *DMGPFlowEntry) []int {
	ids := []int{}
	for _, p := range fe.Entries() {
		ids = append(ids, p.GoSID)
	}
	return ids
}

func TestDMGPFlowEntryFits(t *testing.T) {
	fe := flowEntry(300)
	for id := 1; id <= 3; id++ {
		evicted, stored := fe.AddPacket(gosPacket(1, id, 100))
		assert.Equal(t, 0, evicted)
		assert.True(t, stored)
	}
	assert.Equal(t, 300, fe.UsedOctets())
	assert.Equal(t, []int{1, 2, 3}, storedIDs(fe))
}

func TestDMGPFlowEntryEvictsOldestFirst(t *testing.T) {
	fe := flowEntry(300)
	for id := 1; id <= 3; id++ {
		fe.AddPacket(gosPacket(1, id, 100))
	}
	evicted, stored := fe.AddPacket(gosPacket(1, 4, 150))
	assert.True(t, stored)
	assert.Equal(t, 2, evicted)
	assert.Equal(t, []int{3, 4}, storedIDs(fe))
	assert.Equal(t, 250, fe.UsedOctets())
	assert.LessOrEqual(t, fe.UsedOctets(), fe.AssignedOctets())
}

func TestDMGPFlowEntryRejectsWhenUsedIsSmallerThanPacket(t *testing.T) {
	fe := flowEntry(300)
	fe.AddPacket(gosPacket(1, 1, 100))

	// 200 free plus 100 evictable would fit, but eviction needs used >= size
	evicted, stored := fe.AddPacket(gosPacket(1, 2, 250))
	assert.False(t, stored)
	assert.Equal(t, 0, evicted)
	assert.Equal(t, []int{1}, storedIDs(fe))
	assert.Equal(t, 100, fe.UsedOctets())
}

func TestDMGPFlowEntryNeverExceedsBudget(t *testing.T) {
	fe := flowEntry(300)
	fe.SetUsedOctets(500)

	// nothing left to evict, so the packet cannot be made to fit
	evicted, stored := fe.AddPacket(gosPacket(1, 1, 100))
	assert.False(t, stored)
	assert.Equal(t, 0, evicted)
	assert.Empty(t, fe.Entries())
	assert.Equal(t, 500, fe.UsedOctets())
}

func TestDMGPFlowEntryZeroBudget(t *testing.T) {
	fe := flowEntry(0)
	_, stored := fe.AddPacket(gosPacket(1, 1, 100))
	assert.False(t, stored)
	assert.Empty(t, fe.Entries())
}

func TestDMGPFlowEntryGetAndReset(t *testing.T) {
	fe := flowEntry(1000)
	fe.AddPacket(gosPacket(1, 5, 100))
	cp := fe.GetPacket(5)
	require.NotNil(t, cp)
	cp.Payload = 1
	assert.Equal(t, 80, fe.GetPacket(5).Payload, "a copy is handed out")
	assert.Nil(t, fe.GetPacket(6))

	fe.Reset()
	assert.Equal(t, 0, fe.UsedOctets())
	assert.Equal(t, 1000, fe.AssignedOctets())
	assert.Nil(t, fe.GetPacket(5))
}

func TestDMGPProvisionsByGoSLevel(t *testing.T) {
	dmgp := CreateDMGP(10000)
	for flowID, level := range []int{1, 2, 3} {
		p := gosPacket(flowID, 1, 100)
		p.GoSLevel = level
		_, stored := dmgp.AddPacket(p)
		assert.True(t, stored)
	}
	flows := dmgp.Flows()
	require.Len(t, flows, 3)
	assert.Equal(t, []int{5, 10, 15}, []int{flows[0].AssignedPercentage(), flows[1].AssignedPercentage(), flows[2].AssignedPercentage()})
	assert.Equal(t, 500, flows[0].AssignedOctets())
	assert.Equal(t, 1500, flows[2].AssignedOctets())
	assert.Equal(t, []int{1, 2, 3}, []int{flows[0].Order(), flows[1].Order(), flows[2].Order()})
}

func TestDMGPProvisionCapsAtCapacity(t *testing.T) {
	dmgp := CreateDMGP(1000)
	for flowID := 0; flowID < 8; flowID++ {
		p := gosPacket(flowID, 1, 10)
		p.GoSLevel = 3
		dmgp.AddPacket(p)
	}
	total := 0
	for _, fe := range dmgp.Flows() {
		total += fe.AssignedPercentage()
	}
	assert.Equal(t, 100, total)
	assert.Equal(t, 10, dmgp.Flow(6).AssignedPercentage())
	assert.Equal(t, 0, dmgp.Flow(7).AssignedPercentage())
}

func TestDMGPStoresCopies(t *testing.T) {
	dmgp := CreateDMGP(10000)
	p := gosPacket(3, 1, 100)
	p.CrossedActiveNodes = []string{"10.0.0.1"}
	dmgp.AddPacket(p)
	p.CrossedActiveNodes[0] = "10.0.0.99"

	cp := dmgp.GetPacket(3, 1)
	require.NotNil(t, cp)
	assert.Equal(t, []string{"10.0.0.1"}, cp.CrossedActiveNodes)
	assert.Nil(t, dmgp.GetPacket(4, 1))

	dmgp.Reset()
	assert.Nil(t, dmgp.Flow(3))
	assert.Empty(t, dmgp.Flows())
	assert.Equal(t, 10000, dmgp.Capacity())
}

package mplsgos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPacketSize(t *testing.T) {
	p := &Packet{Type: IPv4Packet, Payload: 100}
	assert.Equal(t, 120, p.Size())

	p.pushLabel(20)
	p.pushLabel(21)
	assert.Equal(t, MPLSPacket, p.Type)
	assert.Equal(t, 128, p.Size())

	// crossed active nodes only count for GoS traffic
	p.CrossedActiveNodes = []string{"10.0.0.1", "10.0.0.2"}
	assert.Equal(t, 128, p.Size())
	p.GoSLevel = 1
	assert.Equal(t, 136, p.Size())

	tldp := &Packet{Type: TLDPPacket, TLDP: &TLDPMsg{}}
	assert.Equal(t, ipv4HeaderLen+tldpMsgLen, tldp.Size())

	gpsrp := &Packet{Type: GPSRPPacket, GPSRP: &GPSRPMsg{Recovered: &Packet{Payload: 10}}}
	assert.Equal(t, ipv4HeaderLen+gpsrpMsgLen+30, gpsrp.Size())
}

func TestPacketLabelStack(t *testing.T) {
	p := &Packet{Type: IPv4Packet}
	assert.Equal(t, Undefined, p.TopLabel())

	p.pushLabel(20)
	p.pushLabel(21)
	assert.Equal(t, 21, p.TopLabel())

	p.swapLabel(30)
	assert.Equal(t, []int{20, 30}, p.Labels)

	p.popLabel()
	assert.Equal(t, MPLSPacket, p.Type)
	p.popLabel()
	assert.Equal(t, IPv4Packet, p.Type)
	assert.Empty(t, p.Labels)

	p.popLabel()
	p.swapLabel(40)
	assert.Empty(t, p.Labels)
}

func TestPacketIsGoS(t *testing.T) {
	assert.False(t, (&Packet{Type: IPv4Packet}).isGoS())
	assert.True(t, (&Packet{Type: IPv4Packet, GoSLevel: 1}).isGoS())
	assert.True(t, (&Packet{Type: MPLSPacket, GoSLevel: 3}).isGoS())
	assert.False(t, (&Packet{Type: TLDPPacket, GoSLevel: 3}).isGoS())
}

func TestPacketClone(t *testing.T) {
	p := &Packet{ID: 7, Type: GPSRPPacket, Labels: []int{20}, CrossedActiveNodes: []string{"10.0.0.1"},
		GPSRP: &GPSRPMsg{Labels: []int{5}, Recovered: &Packet{Labels: []int{9}}}}
	cp := p.Clone()
	cp.Labels[0] = 21
	cp.CrossedActiveNodes[0] = "10.0.0.9"
	cp.GPSRP.Labels[0] = 6
	cp.GPSRP.Recovered.Labels[0] = 10

	assert.Equal(t, int64(7), cp.ID)
	assert.Equal(t, []int{20}, p.Labels)
	assert.Equal(t, []string{"10.0.0.1"}, p.CrossedActiveNodes)
	assert.Equal(t, []int{5}, p.GPSRP.Labels)
	assert.Equal(t, []int{9}, p.GPSRP.Recovered.Labels)

	tldp := &Packet{Type: TLDPPacket, TLDP: &TLDPMsg{Label: 3}}
	tcp := tldp.Clone()
	tcp.TLDP.Label = 4
	assert.Equal(t, 3, tldp.TLDP.Label)
}

func TestFEC(t *testing.T) {
	assert.Equal(t, 167772161, FEC("10.0.0.1"))
	assert.Equal(t, 1207959553, FEC("200.0.0.1"))
	assert.Equal(t, Undefined, FEC("not an address"))
	assert.Equal(t, Undefined, FEC("::1"))
}

func TestPacketStrings(t *testing.T) {
	assert.Equal(t, "GPSRP", GPSRPPacket.String())
	assert.Equal(t, "withdraw-ok", TLDPWithdrawOK.String())
	assert.Equal(t, "retransmission-not-possible", GPSRPRetransmissionNotPossible.String())
	p := &Packet{ID: 3, Type: MPLSPacket, Src: "10.0.0.1", Dst: "10.0.0.2", Labels: []int{17}}
	assert.Equal(t, "MPLS#3 10.0.0.1->10.0.0.2 labels [17]", p.String())
}

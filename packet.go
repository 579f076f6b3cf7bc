package mplsgos

// packet.go holds the packets that travel through the simulated network.
// Sizes are computed from header lengths, nothing is encoded byte by byte.

import (
	"fmt"
	"net"

	"golang.org/x/exp/slices"
)

// header lengths, in octets
const (
	ipv4HeaderLen = 20
	mplsShimLen   = 4
	gosOptionLen  = 4 // one crossed active node address in the IPv4 options
	tldpMsgLen    = 16
	gpsrpMsgLen   = 12
	maxGoSLevel   = 3
)

// PacketType says how a node has to handle a packet
type PacketType int

const (
	IPv4Packet PacketType = iota
	MPLSPacket
	TLDPPacket
	GPSRPPacket
)

var ptToStr = map[PacketType]string{IPv4Packet: "IPv4", MPLSPacket: "MPLS", TLDPPacket: "TLDP", GPSRPPacket: "GPSRP"}

func (pt PacketType) String() string {
	return ptToStr[pt]
}

// TLDPMsgType lists the label distribution messages
type TLDPMsgType int

const (
	TLDPRequest TLDPMsgType = iota
	TLDPRequestOK
	TLDPRequestDenied
	TLDPWithdraw
	TLDPWithdrawOK
)

var tldpToStr = map[TLDPMsgType]string{TLDPRequest: "request", TLDPRequestOK: "request-ok",
	TLDPRequestDenied: "request-denied", TLDPWithdraw: "withdraw", TLDPWithdrawOK: "withdraw-ok"}

func (mt TLDPMsgType) String() string {
	return tldpToStr[mt]
}

// TLDPMsg is the body of a TLDP packet.  SessionID always names a session of the
// receiving node (or, for a request, the session of the sender the receiver will
// remember as upstream); PeerSessionID names a session of the sender
type TLDPMsg struct {
	Type          TLDPMsgType
	SessionID     int
	PeerSessionID int
	Label         int
	TargetIP      string
	Backup        bool
}

// GPSRPMsgType lists the retransmission request messages
type GPSRPMsgType int

const (
	GPSRPRequest GPSRPMsgType = iota
	GPSRPRetransmissionOK
	GPSRPRetransmissionNotPossible
)

var gpsrpToStr = map[GPSRPMsgType]string{GPSRPRequest: "request", GPSRPRetransmissionOK: "retransmission-ok",
	GPSRPRetransmissionNotPossible: "retransmission-not-possible"}

func (mt GPSRPMsgType) String() string {
	return gpsrpToStr[mt]
}

// GPSRPMsg is the body of a GPSRP packet
type GPSRPMsg struct {
	Type      GPSRPMsgType
	FlowID    int
	GoSID     int
	Requester string
	Recovered *Packet // copy of the requested packet, for GPSRPRetransmissionOK

	// header of the lost packet at the requester, echoed back with the copy
	InPort int
	Labels []int
}

// Packet is anything carried by a link
type Packet struct {
	ID      int64
	Type    PacketType
	Src     string
	Dst     string
	Payload int // octets beyond the headers

	GoSLevel  int  // 0 means best effort
	BackupLSP bool // sender asks for a protected path
	FlowID    int
	GoSID     int // sequence number within the flow

	Labels             []int    // label stack, top of stack last
	CrossedActiveNodes []string // active nodes holding a copy, in crossing order

	TLDP  *TLDPMsg
	GPSRP *GPSRPMsg

	SentAt    Timestamp
	ArrivedAt Timestamp
	InPort    int // port the packet came in on at the node now holding it
}

// Size is the number of octets the packet occupies in a buffer or on a link
func (p *Packet) Size() int {
	size := ipv4HeaderLen + p.Payload + mplsShimLen*len(p.Labels)
	if p.GoSLevel > 0 {
		size += gosOptionLen * len(p.CrossedActiveNodes)
	}
	switch p.Type {
	case TLDPPacket:
		size += tldpMsgLen
	case GPSRPPacket:
		size += gpsrpMsgLen
		if p.GPSRP != nil && p.GPSRP.Recovered != nil {
			size += p.GPSRP.Recovered.Size()
		}
	}
	return size
}

// TopLabel returns the label on top of the stack, Undefined if the stack is empty
func (p *Packet) TopLabel() int {
	if len(p.Labels) == 0 {
		return Undefined
	}
	return p.Labels[len(p.Labels)-1]
}

func (p *Packet) pushLabel(label int) {
	p.Labels = append(p.Labels, label)
	p.Type = MPLSPacket
}

func (p *Packet) swapLabel(label int) {
	if len(p.Labels) > 0 {
		p.Labels[len(p.Labels)-1] = label
	}
}

func (p *Packet) popLabel() {
	if len(p.Labels) > 0 {
		p.Labels = p.Labels[:len(p.Labels)-1]
	}
	if len(p.Labels) == 0 {
		p.Type = IPv4Packet
	}
}

// isGoS tells whether the packet is eligible for DMGP storage and GPSRP recovery
func (p *Packet) isGoS() bool {
	return p.GoSLevel > 0 && (p.Type == MPLSPacket || p.Type == IPv4Packet)
}

// Clone makes a deep copy, messages included
func (p *Packet) Clone() *Packet {
	cp := *p
	cp.Labels = slices.Clone(p.Labels)
	cp.CrossedActiveNodes = slices.Clone(p.CrossedActiveNodes)
	if p.TLDP != nil {
		msg := *p.TLDP
		cp.TLDP = &msg
	}
	if p.GPSRP != nil {
		msg := *p.GPSRP
		msg.Labels = slices.Clone(p.GPSRP.Labels)
		if msg.Recovered != nil {
			msg.Recovered = msg.Recovered.Clone()
		}
		cp.GPSRP = &msg
	}
	return &cp
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s#%d %s->%s labels %v", p.Type, p.ID, p.Src, p.Dst, p.Labels)
}

// FEC derives the forwarding equivalence class of a destination address,
// the address itself as a non-negative 31-bit integer
func FEC(ip string) int {
	addr := net.ParseIP(ip).To4()
	if addr == nil {
		return Undefined
	}
	v := uint32(addr[0])<<24 | uint32(addr[1])<<16 | uint32(addr[2])<<8 | uint32(addr[3])
	return int(v & 0x7FFFFFFF)
}

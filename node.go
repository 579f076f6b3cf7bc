package mplsgos

// node.go holds the nodes of the topology.  Every node owns an input buffer
// and a switching power, the number of megabits per second it can move out of
// that buffer.  Each tick a node admits what its links brought in during the
// previous interval, spends the power accumulated over the current interval on
// the packets at the head of its buffer, and runs its protocol timers.
// Packets leave a node stamped with the end of the interval.
//
// Label distribution is in node-tldp.go, the GoS machinery of active nodes in node-gos.go

import (
	"strings"
	"sync"

	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"
)

// NodeKind says which role a node plays
type NodeKind int

const (
	SenderNode NodeKind = iota
	ReceiverNode
	LERNode
	LSRNode
	ActiveLERNode
	ActiveLSRNode
)

var nkToStr = map[NodeKind]string{SenderNode: "sender", ReceiverNode: "receiver", LERNode: "ler",
	LSRNode: "lsr", ActiveLERNode: "activeler", ActiveLSRNode: "activelsr"}

var strToNK = map[string]NodeKind{"sender": SenderNode, "receiver": ReceiverNode, "ler": LERNode,
	"lsr": LSRNode, "activeler": ActiveLERNode, "activelsr": ActiveLSRNode}

func (nk NodeKind) String() string {
	return nkToStr[nk]
}

// ParseNodeKind converts the name used in scenario files, case insensitive
func ParseNodeKind(name string) (NodeKind, bool) {
	nk, present := strToNK[strings.ToLower(name)]
	return nk, present
}

// isMPLS is true for the kinds that hold a switching matrix
func (nk NodeKind) isMPLS() bool {
	return nk == LERNode || nk == LSRNode || nk == ActiveLERNode || nk == ActiveLSRNode
}

// isEdge is true for the kinds that push labels on IPv4 traffic
func (nk NodeKind) isEdge() bool {
	return nk == LERNode || nk == ActiveLERNode
}

// isActive is true for the kinds with DMGP and GPSRP
func (nk NodeKind) isActive() bool {
	return nk == ActiveLERNode || nk == ActiveLSRNode
}

// NodeStats gathers the counters of one node
type NodeStats struct {
	Name      string
	Kind      string
	IP        string
	Received  int64 // admitted into the buffer
	Sent      int64 // put on a link
	Dropped   int64
	Delivered int64 // reached this node as their destination
	Recovered int64 // restored through GPSRP
	Evicted   int64 // DMGP evictions
	Entries   int   // switching matrix size at the time of the report
	Requests  int   // outstanding GPSRP requests at the time of the report
	PerFlow   map[int]int64
}

// Node is a topology element driven by the clock
type Node struct {
	topoElement

	kind      NodeKind
	ip        string
	power     float64 // Mbps, 0 means unlimited
	bufferCap int     // octets, 0 means unlimited
	topo      *Topology
	ports     []*Link // port number is the index

	mu      sync.Mutex // guards staging, links write it concurrently
	staging []*Packet

	buffer     []*Packet
	bufferUsed int       // octets, pending packets included
	pending    []*Packet // held at ingress while their label is requested
	budget     float64   // octets the node may still process

	matrix    *SwitchingMatrix
	sessions  *IDGenerator
	gpsrp     *GPSRPRequests
	dmgp      *DMGP
	recovered map[[2]int]bool // (flow, gos id) already restored

	flow *Flow
	gen  *trafficGen

	prev Timestamp
	now  Timestamp

	statsMu sync.Mutex
	stats   NodeStats
}

// createNode is a constructor
func createNode(topo *Topology, id int, name string, kind NodeKind, ip string, power float64, bufferCap, dmgpCap int) *Node {
	n := new(Node)
	n.topo = topo
	n.kind = kind
	n.ip = ip
	n.power = power
	n.bufferCap = bufferCap
	n.ports = []*Link{}
	n.staging = []*Packet{}
	n.buffer = []*Packet{}
	n.pending = []*Packet{}
	n.matrix = CreateSwitchingMatrix()
	n.sessions = CreateIDGenerator()
	n.gpsrp = CreateGPSRPRequests()
	n.dmgp = CreateDMGP(dmgpCap)
	n.recovered = make(map[[2]int]bool)
	n.initElement(id, name, NodeElement, n.handleTick)
	n.resetStats()
	return n
}

// setFlow makes the node the source of flow
func (n *Node) setFlow(flow *Flow) {
	n.flow = flow
	n.gen = createTrafficGen(flow, rngstream.New(n.name))
}

// addPort attaches a link and returns its port number
func (n *Node) addPort(lk *Link) int {
	n.ports = append(n.ports, lk)
	return len(n.ports) - 1
}

func (n *Node) Kind() NodeKind                { return n.kind }
func (n *Node) IP() string                    { return n.ip }
func (n *Node) NumPorts() int                 { return len(n.ports) }
func (n *Node) Matrix() *SwitchingMatrix      { return n.matrix }
func (n *Node) GPSRPRequests() *GPSRPRequests { return n.gpsrp }
func (n *Node) DMGP() *DMGP                   { return n.dmgp }
func (n *Node) Flow() *Flow                   { return n.flow }

// linkAt returns the link behind port, nil if there is none
func (n *Node) linkAt(port int) *Link {
	if port < 0 || port >= len(n.ports) {
		return nil
	}
	return n.ports[port]
}

// linkBroken is true when port has no working link
func (n *Node) linkBroken(port int) bool {
	lk := n.linkAt(port)
	return lk == nil || lk.IsBroken()
}

// peer returns the node at the other end of port, nil if there is none
func (n *Node) peer(port int) *Node {
	lk := n.linkAt(port)
	if lk == nil {
		return nil
	}
	return lk.other(n).node
}

// receive is called by a link when a packet reaches port
func (n *Node) receive(port int, p *Packet, arrival Timestamp) {
	p.InPort = port
	p.ArrivedAt = arrival
	n.mu.Lock()
	n.staging = append(n.staging, p)
	n.mu.Unlock()
}

// handleTick runs on the node goroutine
func (n *Node) handleTick(evt TimerEvent) {
	n.prev, n.now = evt.Previous, evt.Current
	n.admit(evt.Previous)
	if n.kind == SenderNode && n.gen != nil {
		n.generate(evt.Current)
	}
	if n.kind.isMPLS() {
		n.checkBrokenPorts()
		n.processPending()
	}
	n.processBuffer(evt.Elapsed())
	if n.kind.isMPLS() {
		n.runTLDPTimers(evt.Elapsed())
	}
	if n.kind.isActive() {
		n.runGPSRPTimers(evt.Elapsed())
	}
}

// admit moves the staged packets that arrived no later than t into the buffer,
// in (arrival, port, id) order, dropping those that do not fit
func (n *Node) admit(t Timestamp) {
	n.mu.Lock()
	ready := []*Packet{}
	rest := n.staging[:0]
	for _, p := range n.staging {
		if p.ArrivedAt.LE(t) {
			ready = append(ready, p)
		} else {
			rest = append(rest, p)
		}
	}
	n.staging = rest
	n.mu.Unlock()

	slices.SortFunc(ready, func(a, b *Packet) int {
		if c := a.ArrivedAt.Compare(b.ArrivedAt); c != 0 {
			return c
		}
		if a.InPort != b.InPort {
			return a.InPort - b.InPort
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	for _, p := range ready {
		n.enqueue(p, false)
	}
}

// enqueue puts p at the tail of the buffer.  Signalling packets and forced
// ones are always taken; other packets are dropped when they do not fit
func (n *Node) enqueue(p *Packet, force bool) bool {
	size := p.Size()
	control := p.Type == TLDPPacket || p.Type == GPSRPPacket
	if !force && !control && n.bufferCap > 0 && n.bufferUsed+size > n.bufferCap {
		n.drop(p, "buffer-full")
		n.lostGoS(p)
		return false
	}
	n.buffer = append(n.buffer, p)
	n.bufferUsed += size
	n.countReceived()
	return true
}

// processBuffer spends the switching power of the interval on the head of the buffer
func (n *Node) processBuffer(elapsed int64) {
	if n.power > 0 {
		n.budget += n.power * float64(elapsed) / 8000.0
	}
	for len(n.buffer) > 0 {
		p := n.buffer[0]
		size := p.Size()
		if n.power > 0 && n.budget < float64(size) {
			break
		}
		n.buffer = n.buffer[1:]
		n.bufferUsed -= size
		if n.power > 0 {
			n.budget -= float64(size)
		}
		n.handlePacket(p)
	}
	if len(n.buffer) == 0 {
		n.budget = 0
	}
}

// handlePacket does whatever the kind of node does with p
func (n *Node) handlePacket(p *Packet) {
	switch n.kind {
	case SenderNode:
		n.drop(p, "sender")
		return
	case ReceiverNode:
		if (p.Type == IPv4Packet || p.Type == MPLSPacket) && p.Dst == n.ip {
			n.countDelivered(p)
			n.topo.trace.addElementTrace(n.now, n.id, "deliver", p, "")
			return
		}
		n.drop(p, "not-addressed")
		return
	}

	switch p.Type {
	case TLDPPacket:
		n.handleTLDP(p)
	case GPSRPPacket:
		if p.Dst == n.ip {
			n.handleGPSRP(p)
			return
		}
		n.route(p)
	case IPv4Packet:
		if n.kind.isEdge() {
			n.handleIngress(p)
			return
		}
		n.route(p)
	case MPLSPacket:
		n.switchLabelled(p)
	}
}

// route forwards p on the shortest path to its destination, labels untouched
func (n *Node) route(p *Packet) {
	port := n.topo.rt.nextHopPort(n.id, p.Dst)
	if port == Undefined {
		n.drop(p, "no-route")
		return
	}
	n.send(port, p)
}

// forward sends a data packet out of port, storing a copy first if the node is active
func (n *Node) forward(p *Packet, port int) {
	if n.kind.isActive() && p.isGoS() {
		n.storeGoS(p)
	}
	n.send(port, p)
}

// send puts p on the link behind port, stamped with the end of the interval
func (n *Node) send(port int, p *Packet) bool {
	lk := n.linkAt(port)
	if lk == nil {
		n.drop(p, "no-port")
		return false
	}
	if !lk.carry(n, p, n.now) {
		n.drop(p, "link-down")
		return false
	}
	n.statsMu.Lock()
	n.stats.Sent += 1
	n.statsMu.Unlock()
	n.topo.metrics.PacketsSent.WithLabelValues(n.name).Inc()
	n.topo.trace.addElementTrace(n.now, n.id, "send", p, "")
	return true
}

// newPacket makes a packet originating here
func (n *Node) newPacket(pt PacketType, dst string) *Packet {
	id, err := n.topo.pcktIDs.Next()
	if err != nil {
		n.log().WithError(err).Error("packet identifier")
		return nil
	}
	p := new(Packet)
	p.ID = id
	p.Type = pt
	p.Src = n.ip
	p.Dst = dst
	p.InPort = Undefined
	p.Labels = []int{}
	p.CrossedActiveNodes = []string{}
	return p
}

// generate emits the packets of the flow due by t on the first port
func (n *Node) generate(t Timestamp) {
	cnt := n.gen.due(t)
	for i := 0; i < cnt; i++ {
		p := n.newPacket(IPv4Packet, n.flow.Dst)
		if p == nil {
			return
		}
		p.Payload = n.flow.Payload
		p.GoSLevel = n.flow.GoSLevel
		p.BackupLSP = n.flow.Backup
		p.FlowID = n.flow.FlowID
		p.GoSID = n.gen.nextGoSID()
		n.send(0, p)
	}
}

func (n *Node) drop(p *Packet, reason string) {
	n.statsMu.Lock()
	n.stats.Dropped += 1
	n.statsMu.Unlock()
	n.topo.metrics.PacketsDropped.WithLabelValues(n.name, reason).Inc()
	n.topo.trace.addElementTrace(n.now, n.id, "drop", p, reason)
	n.log().WithField("reason", reason).WithField("packet", p.String()).Debug("packet dropped")
}

func (n *Node) countReceived() {
	n.statsMu.Lock()
	n.stats.Received += 1
	n.statsMu.Unlock()
	n.topo.metrics.PacketsReceived.WithLabelValues(n.name).Inc()
}

func (n *Node) countDelivered(p *Packet) {
	n.statsMu.Lock()
	n.stats.Delivered += 1
	n.stats.PerFlow[p.FlowID] += 1
	n.statsMu.Unlock()
}

// Stats returns a copy of the counters
func (n *Node) Stats() NodeStats {
	n.statsMu.Lock()
	defer n.statsMu.Unlock()
	st := n.stats
	st.PerFlow = make(map[int]int64, len(n.stats.PerFlow))
	for k, v := range n.stats.PerFlow {
		st.PerFlow[k] = v
	}
	st.Entries = n.matrix.Count()
	st.Requests = n.gpsrp.Count()
	return st
}

func (n *Node) resetStats() {
	n.statsMu.Lock()
	n.stats = NodeStats{Name: n.name, Kind: n.kind.String(), IP: n.ip, PerFlow: make(map[int]int64)}
	n.statsMu.Unlock()
}

// reset brings the node back to its state before the first tick
func (n *Node) reset() {
	n.mu.Lock()
	n.staging = []*Packet{}
	n.mu.Unlock()
	n.buffer = []*Packet{}
	n.pending = []*Packet{}
	n.bufferUsed = 0
	n.budget = 0
	n.matrix.Reset()
	n.sessions.Reset()
	n.gpsrp.Reset()
	n.dmgp.Reset()
	n.recovered = make(map[[2]int]bool)
	if n.gen != nil {
		n.gen.reset()
	}
	n.prev, n.now = Timestamp{}, Timestamp{}
	n.resetStats()
}

package mplsgos

// node-gos.go holds what active nodes do for GoS traffic.  Every GoS packet an
// active node forwards is stamped with the node address and a copy goes into
// the node's DMGP.  When an active node has to discard a GoS packet it asks the
// active nodes the packet crossed, most recent first, for a copy (GPSRP).

// storeGoS stamps p with this node and keeps a copy
func (n *Node) storeGoS(p *Packet) {
	p.CrossedActiveNodes = append(p.CrossedActiveNodes, n.ip)
	evicted, _ := n.dmgp.AddPacket(p)
	if evicted > 0 {
		n.statsMu.Lock()
		n.stats.Evicted += int64(evicted)
		n.statsMu.Unlock()
		n.topo.metrics.DMGPEvictions.WithLabelValues(n.name).Add(float64(evicted))
	}
}

// lostGoS opens a retransmission request for a GoS packet this node could not take
func (n *Node) lostGoS(p *Packet) {
	if !n.kind.isActive() || !p.isGoS() || len(p.CrossedActiveNodes) == 0 {
		return
	}
	if n.gpsrp.Get(p.FlowID, p.GoSID) != nil || n.recovered[[2]int{p.FlowID, p.GoSID}] {
		return
	}
	gre := n.gpsrp.AddEntry(p, p.InPort)
	n.topo.metrics.GPSRPRequests.WithLabelValues(n.name, "opened").Inc()
	n.askNextCandidate(gre)
}

// askNextCandidate sends the request of gre to its next candidate.  It returns
// false if no candidate is left or the next one cannot be reached
func (n *Node) askNextCandidate(gre *GPSRPRequestEntry) bool {
	ip, ok := gre.PopNextCandidateNode()
	if !ok {
		return false
	}
	port := n.topo.rt.nextHopPort(n.id, ip)
	if port == Undefined {
		return false
	}
	gre.SetOutgoingPort(port)
	p := n.newPacket(GPSRPPacket, ip)
	if p == nil {
		return false
	}
	p.GPSRP = &GPSRPMsg{Type: GPSRPRequest, FlowID: gre.FlowID(), GoSID: gre.PacketID(), Requester: n.ip,
		InPort: gre.inPort, Labels: gre.labels}
	return n.send(port, p)
}

// handleGPSRP processes a GPSRP message addressed to this node
func (n *Node) handleGPSRP(p *Packet) {
	m := p.GPSRP
	if m == nil {
		n.drop(p, "malformed")
		return
	}
	n.topo.trace.addElementTrace(n.now, n.id, "gpsrp", p, m.Type.String())
	switch m.Type {
	case GPSRPRequest:
		n.onRetransmissionRequest(m)
	case GPSRPRetransmissionOK:
		n.onRetransmissionOK(m)
	case GPSRPRetransmissionNotPossible:
		n.onRetransmissionNotPossible(m)
	}
}

// onRetransmissionRequest answers with a copy from the DMGP, if there is one
func (n *Node) onRetransmissionRequest(m *GPSRPMsg) {
	reply := &GPSRPMsg{Type: GPSRPRetransmissionNotPossible, FlowID: m.FlowID, GoSID: m.GoSID,
		Requester: m.Requester, InPort: m.InPort, Labels: m.Labels}
	if n.kind.isActive() {
		if cp := n.dmgp.GetPacket(m.FlowID, m.GoSID); cp != nil {
			reply.Type = GPSRPRetransmissionOK
			reply.Recovered = cp
		}
	}
	p := n.newPacket(GPSRPPacket, m.Requester)
	if p == nil {
		return
	}
	p.GPSRP = reply
	n.topo.metrics.GPSRPRequests.WithLabelValues(n.name, "answered-"+reply.Type.String()).Inc()
	n.route(p)
}

// onRetransmissionOK puts the recovered packet back into the buffer with the header it had when lost
func (n *Node) onRetransmissionOK(m *GPSRPMsg) {
	key := [2]int{m.FlowID, m.GoSID}
	n.gpsrp.Remove(m.FlowID, m.GoSID)
	if m.Recovered == nil || n.recovered[key] {
		return
	}
	n.recovered[key] = true
	rp := m.Recovered.Clone()
	rp.Labels = append([]int{}, m.Labels...)
	rp.Type = IPv4Packet
	if len(rp.Labels) > 0 {
		rp.Type = MPLSPacket
	}
	rp.InPort = m.InPort
	rp.ArrivedAt = n.now
	n.enqueue(rp, true)
	n.statsMu.Lock()
	n.stats.Recovered += 1
	n.statsMu.Unlock()
	n.topo.metrics.GPSRPRequests.WithLabelValues(n.name, "recovered").Inc()
	n.topo.trace.addElementTrace(n.now, n.id, "recover", rp, "")
}

// onRetransmissionNotPossible moves on to the next candidate
func (n *Node) onRetransmissionNotPossible(m *GPSRPMsg) {
	gre := n.gpsrp.Get(m.FlowID, m.GoSID)
	if gre == nil {
		return
	}
	gre.ForceTimeoutReset()
	if gre.Attempts() > 0 {
		n.askNextCandidate(gre)
	}
}

// runGPSRPTimers ages outstanding requests, resending the expired ones and
// dropping those that have run out of candidates or attempts
func (n *Node) runGPSRPTimers(elapsed int64) {
	n.gpsrp.DecreaseTimeouts(elapsed)
	for _, gre := range n.gpsrp.Retryable() {
		gre.ResetTimeout()
		n.askNextCandidate(gre)
	}
	if purged := n.gpsrp.Purge(); purged > 0 {
		n.topo.metrics.GPSRPRequests.WithLabelValues(n.name, "purged").Add(float64(purged))
	}
}

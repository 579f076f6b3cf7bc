package mplsgos

// node-tldp.go holds the label distribution side of MPLS nodes: pushing labels on
// traffic entering the domain, switching labelled traffic, answering and relaying
// TLDP messages, and reacting to broken links and expired negotiations.
//
// A request travels downstream from the ingress towards the tail end, each hop
// creating an entry keyed on a label it allocates for its upstream neighbour.
// The answer travels back upstream, each hop learning the label it has to write.

// handleIngress pushes a label on an IPv4 packet entering the MPLS domain,
// starting a negotiation if the flow has none yet
func (n *Node) handleIngress(p *Packet) {
	nh := n.topo.rt.nextHopPort(n.id, p.Dst)
	if nh == Undefined {
		n.drop(p, "no-route")
		return
	}
	if peer := n.peer(nh); peer == nil || !peer.kind.isMPLS() {
		// the destination hangs off this node, nothing to label
		n.forward(p, nh)
		return
	}

	fec := FEC(p.Dst)
	se := n.matrix.Get(p.InPort, fec, FECEntry)
	if se == nil {
		se = n.openIngressEntry(p, fec, nh)
		if se == nil {
			n.drop(p, "no-session")
			return
		}
	}
	switch se.LabelState {
	case LabelRequested:
		n.hold(p)
	case LabelGranted:
		p.pushLabel(se.OutgoingLabel)
		n.forward(p, se.OutgoingPort)
	default:
		n.drop(p, "label-denied")
	}
}

// openIngressEntry creates the FEC entry of a new flow and asks the next hop for a label
func (n *Node) openIngressEntry(p *Packet, fec, nh int) *SwitchingEntry {
	local, ok := n.newSession()
	if !ok {
		return nil
	}
	se := CreateSwitchingEntry()
	se.IncomingPort = p.InPort
	se.LabelOrFEC = fec
	se.Kind = FECEntry
	se.OutgoingPort = nh
	se.LabelStackOp = OpPush
	se.TailEndIP = p.Dst
	se.LocalSessionID = local
	se.LabelState = LabelRequested
	se.protect = p.BackupLSP && n.kind == ActiveLERNode
	n.matrix.Add(se)
	n.sendTLDP(nh, TLDPMsg{Type: TLDPRequest, SessionID: local, TargetIP: p.Dst})
	return se
}

// hold keeps p at ingress until its label is granted.  It keeps counting against the buffer
func (n *Node) hold(p *Packet) {
	n.pending = append(n.pending, p)
	n.bufferUsed += p.Size()
}

// processPending releases held packets whose negotiation has ended
func (n *Node) processPending() {
	if len(n.pending) == 0 {
		return
	}
	held := n.pending
	n.pending = []*Packet{}
	for _, p := range held {
		n.bufferUsed -= p.Size()
		n.handleIngress(p)
	}
}

// switchLabelled applies the label stack operation of the entry keyed on the top label
func (n *Node) switchLabelled(p *Packet) {
	se := n.matrix.Get(p.InPort, p.TopLabel(), LabelEntry)
	if se == nil || !se.IsUsable() || se.LabelState != LabelGranted {
		n.drop(p, "no-entry")
		return
	}
	switch se.LabelStackOp {
	case OpSwap:
		p.swapLabel(se.OutgoingLabel)
	case OpPop:
		p.popLabel()
	case OpPush:
		p.pushLabel(se.OutgoingLabel)
	}
	n.forward(p, se.OutgoingPort)
}

func (n *Node) newSession() (int, bool) {
	id, err := n.sessions.Next()
	if err != nil {
		n.log().WithError(err).Error("TLDP session identifier")
		return Undefined, false
	}
	return int(id), true
}

// sendTLDP sends msg to the neighbour behind port
func (n *Node) sendTLDP(port int, msg TLDPMsg) {
	peer := n.peer(port)
	if peer == nil {
		return
	}
	p := n.newPacket(TLDPPacket, peer.ip)
	if p == nil {
		return
	}
	p.TLDP = &msg
	n.send(port, p)
}

// handleTLDP dispatches a TLDP message received from a neighbour
func (n *Node) handleTLDP(p *Packet) {
	if p.TLDP == nil {
		n.drop(p, "malformed")
		return
	}
	n.topo.trace.addElementTrace(n.now, n.id, "tldp", p, p.TLDP.Type.String())
	switch p.TLDP.Type {
	case TLDPRequest:
		n.onLabelRequest(p.InPort, p.TLDP)
	case TLDPRequestOK:
		n.onLabelGranted(p.TLDP)
	case TLDPRequestDenied:
		n.onLabelDenied(p.TLDP)
	case TLDPWithdraw:
		n.onWithdraw(p.InPort, p.TLDP)
	case TLDPWithdrawOK:
		n.onWithdrawOK(p.TLDP)
	}
}

// onLabelRequest answers, or relays downstream, a request coming in on port in
func (n *Node) onLabelRequest(in int, m *TLDPMsg) {
	deny := TLDPMsg{Type: TLDPRequestDenied, SessionID: m.SessionID, Backup: m.Backup}

	// a retry of a request already being handled
	if se := n.matrix.GetByUpstreamSession(m.SessionID, in); se != nil {
		switch se.LabelState {
		case LabelGranted:
			n.sendTLDP(in, TLDPMsg{Type: TLDPRequestOK, SessionID: m.SessionID, Label: se.LabelOrFEC, Backup: m.Backup})
		case LabelDenied:
			n.sendTLDP(in, deny)
		}
		return
	}

	nh := n.topo.rt.nextHopPort(n.id, m.TargetIP)
	if nh == Undefined || nh == in {
		n.denied()
		n.sendTLDP(in, deny)
		return
	}
	label := n.matrix.AllocateLabel()
	if label == LabelUnavailable {
		n.log().Warn("label space exhausted")
		n.denied()
		n.sendTLDP(in, deny)
		return
	}
	local, ok := n.newSession()
	if !ok {
		n.denied()
		n.sendTLDP(in, deny)
		return
	}

	se := CreateSwitchingEntry()
	se.IncomingPort = in
	se.LabelOrFEC = label
	se.Kind = LabelEntry
	se.OutgoingPort = nh
	se.TailEndIP = m.TargetIP
	se.LocalSessionID = local
	se.UpstreamSessionID = m.SessionID
	se.BackupEntry = m.Backup

	if peer := n.peer(nh); peer == nil || !peer.kind.isMPLS() {
		// egress, the label comes off here
		se.LabelStackOp = OpPop
		se.LabelState = LabelGranted
		n.matrix.Add(se)
		n.granted()
		n.sendTLDP(in, TLDPMsg{Type: TLDPRequestOK, SessionID: m.SessionID, Label: label, Backup: m.Backup})
		return
	}
	se.LabelStackOp = OpSwap
	se.LabelState = LabelRequested
	n.matrix.Add(se)
	n.sendTLDP(nh, TLDPMsg{Type: TLDPRequest, SessionID: local, TargetIP: m.TargetIP, Backup: m.Backup})
}

// onLabelGranted records the label given downstream and passes the answer upstream
func (n *Node) onLabelGranted(m *TLDPMsg) {
	se := n.matrix.GetBySession(m.SessionID)
	if se == nil {
		return
	}
	if m.Backup && !se.BackupEntry {
		if se.BackupLabelState == LabelRequested {
			se.BackupOutgoingLabel = m.Label
			se.BackupLabelState = LabelGranted
			n.log().WithField("entry", se.String()).Info("backup LSP established")
		}
		return
	}
	if se.LabelState != LabelRequested {
		return
	}
	se.OutgoingLabel = m.Label
	se.LabelState = LabelGranted
	n.granted()
	if se.UpstreamSessionID != Undefined {
		n.sendTLDP(se.IncomingPort, TLDPMsg{Type: TLDPRequestOK, SessionID: se.UpstreamSessionID,
			Label: se.LabelOrFEC, Backup: se.BackupEntry})
		return
	}
	if se.protect {
		n.requestBackup(se)
	}
}

// requestBackup signals a second LSP for an ingress entry, leaving through another port
func (n *Node) requestBackup(se *SwitchingEntry) {
	bp := n.topo.rt.nextHopPortAvoiding(n.id, se.TailEndIP, se.OutgoingPort)
	if bp == Undefined || bp == se.IncomingPort {
		n.log().WithField("entry", se.String()).Debug("no protection path")
		return
	}
	if peer := n.peer(bp); peer == nil || !peer.kind.isMPLS() {
		return
	}
	se.BackupOutgoingPort = bp
	se.BackupLabelState = LabelRequested
	se.RestoreRetryBudget()
	n.sendTLDP(bp, TLDPMsg{Type: TLDPRequest, SessionID: se.LocalSessionID, TargetIP: se.TailEndIP, Backup: true})
}

// onLabelDenied gives up on a request and tells upstream
func (n *Node) onLabelDenied(m *TLDPMsg) {
	se := n.matrix.GetBySession(m.SessionID)
	if se == nil {
		return
	}
	if m.Backup && !se.BackupEntry {
		se.ClearBackupLSP()
		return
	}
	if se.LabelState != LabelRequested {
		return
	}
	n.denyEntry(se)
}

// denyEntry marks a requested entry denied.  A transit entry is removed and the
// denial relayed upstream; an ingress entry stays, so the flow is discarded here
func (n *Node) denyEntry(se *SwitchingEntry) {
	se.LabelState = LabelDenied
	n.denied()
	if se.UpstreamSessionID == Undefined {
		return
	}
	n.sendTLDP(se.IncomingPort, TLDPMsg{Type: TLDPRequestDenied, SessionID: se.UpstreamSessionID, Backup: se.BackupEntry})
	n.matrix.RemoveBySession(se.LocalSessionID, se.IncomingPort)
}

// onWithdraw handles the loss of the LSP downstream of one of our entries
func (n *Node) onWithdraw(in int, m *TLDPMsg) {
	n.sendTLDP(in, TLDPMsg{Type: TLDPWithdrawOK, SessionID: m.PeerSessionID, Backup: m.Backup})
	se := n.matrix.GetBySession(m.SessionID)
	if se == nil {
		return
	}
	if m.Backup && !se.BackupEntry {
		se.ClearBackupLSP()
		return
	}
	n.primaryLost(se)
}

// onWithdrawOK completes the removal of an entry
func (n *Node) onWithdrawOK(m *TLDPMsg) {
	se := n.matrix.GetBySession(m.SessionID)
	if se == nil || se.LabelState != LabelRemoving {
		return
	}
	n.matrix.RemoveBySession(se.LocalSessionID, se.IncomingPort)
}

// primaryLost reacts to the primary LSP of an entry going away: switch to the
// backup if there is one, otherwise tear the entry down
func (n *Node) primaryLost(se *SwitchingEntry) {
	if se.IsBackupLSPEstablished() {
		se.SwitchToBackupLSP()
		n.topo.metrics.Switchovers.WithLabelValues(n.name).Inc()
		n.topo.trace.addElementTrace(n.now, n.id, "switchover", nil, se.String())
		n.log().WithField("entry", se.String()).Info("switched to backup LSP")
		return
	}
	switch se.LabelState {
	case LabelRemoving:
		return
	case LabelRequested:
		if se.UpstreamSessionID != Undefined {
			n.denyEntry(se)
			return
		}
	}
	if se.UpstreamSessionID == Undefined {
		// later packets of the flow signal again over the new route
		n.matrix.Remove(se.IncomingPort, se.LabelOrFEC, se.Kind)
		return
	}
	se.LabelState = LabelRemoving
	se.ClearBackupLSP()
	se.RestoreRetryBudget()
	n.sendWithdraw(se)
}

func (n *Node) sendWithdraw(se *SwitchingEntry) {
	n.sendTLDP(se.IncomingPort, TLDPMsg{Type: TLDPWithdraw, SessionID: se.UpstreamSessionID,
		PeerSessionID: se.LocalSessionID, Backup: se.BackupEntry})
}

// checkBrokenPorts looks for entries whose outgoing link has gone down
func (n *Node) checkBrokenPorts() {
	for _, se := range n.matrix.Entries() {
		if se.HasBackupLSP() && n.linkBroken(se.BackupOutgoingPort) {
			se.ClearBackupLSP()
		}
		if se.LabelState != LabelGranted && se.LabelState != LabelRequested {
			continue
		}
		if n.linkBroken(se.OutgoingPort) {
			n.primaryLost(se)
		}
	}
}

// runTLDPTimers ages outstanding negotiations, resending or abandoning the expired ones
func (n *Node) runTLDPTimers(elapsed int64) {
	for _, se := range n.matrix.Entries() {
		se.DecreaseTimeout(elapsed)
		switch {
		case se.ShouldRetryExpiredTLDPRequest():
			se.ResetTimeout()
			n.retryTLDP(se)
		case se.IsPurgeable():
			n.abandonTLDP(se)
		}
	}
}

func (n *Node) retryTLDP(se *SwitchingEntry) {
	switch se.LabelState {
	case LabelRequested:
		n.sendTLDP(se.OutgoingPort, TLDPMsg{Type: TLDPRequest, SessionID: se.LocalSessionID,
			TargetIP: se.TailEndIP, Backup: se.BackupEntry})
	case LabelRemoving:
		n.sendWithdraw(se)
	}
	if se.BackupLabelState == LabelRequested {
		n.sendTLDP(se.BackupOutgoingPort, TLDPMsg{Type: TLDPRequest, SessionID: se.LocalSessionID,
			TargetIP: se.TailEndIP, Backup: true})
	}
}

func (n *Node) abandonTLDP(se *SwitchingEntry) {
	n.log().WithField("entry", se.String()).Debug("TLDP negotiation abandoned")
	if se.BackupLabelState == LabelRequested {
		se.ClearBackupLSP()
	}
	switch se.LabelState {
	case LabelRequested:
		n.denyEntry(se)
	case LabelRemoving:
		n.matrix.RemoveBySession(se.LocalSessionID, se.IncomingPort)
	}
}

func (n *Node) granted() {
	n.topo.metrics.LabelsGranted.WithLabelValues(n.name).Inc()
}

func (n *Node) denied() {
	n.topo.metrics.LabelsDenied.WithLabelValues(n.name).Inc()
}

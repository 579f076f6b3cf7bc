package mplsgos

// link.go holds the links of the topology.  A link joins a port of one node with a
// port of another, carries packets both ways with a fixed propagation delay, and
// may be scheduled to break and be repaired at given simulated times.  Breaking a
// link loses whatever it was carrying.

import (
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"
)

// linkEnd is one side of a link
type linkEnd struct {
	node *Node
	port int
}

// linkFailure is a scheduled change of a link's state
type linkFailure struct {
	at     Timestamp
	broken bool
}

// Link is a topology element driven by the clock
type Link struct {
	topoElement

	delay int64 // ns
	ends  [2]linkEnd
	topo  *Topology

	mu       sync.Mutex
	inflight *transitScheduler
	failures []linkFailure // ordered by time
	nxtFail  int           // index of the next failure to apply

	broken  atomic.Bool
	carried atomic.Int64
	lost    atomic.Int64
}

// createLink is a constructor.  The link takes the next free port of a and of b
func createLink(topo *Topology, id int, name string, delay int64, a, b *Node) *Link {
	lk := new(Link)
	lk.topo = topo
	lk.delay = delay
	lk.ends = [2]linkEnd{{node: a, port: a.addPort(lk)}, {node: b, port: b.addPort(lk)}}
	lk.inflight = createTransitScheduler()
	lk.failures = []linkFailure{}
	lk.initElement(id, name, LinkElement, lk.handleTick)
	return lk
}

// addFailure schedules the link to break (broken true) or be repaired at time at
func (lk *Link) addFailure(at Timestamp, broken bool) {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	lk.failures = append(lk.failures, linkFailure{at: at, broken: broken})
	slices.SortStableFunc(lk.failures, func(a, b linkFailure) int { return a.at.Compare(b.at) })
}

// Delay is the propagation delay, in ns
func (lk *Link) Delay() int64 { return lk.delay }

// IsBroken tells whether the link is down
func (lk *Link) IsBroken() bool { return lk.broken.Load() }

// SetBroken changes the state of the link at once.  A link going down loses its packets
func (lk *Link) SetBroken(broken bool) {
	at := lk.topo.clock.CurrentTimestamp()
	lk.mu.Lock()
	lk.setBrokenLocked(broken, at)
	lk.mu.Unlock()
}

func (lk *Link) setBrokenLocked(broken bool, at Timestamp) {
	if lk.broken.Swap(broken) == broken {
		return
	}
	if broken {
		lost := lk.inflight.flush()
		lk.lost.Add(int64(len(lost)))
		for _, tr := range lost {
			lk.topo.metrics.PacketsDropped.WithLabelValues(lk.name, "link-down").Inc()
			lk.log().WithField("packet", tr.pckt.String()).Debug("lost on broken link")
		}
	}
	lk.topo.rt.invalidate()
	op := "repair"
	if broken {
		op = "break"
	}
	lk.topo.trace.addElementTrace(at, lk.id, op, nil, "")
	lk.log().WithField("broken", broken).Info("link state changed")
}

// other returns the end of the link opposite to node n
func (lk *Link) other(n *Node) linkEnd {
	if lk.ends[0].node == n {
		return lk.ends[1]
	}
	return lk.ends[0]
}

// carry puts p in flight from node 'from', sent at time sentAt
func (lk *Link) carry(from *Node, p *Packet, sentAt Timestamp) bool {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	if lk.broken.Load() {
		lk.lost.Add(1)
		return false
	}
	to := lk.other(from)
	p.SentAt = sentAt
	lk.inflight.schedule(sentAt.Plus(lk.delay), to.node, to.port, p)
	return true
}

// deliverLocked hands every packet arriving no later than t to its node
func (lk *Link) deliverLocked(t Timestamp) {
	for _, tr := range lk.inflight.due(t) {
		lk.carried.Add(1)
		tr.to.receive(tr.port, tr.pckt, tr.arrival)
	}
}

// handleTick runs on the link goroutine.  Failures scheduled inside the interval are
// applied in time order, each after the packets that arrived before it were delivered
func (lk *Link) handleTick(evt TimerEvent) {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	for lk.nxtFail < len(lk.failures) && lk.failures[lk.nxtFail].at.LE(evt.Current) {
		f := lk.failures[lk.nxtFail]
		lk.nxtFail += 1
		if !lk.broken.Load() {
			lk.deliverLocked(f.at)
		}
		lk.setBrokenLocked(f.broken, f.at)
	}
	if !lk.broken.Load() {
		lk.deliverLocked(evt.Current)
	}
}

// Carried is the number of packets the link handed to a node
func (lk *Link) Carried() int64 { return lk.carried.Load() }

// Lost is the number of packets the link dropped because it was down
func (lk *Link) Lost() int64 { return lk.lost.Load() }

// InFlight is the number of packets being carried
func (lk *Link) InFlight() int {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	return lk.inflight.count()
}

// reset empties the link and rewinds its failure schedule
func (lk *Link) reset() {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	lk.inflight = createTransitScheduler()
	lk.nxtFail = 0
	lk.broken.Store(false)
	lk.carried.Store(0)
	lk.lost.Store(0)
}

package mplsgos

// mplsgos.go has code that builds the topology from its description and runs it

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

// Topology is a built scenario: nodes, links, the clock driving them and the
// shared services (routing, identifiers, trace, metrics) they use
type Topology struct {
	Name string

	nodes      []*Node // in declaration order
	links      []*Link // in declaration order
	nodeByName map[string]*Node
	linkByName map[string]*Link

	rt      *router
	clock   *Clock
	pcktIDs *LongIDGenerator
	ips     *IPv4Generator
	trace   *TraceManager
	metrics *Metrics

	idCounter int
	runMu     sync.Mutex
}

// nxtID produces a unique integer id for a node or link
func (topo *Topology) nxtID() int {
	topo.idCounter += 1
	return topo.idCounter
}

// BuildTopology validates sd and creates everything it describes.  tm and
// metrics may be nil, in which case the topology makes its own
func BuildTopology(sd *ScenarioDesc, tm *TraceManager, metrics *Metrics) (*Topology, error) {
	if err := sd.Validate(); err != nil {
		return nil, errors.Wrapf(err, "scenario %s", sd.Name)
	}
	if tm == nil {
		tm = CreateTraceManager(sd.Name, sd.Trace)
	}
	if metrics == nil {
		metrics = CreateMetrics()
	}

	topo := new(Topology)
	topo.Name = sd.Name
	topo.nodeByName = make(map[string]*Node)
	topo.linkByName = make(map[string]*Link)
	topo.rt = createRouter()
	topo.clock = CreateClock(TimestampFromNs(sd.Clock.FinishNs), sd.Clock.TickNs)
	topo.pcktIDs = CreateLongIDGenerator()
	topo.ips = CreateIPv4Generator()
	topo.trace = tm
	topo.metrics = metrics

	// addresses fixed by hand are never handed out again
	for _, nd := range sd.Nodes {
		if len(nd.IP) > 0 {
			topo.ips.Reserve(nd.IP)
		}
	}

	for _, nd := range sd.Nodes {
		n, err := topo.buildNode(nd)
		if err != nil {
			return nil, err
		}
		topo.nodes = append(topo.nodes, n)
		topo.nodeByName[n.name] = n
	}

	flowID := 0
	for _, nd := range sd.Nodes {
		if nd.Flow == nil {
			continue
		}
		flowID += 1
		src := topo.nodeByName[nd.Name]
		dst := topo.nodeByName[nd.Flow.Dst]
		fl := CreateFlow(flowID, nd.Name, src.ip, dst.ip, nd.Flow.Rate, nd.Flow.Payload, nd.Flow.GoS, nd.Flow.Backup)
		if len(nd.Flow.Dist) > 0 {
			fl.Dist = nd.Flow.Dist
		}
		fl.Start = nd.Flow.StartNs
		fl.Stop = nd.Flow.StopNs
		src.setFlow(fl)
	}

	for _, ld := range sd.Links {
		a := topo.nodeByName[ld.A]
		b := topo.nodeByName[ld.B]
		lk := createLink(topo, topo.nxtID(), ld.Name, ld.DelayNs, a, b)
		for _, fd := range ld.Failures {
			lk.addFailure(TimestampFromNs(fd.AtNs), fd.Broken)
		}
		topo.rt.addHop(a.id, lk.ends[0].port, b.id, lk)
		topo.rt.addHop(b.id, lk.ends[1].port, a.id, lk)
		topo.clock.AddListener(lk)
		if err := tm.AddName(lk.id, lk.name, "link"); err != nil {
			return nil, err
		}
		topo.links = append(topo.links, lk)
		topo.linkByName[lk.name] = lk
	}
	logger().WithField("scenario", sd.Name).WithField("nodes", len(topo.nodes)).
		WithField("links", len(topo.links)).Info("topology built")
	return topo, nil
}

// buildNode creates one node, with defaults filled in for MPLS nodes
func (topo *Topology) buildNode(nd NodeDesc) (*Node, error) {
	nk, _ := ParseNodeKind(nd.Type)
	ip := nd.IP
	if len(ip) == 0 {
		var err error
		ip, err = topo.ips.Next()
		if err != nil {
			return nil, errors.Wrapf(err, "address of node %s", nd.Name)
		}
	}
	power, buffer, dmgp := nd.Power, nd.Buffer, nd.DMGP
	if nk.isMPLS() {
		if power == 0 {
			power = DefaultPower
		}
		if buffer == 0 {
			buffer = DefaultBuffer
		}
	}
	if nk.isActive() && dmgp == 0 {
		dmgp = DefaultDMGP
	}
	n := createNode(topo, topo.nxtID(), nd.Name, nk, ip, power, buffer, dmgp)
	topo.rt.addNode(n.id, ip)
	topo.clock.AddListener(n)
	if err := topo.trace.AddName(n.id, n.name, nk.String()); err != nil {
		return nil, err
	}
	return n, nil
}

// elements lists every node then every link
func (topo *Topology) elements() []*topoElement {
	rtn := make([]*topoElement, 0, len(topo.nodes)+len(topo.links))
	for _, n := range topo.nodes {
		rtn = append(rtn, &n.topoElement)
	}
	for _, lk := range topo.links {
		rtn = append(rtn, &lk.topoElement)
	}
	return rtn
}

// Run starts the element goroutines on a pool, runs the clock from time zero
// to the finish time and stops the elements.  Cancelling ctx stops the clock at
// the next tick boundary and Run returns the context's error.  A paused clock
// keeps Run waiting until it is resumed
func (topo *Topology) Run(ctx context.Context) error {
	topo.runMu.Lock()
	defer topo.runMu.Unlock()

	els := topo.elements()
	pool, err := ants.NewPool(max(len(els), 1), ants.WithDisablePurge(true))
	if err != nil {
		return errors.Wrap(err, "element goroutine pool")
	}
	defer func() {
		if rerr := pool.ReleaseTimeout(time.Second); rerr != nil {
			logger().WithError(rerr).Warn("element goroutine pool release")
		}
	}()

	started := []*topoElement{}
	defer func() {
		for _, el := range started {
			el.stop()
		}
	}()
	for _, el := range els {
		el.begin()
		if serr := pool.Submit(el.loop); serr != nil {
			el.alive.Done()
			return errors.Wrapf(serr, "starting %s", el.name)
		}
		started = append(started, el)
	}

	topo.clock.Start()
	return topo.wait(ctx)
}

// wait blocks until the clock has reached its finish time or ctx is done
func (topo *Topology) wait(ctx context.Context) error {
	completed := func() chan struct{} {
		done := make(chan struct{})
		go func() {
			topo.clock.WaitForCompletion()
			close(done)
		}()
		return done
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		done := completed()
		select {
		case <-done:
		case <-ctx.Done():
			topo.clock.Stop()
			<-done
			return ctx.Err()
		}
		if !topo.clock.IsPaused() && !topo.clock.IsRunning() {
			return nil
		}
		// paused, look again once it is resumed
		for topo.clock.IsPaused() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

// Reset brings every element back to its state before the first tick, so the
// scenario can be run again.  It must not be called while Run is under way
func (topo *Topology) Reset() {
	topo.runMu.Lock()
	defer topo.runMu.Unlock()
	for _, n := range topo.nodes {
		n.reset()
	}
	for _, lk := range topo.links {
		lk.reset()
	}
	topo.pcktIDs.Reset()
	topo.rt.invalidate()
	topo.trace.Reset()
	topo.metrics.Reset()
}

// RemoveLink takes the link out of the topology: it goes down at once and the clock
// stops driving it at the next tick boundary
func (topo *Topology) RemoveLink(name string) error {
	lk, present := topo.linkByName[name]
	if !present {
		return errors.Errorf("no link %s", name)
	}
	lk.SetBroken(true)
	lk.MarkForDeletion()
	return nil
}

// Stats returns the counters of every node, in declaration order
func (topo *Topology) Stats() []NodeStats {
	rtn := make([]NodeStats, 0, len(topo.nodes))
	for _, n := range topo.nodes {
		rtn = append(rtn, n.Stats())
	}
	return rtn
}

// Node returns the node named, nil if there is none
func (topo *Topology) Node(name string) *Node {
	return topo.nodeByName[name]
}

// Link returns the link named, nil if there is none
func (topo *Topology) Link(name string) *Link {
	return topo.linkByName[name]
}

func (topo *Topology) Nodes() []*Node       { return topo.nodes }
func (topo *Topology) Links() []*Link       { return topo.links }
func (topo *Topology) Clock() *Clock        { return topo.clock }
func (topo *Topology) Metrics() *Metrics    { return topo.metrics }
func (topo *Topology) Trace() *TraceManager { return topo.trace }

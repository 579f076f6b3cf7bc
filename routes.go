package mplsgos

// routes.go provides shortest-hop routing through the simulated topology.
//
// The topology is converted into the graph representation of the gonum graph
// package, whose Dijkstra implementation computes a tree of shortest paths from a
// named node.  Every link that is not broken becomes an edge of weight 1, so a
// shortest path minimizes the number of hops.  Trees are cached per source and
// the cache is thrown away whenever a link breaks or is repaired.
//
// When several paths share the shortest length the lexicographically smallest
// sequence of node ids is chosen, so that runs are reproducible.

import (
	"math"
	"sync"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// hop is one port of a node and the node at the other end of its link
type hop struct {
	port int
	peer int
	link *Link
}

// router answers next-hop questions for every node of a topology
type router struct {
	mu       sync.Mutex
	hops     map[int][]hop  // node id -> its ports, in port order
	nodeByIP map[string]int // address -> node id
	cachedSP map[int]path.ShortestAlts
	g        *simple.WeightedUndirectedGraph
}

// createRouter is a constructor
func createRouter() *router {
	rt := new(router)
	rt.hops = make(map[int][]hop)
	rt.nodeByIP = make(map[string]int)
	rt.cachedSP = make(map[int]path.ShortestAlts)
	return rt
}

// addNode makes a node known to the router
func (rt *router) addNode(id int, ip string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, present := rt.hops[id]; !present {
		rt.hops[id] = []hop{}
	}
	rt.nodeByIP[ip] = id
	rt.invalidateLocked()
}

// addHop remembers that port of node id reaches peer through link
func (rt *router) addHop(id, port, peer int, link *Link) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.hops[id] = append(rt.hops[id], hop{port: port, peer: peer, link: link})
	rt.invalidateLocked()
}

// invalidate drops every cached tree, called when a link changes state
func (rt *router) invalidate() {
	rt.mu.Lock()
	rt.invalidateLocked()
	rt.mu.Unlock()
}

func (rt *router) invalidateLocked() {
	rt.g = nil
	rt.cachedSP = make(map[int]path.ShortestAlts)
}

// buildConnGraph converts the usable links into a gonum graph.  skip, if not nil,
// names one link to leave out
func (rt *router) buildConnGraph(skip *Link) *simple.WeightedUndirectedGraph {
	connGraph := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	ids := make([]int, 0, len(rt.hops))
	for id := range rt.hops {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		connGraph.AddNode(simple.Node(id))
	}
	for _, id := range ids {
		for _, h := range rt.hops[id] {
			if h.link == skip || h.link.IsBroken() || h.peer == id {
				continue
			}
			connGraph.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(id), T: simple.Node(h.peer), W: 1.0})
		}
	}
	return connGraph
}

// getSPTree returns the shortest path trees rooted in from, computing and caching them if needed
func (rt *router) getSPTree(from int) path.ShortestAlts {
	spTree, present := rt.cachedSP[from]
	if present {
		return spTree
	}
	if rt.g == nil {
		rt.g = rt.buildConnGraph(nil)
	}
	spTree = path.DijkstraAllFrom(simple.Node(from), rt.g)
	rt.cachedSP[from] = spTree
	return spTree
}

// convertNodeSeq extracts node ids from a sequence of graph nodes
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := make([]int, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

// pickRoute chooses the lexicographically smallest of several equally short routes
func pickRoute(alts [][]graph.Node) []int {
	var best []int
	for _, alt := range alts {
		route := convertNodeSeq(alt)
		if best == nil || slices.Compare(route, best) < 0 {
			best = route
		}
	}
	return best
}

// routeFrom returns the sequence of node ids from src to dst, both included; empty if unreachable
func (rt *router) routeFrom(src, dst int) []int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	spTree := rt.getSPTree(src)
	alts, _ := spTree.AllTo(int64(dst))
	return pickRoute(alts)
}

// portTo finds the first working port of src whose link reaches peer
func (rt *router) portTo(src, peer int, skip *Link) int {
	for _, h := range rt.hops[src] {
		if h.peer == peer && h.link != skip && !h.link.IsBroken() {
			return h.port
		}
	}
	return Undefined
}

// nodeID resolves an address, ok is false for an unknown one
func (rt *router) nodeID(ip string) (int, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	id, present := rt.nodeByIP[ip]
	return id, present
}

// nextHopPort gives the port of src on the shortest route to the node with address dstIP,
// Undefined if dstIP is src itself, unknown or unreachable
func (rt *router) nextHopPort(src int, dstIP string) int {
	dst, present := rt.nodeID(dstIP)
	if !present || dst == src {
		return Undefined
	}
	route := rt.routeFrom(src, dst)
	if len(route) < 2 {
		return Undefined
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.portTo(src, route[1], nil)
}

// nextHopPortAvoiding is nextHopPort on the topology without the link behind avoidPort of src.
// It is used to find the first hop of a protection path
func (rt *router) nextHopPortAvoiding(src int, dstIP string, avoidPort int) int {
	dst, present := rt.nodeID(dstIP)
	if !present || dst == src {
		return Undefined
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var skip *Link
	for _, h := range rt.hops[src] {
		if h.port == avoidPort {
			skip = h.link
		}
	}
	if skip == nil {
		return Undefined
	}
	g := rt.buildConnGraph(skip)
	alts, _ := path.DijkstraAllFrom(simple.Node(src), g).AllTo(int64(dst))
	route := pickRoute(alts)
	if len(route) < 2 {
		return Undefined
	}
	return rt.portTo(src, route[1], skip)
}

// peerOf returns the node id at the other end of port of src, Undefined if the port is unknown
func (rt *router) peerOf(src, port int) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, h := range rt.hops[src] {
		if h.port == port {
			return h.peer
		}
	}
	return Undefined
}

package mplsgos

// scheduler.go holds the arrival-ordered heap a link uses to keep track of the
// packets it is carrying.  The packet with the earliest arrival time is always
// on top; equal arrival times are broken by the order the packets entered the link.

import (
	"container/heap"
)

// transit is one packet in flight on a link
type transit struct {
	arrival Timestamp
	seq     int64 // order of entry into the link
	to      *Node
	port    int // port of 'to' the packet arrives on
	pckt    *Packet
}

// transitHeap and its methods implement a min-priority heap on arrival time
type transitHeap []*transit

func (h transitHeap) Len() int { return len(h) }
func (h transitHeap) Less(i, j int) bool {
	if c := h[i].arrival.Compare(h[j].arrival); c != 0 {
		return c < 0
	}
	return h[i].seq < h[j].seq
}
func (h transitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *transitHeap) Push(x any) {
	*h = append(*h, x.(*transit))
}

func (h *transitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}

// transitScheduler is the heap plus the counter giving entry order
type transitScheduler struct {
	inflight transitHeap
	nxtSeq   int64
}

// createTransitScheduler is a constructor
func createTransitScheduler() *transitScheduler {
	ts := new(transitScheduler)
	ts.inflight = transitHeap{}
	heap.Init(&ts.inflight)
	return ts
}

// schedule puts a packet in flight
func (ts *transitScheduler) schedule(arrival Timestamp, to *Node, port int, pckt *Packet) {
	ts.nxtSeq += 1
	heap.Push(&ts.inflight, &transit{arrival: arrival, seq: ts.nxtSeq, to: to, port: port, pckt: pckt})
}

// due removes and returns, in arrival order, every packet arriving no later than t
func (ts *transitScheduler) due(t Timestamp) []*transit {
	rtn := []*transit{}
	for len(ts.inflight) > 0 && ts.inflight[0].arrival.LE(t) {
		rtn = append(rtn, heap.Pop(&ts.inflight).(*transit))
	}
	return rtn
}

// flush empties the heap and returns what was in it
func (ts *transitScheduler) flush() []*transit {
	rtn := []*transit{}
	for len(ts.inflight) > 0 {
		rtn = append(rtn, heap.Pop(&ts.inflight).(*transit))
	}
	return rtn
}

// count is the number of packets in flight
func (ts *transitScheduler) count() int {
	return len(ts.inflight)
}

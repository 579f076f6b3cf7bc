package mplsgos

// element.go holds the machinery every node and link shares: a goroutine that
// waits for a timer event from the clock, hands it to the element's own tick
// handler, and then signals the clock that the interval has been consumed.

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// topoElement is embedded in nodes and links
type topoElement struct {
	id   int
	name string
	kind ElementKind

	ticks    chan TimerEvent // clock -> element
	finished chan struct{}   // element -> clock
	quit     chan struct{}

	handler func(evt TimerEvent)

	markedForDeletion atomic.Bool
	alive             sync.WaitGroup

	logKey string
}

// initElement sets up the channels.  handler runs on the element goroutine
func (el *topoElement) initElement(id int, name string, kind ElementKind, handler func(TimerEvent)) {
	el.id = id
	el.name = name
	el.kind = kind
	el.ticks = make(chan TimerEvent, 1)
	el.finished = make(chan struct{}, 1)
	el.quit = make(chan struct{})
	el.handler = handler
	el.logKey = "node"
	if kind == LinkElement {
		el.logKey = "link"
	}
}

// log returns an entry naming the element
func (el *topoElement) log() *logrus.Entry {
	return logger().WithField(el.logKey, el.name)
}

func (el *topoElement) ElementID() int           { return el.id }
func (el *topoElement) ElementKind() ElementKind { return el.kind }
func (el *topoElement) Name() string             { return el.name }

// DeliverTick queues the event for the element goroutine
func (el *topoElement) DeliverTick(evt TimerEvent) {
	el.ticks <- evt
}

// WaitTickDone blocks until the element has processed the last event
func (el *topoElement) WaitTickDone() {
	<-el.finished
}

// MarkForDeletion flags the element so the clock drops it at the next tick boundary
func (el *topoElement) MarkForDeletion() {
	el.markedForDeletion.Store(true)
}

func (el *topoElement) MarkedForDeletion() bool {
	return el.markedForDeletion.Load()
}

// loop is the element goroutine.  It exits when stop is called
func (el *topoElement) loop() {
	defer el.alive.Done()
	for {
		select {
		case evt := <-el.ticks:
			el.handler(evt)
			el.finished <- struct{}{}
		case <-el.quit:
			return
		}
	}
}

// begin reserves the goroutine slot; the caller then runs loop on a goroutine of its choosing
func (el *topoElement) begin() {
	el.alive.Add(1)
}

// stop ends the element goroutine and waits for it to exit
func (el *topoElement) stop() {
	close(el.quit)
	el.alive.Wait()
	el.quit = make(chan struct{})
}

package mplsgos

// clock.go holds the simulation clock.  The clock owns the passage of simulated time:
// each iteration of its run loop advances time by one tick, hands the interval
// that just elapsed to every registered node and then every registered link, and
// waits for each of them in turn to report it has finished with that interval.
// Only after the last element has answered does the clock compute the next interval.

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// ErrTooManyProgressListeners is returned when a second progress listener is registered
var ErrTooManyProgressListeners = errors.New("clock accepts a single progress listener")

// ElementKind partitions clock listeners.  All nodes see a tick before any link does
type ElementKind int

const (
	NodeElement ElementKind = iota
	LinkElement
)

// TimerEvent tells an element that simulated time moved from Previous to Current
type TimerEvent struct {
	ID       int64
	Previous Timestamp
	Current  Timestamp
}

// Elapsed is the length of the interval, in ns
func (te TimerEvent) Elapsed() int64 {
	return te.Current.Sub(te.Previous)
}

// ProgressEvent reports how far through the run the clock is, 0..100
type ProgressEvent struct {
	ID         int64
	Percentage int
}

// TimerListener is implemented by every topology element the clock drives.
// DeliverTick must not block; WaitTickDone blocks until the element has
// finished processing the last event it was given
type TimerListener interface {
	ElementID() int
	ElementKind() ElementKind
	DeliverTick(evt TimerEvent)
	WaitTickDone()
	MarkedForDeletion() bool
}

// ProgressListener receives the progress of the run, e.g. to drive a progress bar
type ProgressListener interface {
	ProgressChanged(evt ProgressEvent)
}

// Clock drives a topology forward in fixed increments
type Clock struct {
	mu sync.Mutex

	nodes    []TimerListener // ordered by ElementID, stable
	links    []TimerListener // ordered by ElementID, stable
	progress ProgressListener

	cfgFinish Timestamp // finish time applied by the next Start
	cfgTick   int64     // tick applied by the next Start

	tick     int64
	finish   Timestamp
	current  Timestamp
	previous Timestamp

	// copies taken when pausing, restored when resuming
	shadowFinish   Timestamp
	shadowCurrent  Timestamp
	shadowPrevious Timestamp

	paused  bool
	running bool
	stopReq bool
	done    chan struct{} // closed when the run loop of the current launch exits

	ids *LongIDGenerator
}

func (clk *Clock) log() *logrus.Entry {
	return logger().WithField("element", "clock")
}

// CreateClock is a constructor.  The finish time and tick (in ns) take effect at Start
func CreateClock(finish Timestamp, tick int64) *Clock {
	clk := new(Clock)
	clk.nodes = []TimerListener{}
	clk.links = []TimerListener{}
	clk.cfgFinish = finish
	clk.cfgTick = tick
	clk.ids = CreateLongIDGenerator()
	return clk
}

// SetFinishTimestamp sets the time the next run ends at
func (clk *Clock) SetFinishTimestamp(finish Timestamp) {
	clk.mu.Lock()
	clk.cfgFinish = finish
	clk.mu.Unlock()
}

// SetTick sets the tick duration, in ns, of the next run
func (clk *Clock) SetTick(tick int64) {
	clk.mu.Lock()
	clk.cfgTick = tick
	clk.mu.Unlock()
}

// CurrentTimestamp returns the end of the last interval handed out
func (clk *Clock) CurrentTimestamp() Timestamp {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	return clk.current
}

// AddListener registers a node or link.  Registering the same element twice has no effect
func (clk *Clock) AddListener(el TimerListener) {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	if el.ElementKind() == LinkElement {
		clk.links = insertListener(clk.links, el)
	} else {
		clk.nodes = insertListener(clk.nodes, el)
	}
}

// insertListener places el after every listener whose id is not larger,
// which keeps the order reproducible from run to run
func insertListener(list []TimerListener, el TimerListener) []TimerListener {
	if slices.Contains(list, el) {
		return list
	}
	id := el.ElementID()
	idx := slices.IndexFunc(list, func(other TimerListener) bool { return other.ElementID() > id })
	if idx == -1 {
		return append(list, el)
	}
	return slices.Insert(list, idx, el)
}

// RemoveListener unregisters an element
func (clk *Clock) RemoveListener(el TimerListener) {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	clk.nodes = slices.DeleteFunc(clk.nodes, func(other TimerListener) bool { return other == el })
	clk.links = slices.DeleteFunc(clk.links, func(other TimerListener) bool { return other == el })
}

// PurgeListenersMarkedForDeletion drops every element that flagged itself for removal
func (clk *Clock) PurgeListenersMarkedForDeletion() {
	clk.mu.Lock()
	clk.purgeLocked()
	clk.mu.Unlock()
}

func (clk *Clock) purgeLocked() {
	marked := func(el TimerListener) bool { return el.MarkedForDeletion() }
	clk.nodes = slices.DeleteFunc(clk.nodes, marked)
	clk.links = slices.DeleteFunc(clk.links, marked)
}

// NumListeners gives the number of registered nodes and links
func (clk *Clock) NumListeners() (int, int) {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	return len(clk.nodes), len(clk.links)
}

// AddProgressListener registers the one progress observer
func (clk *Clock) AddProgressListener(pl ProgressListener) error {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	if clk.progress != nil {
		return ErrTooManyProgressListeners
	}
	clk.progress = pl
	return nil
}

// RemoveProgressListener forgets the progress observer, if any
func (clk *Clock) RemoveProgressListener() {
	clk.mu.Lock()
	clk.progress = nil
	clk.mu.Unlock()
}

// Start begins a fresh run from time zero, applying the configured finish
// time and tick and resetting the event identifiers.  Nothing happens if
// a run is already under way
func (clk *Clock) Start() {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	if clk.running {
		return
	}
	clk.finish = clk.cfgFinish
	clk.tick = clk.cfgTick
	clk.current = Timestamp{}
	clk.previous = Timestamp{}
	clk.paused = false
	clk.ids.Reset()
	clk.launchLocked()
}

// Restart resumes a stopped run where it left off.  Nothing happens if
// a run is already under way
func (clk *Clock) Restart() {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	if clk.running {
		return
	}
	clk.paused = false
	clk.launchLocked()
}

// Stop asks the run loop to end at the next tick boundary.  It does not wait,
// use WaitForCompletion for that
func (clk *Clock) Stop() {
	clk.mu.Lock()
	if clk.running {
		clk.stopReq = true
	}
	clk.mu.Unlock()
}

func (clk *Clock) launchLocked() {
	clk.running = true
	clk.stopReq = false
	clk.done = make(chan struct{})
	go clk.run(clk.done)
}

// SetPaused pauses or resumes the run.  Pausing takes effect at the next tick boundary
func (clk *Clock) SetPaused(paused bool) {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	if paused == clk.paused {
		return
	}
	if paused {
		clk.paused = true
		clk.shadowFinish = clk.finish
		clk.shadowCurrent = clk.current
		clk.shadowPrevious = clk.previous
		return
	}
	clk.paused = false
	clk.finish = clk.shadowFinish
	clk.current = clk.shadowCurrent
	clk.previous = clk.shadowPrevious
	if !clk.running {
		clk.launchLocked()
	}
}

// IsPaused tells whether the clock is paused
func (clk *Clock) IsPaused() bool {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	return clk.paused
}

// IsRunning tells whether the run loop is alive
func (clk *Clock) IsRunning() bool {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	return clk.running
}

// WaitForCompletion blocks until the run loop has exited.  It returns at once
// if the clock was never started
func (clk *Clock) WaitForCompletion() {
	clk.mu.Lock()
	done := clk.done
	clk.mu.Unlock()
	if done != nil {
		<-done
	}
}

// nextInterval computes the next [previous, current] pair, clamped on the finish time.
// ok is false once no further progress is possible
func (clk *Clock) nextInterval() (prev, cur Timestamp, ok bool) {
	prev = clk.current
	cur = prev.Plus(clk.tick)
	if clk.finish.LT(cur) {
		cur = clk.finish
	}
	if !prev.LT(cur) {
		return prev, prev, false
	}
	return prev, cur, true
}

// progressPercentage is round(current*100/finish), 0 when finish is zero
func progressPercentage(cur, finish Timestamp) int {
	fin := finish.TotalNs()
	if fin == 0 {
		return 0
	}
	return int(math.Round(float64(cur.TotalNs()) * 100.0 / float64(fin)))
}

// run is the body of the clock goroutine
func (clk *Clock) run(done chan struct{}) {
	defer close(done)
	for {
		clk.mu.Lock()
		if clk.stopReq || clk.paused {
			clk.running = false
			clk.stopReq = false
			clk.mu.Unlock()
			return
		}
		clk.purgeLocked()
		prev, cur, ok := clk.nextInterval()
		if !ok {
			clk.running = false
			clk.mu.Unlock()
			clk.log().WithField("time", cur.String()).Debug("run complete")
			return
		}
		clk.previous = prev
		clk.current = cur
		nodes := slices.Clone(clk.nodes)
		links := slices.Clone(clk.links)
		progress := clk.progress
		finish := clk.finish
		clk.mu.Unlock()

		if progress != nil {
			id, err := clk.ids.Next()
			if err != nil {
				clk.log().WithError(err).Error("progress event not delivered")
			} else {
				progress.ProgressChanged(ProgressEvent{ID: id, Percentage: progressPercentage(cur, finish)})
			}
		}

		// nodes first, then links.  Only the elements that were given
		// the event are waited on
		given := make([]TimerListener, 0, len(nodes)+len(links))
		for _, group := range [][]TimerListener{nodes, links} {
			for _, el := range group {
				id, err := clk.ids.Next()
				if err != nil {
					clk.log().WithError(err).WithField("element", el.ElementID()).Error("timer event not delivered")
					continue
				}
				el.DeliverTick(TimerEvent{ID: id, Previous: prev, Current: cur})
				given = append(given, el)
			}
		}

		// sequential join, one element at a time
		for _, el := range given {
			el.WaitTickDone()
		}

		clk.mu.Lock()
		clk.previous = clk.current
		clk.mu.Unlock()
	}
}

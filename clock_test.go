package mplsgos

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// verifyNoLeaks checks for goroutines left behind by the test.  The default
// ants pool, started when the package is loaded, runs for the whole process
func verifyNoLeaks(t *testing.T) {
	goleak.VerifyNone(t,
		goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*poolCommon).purgeStaleWorkers"),
		goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*poolCommon).ticktock"),
	)
}

// order records the sequence in which listeners are given events
type order struct {
	mu  sync.Mutex
	ids []int
}

func (o *order) add(id int) {
	o.mu.Lock()
	o.ids = append(o.ids, id)
	o.mu.Unlock()
}

// fakeListener handles each event inline, inside DeliverTick
type fakeListener struct {
	id     int
	kind   ElementKind
	order  *order
	onTick func(evt TimerEvent)
	marked atomic.Bool

	mu     sync.Mutex
	events []TimerEvent
}

func newFakeListener(id int, kind ElementKind, o *order) *fakeListener {
	return &fakeListener{id: id, kind: kind, order: o}
}

func (fl *fakeListener) ElementID() int           { return fl.id }
func (fl *fakeListener) ElementKind() ElementKind { return fl.kind }
func (fl *fakeListener) WaitTickDone()            {}
func (fl *fakeListener) MarkedForDeletion() bool  { return fl.marked.Load() }

func (fl *fakeListener) DeliverTick(evt TimerEvent) {
	fl.mu.Lock()
	fl.events = append(fl.events, evt)
	fl.mu.Unlock()
	if fl.order != nil {
		fl.order.add(fl.id)
	}
	if fl.onTick != nil {
		fl.onTick(evt)
	}
}

func (fl *fakeListener) received() []TimerEvent {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return append([]TimerEvent{}, fl.events...)
}

type fakeProgress struct {
	mu          sync.Mutex
	percentages []int
}

func (fp *fakeProgress) ProgressChanged(evt ProgressEvent) {
	fp.mu.Lock()
	fp.percentages = append(fp.percentages, evt.Percentage)
	fp.mu.Unlock()
}

func TestClockDeliversEveryInterval(t *testing.T) {
	defer verifyNoLeaks(t)

	clk := CreateClock(TimestampFromNs(100000), 1000)
	node := newFakeListener(1, NodeElement, nil)
	link := newFakeListener(2, LinkElement, nil)
	clk.AddListener(node)
	clk.AddListener(link)
	progress := &fakeProgress{}
	require.NoError(t, clk.AddProgressListener(progress))

	clk.Start()
	clk.WaitForCompletion()
	assert.False(t, clk.IsRunning())

	for _, fl := range []*fakeListener{node, link} {
		events := fl.received()
		require.Len(t, events, 100)
		prev := Timestamp{}
		lastID := int64(0)
		for _, evt := range events {
			assert.True(t, evt.Previous.EQ(prev), "intervals are contiguous")
			assert.Equal(t, int64(1000), evt.Elapsed())
			assert.Greater(t, evt.ID, lastID)
			prev = evt.Current
			lastID = evt.ID
		}
		assert.True(t, prev.EQ(TimestampFromNs(100000)))
	}

	require.Len(t, progress.percentages, 100)
	for idx, pct := range progress.percentages {
		assert.Equal(t, idx+1, pct)
	}
	assert.True(t, clk.CurrentTimestamp().EQ(TimestampFromNs(100000)))
}

func TestClockClampsLastInterval(t *testing.T) {
	clk := CreateClock(TimestampFromNs(25000), 10000)
	node := newFakeListener(1, NodeElement, nil)
	clk.AddListener(node)
	clk.Start()
	clk.WaitForCompletion()

	events := node.received()
	require.Len(t, events, 3)
	assert.Equal(t, int64(20000), events[2].Previous.TotalNs())
	assert.Equal(t, int64(25000), events[2].Current.TotalNs())
}

func TestClockZeroFinish(t *testing.T) {
	clk := CreateClock(Timestamp{}, 10000)
	node := newFakeListener(1, NodeElement, nil)
	clk.AddListener(node)
	progress := &fakeProgress{}
	require.NoError(t, clk.AddProgressListener(progress))
	clk.Start()
	clk.WaitForCompletion()
	assert.Empty(t, node.received())
	assert.Empty(t, progress.percentages)
}

func TestClockOrdersNodesBeforeLinks(t *testing.T) {
	o := &order{}
	clk := CreateClock(TimestampFromNs(20000), 10000)
	// registration order is not delivery order
	for _, fl := range []*fakeListener{
		newFakeListener(7, LinkElement, o),
		newFakeListener(3, NodeElement, o),
		newFakeListener(5, LinkElement, o),
		newFakeListener(1, NodeElement, o),
	} {
		clk.AddListener(fl)
	}
	nodes, links := clk.NumListeners()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 2, links)

	clk.Start()
	clk.WaitForCompletion()
	assert.Equal(t, []int{1, 3, 5, 7, 1, 3, 5, 7}, o.ids)
}

func TestClockAddListenerTwice(t *testing.T) {
	clk := CreateClock(TimestampFromNs(10000), 10000)
	node := newFakeListener(1, NodeElement, nil)
	clk.AddListener(node)
	clk.AddListener(node)
	nodes, _ := clk.NumListeners()
	assert.Equal(t, 1, nodes)

	clk.RemoveListener(node)
	nodes, _ = clk.NumListeners()
	assert.Equal(t, 0, nodes)
}

func TestClockSingleProgressListener(t *testing.T) {
	clk := CreateClock(TimestampFromNs(10000), 10000)
	require.NoError(t, clk.AddProgressListener(&fakeProgress{}))
	assert.ErrorIs(t, clk.AddProgressListener(&fakeProgress{}), ErrTooManyProgressListeners)
	clk.RemoveProgressListener()
	assert.NoError(t, clk.AddProgressListener(&fakeProgress{}))
}

func TestClockPurgesMarkedListeners(t *testing.T) {
	clk := CreateClock(TimestampFromNs(100000), 10000)
	keep := newFakeListener(1, NodeElement, nil)
	drop := newFakeListener(2, LinkElement, nil)
	drop.onTick = func(evt TimerEvent) {
		if evt.Current.TotalNs() == 30000 {
			drop.marked.Store(true)
		}
	}
	clk.AddListener(keep)
	clk.AddListener(drop)
	clk.Start()
	clk.WaitForCompletion()

	assert.Len(t, keep.received(), 10)
	assert.Len(t, drop.received(), 3)
	_, links := clk.NumListeners()
	assert.Equal(t, 0, links)
}

func TestClockStopAndRestart(t *testing.T) {
	defer verifyNoLeaks(t)

	clk := CreateClock(TimestampFromNs(100000), 10000)
	node := newFakeListener(1, NodeElement, nil)
	node.onTick = func(evt TimerEvent) {
		if evt.Current.TotalNs() == 40000 {
			clk.Stop()
		}
	}
	clk.AddListener(node)
	clk.Start()
	clk.WaitForCompletion()
	assert.False(t, clk.IsRunning())
	assert.Len(t, node.received(), 4)

	clk.Restart()
	clk.WaitForCompletion()
	events := node.received()
	require.Len(t, events, 10)
	assert.Equal(t, int64(40000), events[4].Previous.TotalNs())
}

func TestClockPauseAndResume(t *testing.T) {
	defer verifyNoLeaks(t)

	clk := CreateClock(TimestampFromNs(100000), 10000)
	node := newFakeListener(1, NodeElement, nil)
	node.onTick = func(evt TimerEvent) {
		if evt.Current.TotalNs() == 50000 {
			clk.SetPaused(true)
		}
	}
	clk.AddListener(node)
	clk.Start()
	clk.WaitForCompletion()
	assert.True(t, clk.IsPaused())
	assert.False(t, clk.IsRunning())
	assert.Len(t, node.received(), 5)
	assert.True(t, clk.CurrentTimestamp().EQ(TimestampFromNs(50000)))

	clk.SetPaused(false)
	clk.WaitForCompletion()
	assert.False(t, clk.IsPaused())
	events := node.received()
	require.Len(t, events, 10)
	assert.Equal(t, int64(50000), events[5].Previous.TotalNs())
	assert.Equal(t, int64(100000), events[9].Current.TotalNs())
}

func TestClockStartResetsTime(t *testing.T) {
	clk := CreateClock(TimestampFromNs(20000), 10000)
	node := newFakeListener(1, NodeElement, nil)
	clk.AddListener(node)
	clk.Start()
	clk.WaitForCompletion()
	firstIDs := node.received()[0].ID

	clk.SetTick(5000)
	clk.Start()
	clk.WaitForCompletion()
	events := node.received()
	require.Len(t, events, 6)
	assert.Equal(t, int64(0), events[2].Previous.TotalNs())
	assert.Equal(t, int64(5000), events[2].Current.TotalNs())
	assert.Equal(t, firstIDs, events[2].ID, "identifiers restart with the run")
}

// TestClockWaitsForSlowElements checks that the clock does not hand out an interval
// before every element has finished with the previous one
func TestClockWaitsForSlowElements(t *testing.T) {
	defer verifyNoLeaks(t)

	const numElements = 4
	var handled atomic.Int64
	els := []*topoElement{}
	clk := CreateClock(TimestampFromNs(200000), 10000)
	for i := 0; i < numElements; i++ {
		el := new(topoElement)
		kind := NodeElement
		if i%2 == 1 {
			kind = LinkElement
		}
		el.initElement(i+1, "el", kind, func(evt TimerEvent) {
			time.Sleep(100 * time.Microsecond)
			handled.Add(1)
		})
		el.begin()
		go el.loop()
		els = append(els, el)
		clk.AddListener(el)
	}

	var mismatch atomic.Bool
	tick := int64(0)
	require.NoError(t, clk.AddProgressListener(progressFunc(func(evt ProgressEvent) {
		if handled.Load() != tick*numElements {
			mismatch.Store(true)
		}
		tick += 1
	})))
	clk.Start()
	clk.WaitForCompletion()
	for _, el := range els {
		el.stop()
	}

	assert.False(t, mismatch.Load())
	assert.Equal(t, int64(20*numElements), handled.Load())
}

type progressFunc func(evt ProgressEvent)

func (pf progressFunc) ProgressChanged(evt ProgressEvent) { pf(evt) }

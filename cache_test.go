package livecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

const waitFor = 2 * time.Second

// countingLoader answers immediately with "<args>#<n>" and counts calls per tuple.
type countingLoader struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newCountingLoader() *countingLoader {
	return &countingLoader{calls: make(map[string]int), fail: make(map[string]error)}
}

func (l *countingLoader) load(_ context.Context, args ...any) (string, error) {
	k := fmt.Sprint(args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[k]++
	if err, ok := l.fail[k]; ok {
		delete(l.fail, k)
		return "", err
	}
	return fmt.Sprintf("%s#%d", k, l.calls[k]), nil
}

func (l *countingLoader) count(args ...any) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[fmt.Sprint(args...)]
}

// scriptedLoader blocks every call until the test answers it.
type scriptedLoader struct {
	calls chan pendingLoad
	n     atomic.Int64
}

type pendingLoad struct {
	args []any
	resp chan loadResp
}

type loadResp struct {
	v   string
	err error
}

func newScriptedLoader() *scriptedLoader {
	return &scriptedLoader{calls: make(chan pendingLoad, 16)}
}

func (l *scriptedLoader) load(_ context.Context, args ...any) (string, error) {
	l.n.Add(1)
	p := pendingLoad{args: args, resp: make(chan loadResp, 1)}
	l.calls <- p
	r := <-p.resp
	return r.v, r.err
}

func (l *scriptedLoader) next(t *testing.T) pendingLoad {
	t.Helper()
	select {
	case p := <-l.calls:
		return p
	case <-time.After(waitFor):
		t.Fatalf("loader was not called")
		return pendingLoad{}
	}
}

func (l *scriptedLoader) expectIdle(t *testing.T) {
	t.Helper()
	select {
	case p := <-l.calls:
		t.Fatalf("unexpected loader call for %v", p.args)
	case <-time.After(50 * time.Millisecond):
	}
}

func (p pendingLoad) reply(v string) { p.resp <- loadResp{v: v} }
func (p pendingLoad) fail(err error) { p.resp <- loadResp{err: err} }

func newTestCache(t *testing.T, capacity int, load LoaderFunc[string], optsOpt func(*Options[string])) Cache[string] {
	t.Helper()
	opts := Options[string]{
		Name:     "test",
		Capacity: capacity,
		Loader:   load,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[string](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(context.Background()) })
	return cc
}

func mustImpl[V any](t *testing.T, c Cache[V]) *cache[V] {
	t.Helper()
	impl, ok := c.(*cache[V])
	if !ok {
		t.Fatalf("unexpected concrete type for Cache")
	}
	return impl
}

func TestNewValidatesOptions(t *testing.T) {
	load := newCountingLoader().load

	for _, capacity := range []int{0, -1} {
		if _, err := New[string](Options[string]{Capacity: capacity, Loader: load}); !errors.Is(err, ErrInvalidCapacity) {
			t.Fatalf("capacity %d: want ErrInvalidCapacity, got %v", capacity, err)
		}
	}
	if _, err := New[string](Options[string]{Capacity: 1}); !errors.Is(err, ErrNilLoader) {
		t.Fatalf("want ErrNilLoader, got %v", err)
	}
}

// ==============================
// Loader coordination
// ==============================

func TestGetLoadsOnceThenServesCached(t *testing.T) {
	ctx := context.Background()
	l := newCountingLoader()
	cc := newTestCache(t, 10, l.load, nil)

	for i := 0; i < 3; i++ {
		v, err := cc.Get(ctx, "lamp", 1)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v != "lamp1#1" {
			t.Fatalf("Get = %q, want lamp1#1", v)
		}
	}
	if n := l.count("lamp", 1); n != 1 {
		t.Fatalf("loader calls = %d, want 1", n)
	}

	e, ok, err := cc.Peek("lamp", 1)
	if err != nil || !ok {
		t.Fatalf("Peek: ok=%v err=%v", ok, err)
	}
	if e.Status != StatusLoaded || !e.HasValue() {
		t.Fatalf("status = %v, want loaded", e.Status)
	}
	if len(e.Args) != 2 || e.Args[0] != "lamp" {
		t.Fatalf("args not retained: %v", e.Args)
	}
}

func TestConcurrentGetsShareOneLoad(t *testing.T) {
	ctx := context.Background()
	l := newScriptedLoader()
	cc := newTestCache(t, 10, l.load, nil)

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cc.Get(ctx, "k")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			results <- v
		}()
	}

	p := l.next(t)
	time.Sleep(50 * time.Millisecond) // let every caller attach
	p.reply("shared")
	wg.Wait()
	close(results)

	for v := range results {
		if v != "shared" {
			t.Fatalf("caller got %q, want shared", v)
		}
	}
	if n := l.n.Load(); n != 1 {
		t.Fatalf("loader calls = %d, want 1", n)
	}
}

func TestLoadFailureIsLocalAndRetriedOnNextGet(t *testing.T) {
	ctx := context.Background()
	l := newCountingLoader()
	boom := errors.New("backend down")
	l.fail["bad"] = boom
	cc := newTestCache(t, 10, l.load, nil)

	_, err := cc.Get(ctx, "bad")
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("want *LoadError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("LoadError should wrap loader error, got %v", err)
	}

	e, ok, _ := cc.Peek("bad")
	if !ok || e.Status != StatusFailed || e.Err == nil || e.HasValue() {
		t.Fatalf("entry after failure: ok=%v %+v", ok, e)
	}

	// other keys unaffected
	if v, err := cc.Get(ctx, "good"); err != nil || v != "good#1" {
		t.Fatalf("Get good: %q %v", v, err)
	}

	// explicit Get retries
	v, err := cc.Get(ctx, "bad")
	if err != nil {
		t.Fatalf("retry Get: %v", err)
	}
	if v != "bad#2" {
		t.Fatalf("retry Get = %q, want bad#2", v)
	}
}

func TestFailedEntryIsNotRetriedByItself(t *testing.T) {
	ctx := context.Background()
	l := newCountingLoader()
	l.fail["x"] = errors.New("nope")
	cc := newTestCache(t, 10, l.load, nil)

	if _, err := cc.Get(ctx, "x"); err == nil {
		t.Fatalf("expected failure")
	}

	sub, err := cc.Subscribe(ctx, "x")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	if e := recv(t, sub); e.Status != StatusFailed {
		t.Fatalf("subscriber should see failed, got %v", e.Status)
	}
	noRecv(t, sub)
	if n := l.count("x"); n != 1 {
		t.Fatalf("loader calls = %d, want 1", n)
	}
}

func TestLoaderPanicBecomesLoadError(t *testing.T) {
	cc := newTestCache(t, 10, func(context.Context, ...any) (string, error) {
		panic("kaboom")
	}, nil)

	_, err := cc.Get(context.Background(), "p")
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("want *LoadError, got %v", err)
	}
}

func TestKeyNormalizationError(t *testing.T) {
	cc := newTestCache(t, 10, newCountingLoader().load, nil)

	_, err := cc.Get(context.Background(), make(chan int))
	var ke *KeyNormalizationError
	if !errors.As(err, &ke) {
		t.Fatalf("want *KeyNormalizationError, got %v", err)
	}
	if cc.Len() != 0 {
		t.Fatalf("no entry should be created")
	}
}

func TestStructurallyEqualArgsShareEntry(t *testing.T) {
	type query struct {
		Top   int
		Order map[string]string
	}
	ctx := context.Background()
	l := newCountingLoader()
	cc := newTestCache(t, 10, l.load, nil)

	q1 := &query{Top: 1, Order: map[string]string{"createdAt": "DESC"}}
	q2 := &query{Top: 1, Order: map[string]string{"createdAt": "DESC"}}
	if _, err := cc.Get(ctx, "lamp", q1); err != nil {
		t.Fatal(err)
	}
	if _, err := cc.Get(ctx, "lamp", q2); err != nil {
		t.Fatal(err)
	}
	if cc.Len() != 1 {
		t.Fatalf("Len = %d, want 1", cc.Len())
	}
}

func TestReloadAlwaysLoadsAndGetAttaches(t *testing.T) {
	ctx := context.Background()
	l := newScriptedLoader()
	cc := newTestCache(t, 10, l.load, nil)

	go func() { _, _ = cc.Get(ctx, "k") }()
	l.next(t).reply("v1")
	waitStatus(t, cc, StatusLoaded, "k")

	reloaded := make(chan string, 1)
	go func() {
		v, err := cc.Reload(ctx, "k")
		if err != nil {
			t.Errorf("Reload: %v", err)
		}
		reloaded <- v
	}()
	p := l.next(t)

	// snapshot keeps the last value while loading
	e, _, _ := cc.Peek("k")
	if e.Status != StatusLoading || e.Value != "v1" {
		t.Fatalf("during reload: %+v", e)
	}

	got := make(chan string, 1)
	go func() {
		v, _ := cc.Get(ctx, "k")
		got <- v
	}()
	l.expectIdle(t)

	p.reply("v2")
	if v := <-reloaded; v != "v2" {
		t.Fatalf("Reload = %q, want v2", v)
	}
	if v := <-got; v != "v2" {
		t.Fatalf("attached Get = %q, want v2", v)
	}
	if n := l.n.Load(); n != 2 {
		t.Fatalf("loader calls = %d, want 2", n)
	}
}

func TestReloadWhileLoadInFlightStartsSecondLoad(t *testing.T) {
	ctx := context.Background()
	l := newScriptedLoader()
	cc := newTestCache(t, 10, l.load, nil)

	first := make(chan string, 1)
	go func() {
		v, _ := cc.Get(ctx, "k")
		first <- v
	}()
	p1 := l.next(t)

	second := make(chan string, 1)
	go func() {
		v, _ := cc.Reload(ctx, "k")
		second <- v
	}()
	p2 := l.next(t)

	p2.reply("fresh")
	if v := <-second; v != "fresh" {
		t.Fatalf("Reload = %q", v)
	}
	p1.reply("old")
	if v := <-first; v != "old" {
		t.Fatalf("first Get = %q, want its own result", v)
	}
}

func TestMonotonicFreshness(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	l := newScriptedLoader()
	cc := newTestCache(t, 10, l.load, func(o *Options[string]) { o.Clock = fc })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cc.Get(ctx, "k")
	}()
	p1 := l.next(t) // started at t1
	t1 := fc.Now()

	fc.Advance(time.Second)
	reloaded := make(chan struct{})
	go func() {
		defer close(reloaded)
		_, _ = cc.Reload(ctx, "k")
	}()
	p2 := l.next(t) // started at t2 > t1
	t2 := fc.Now()

	p2.reply("newer")
	<-reloaded
	p1.reply("older")
	<-done

	e, _, _ := cc.Peek("k")
	if e.Value != "newer" {
		t.Fatalf("value = %q, want newer", e.Value)
	}
	if !e.UpdatedAt.Equal(t2) || e.UpdatedAt.Equal(t1) {
		t.Fatalf("UpdatedAt = %v, want %v", e.UpdatedAt, t2)
	}
}

func TestMonotonicFreshnessAppliesToFailures(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClock()
	l := newScriptedLoader()
	cc := newTestCache(t, 10, l.load, func(o *Options[string]) { o.Clock = fc })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cc.Get(ctx, "k")
	}()
	p1 := l.next(t)
	fc.Advance(time.Second)
	reloaded := make(chan struct{})
	go func() {
		defer close(reloaded)
		_, _ = cc.Reload(ctx, "k")
	}()
	p2 := l.next(t)

	p2.reply("good")
	<-reloaded
	p1.fail(errors.New("late failure"))
	<-done

	e, _, _ := cc.Peek("k")
	if e.Status != StatusLoaded || e.Value != "good" {
		t.Fatalf("late failure overwrote newer value: %+v", e)
	}
}

func TestWaitingCallerMayGiveUp(t *testing.T) {
	l := newScriptedLoader()
	cc := newTestCache(t, 10, l.load, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := cc.Get(ctx, "slow")
		errc <- err
	}()
	p := l.next(t)
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	// the load itself keeps going and lands in the cache
	p.reply("eventually")
	waitStatus(t, cc, StatusLoaded, "slow")
	if v, err := cc.Get(context.Background(), "slow"); err != nil || v != "eventually" {
		t.Fatalf("Get after abandon: %q %v", v, err)
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, 10, newCountingLoader().load, nil)

	sub, err := cc.Subscribe(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	drainUntilClosed(t, sub)
	sub.Close()

	if _, err := cc.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get after Close: %v", err)
	}
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// ==============================
// Eviction
// ==============================

func TestEvictionDropsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	l := newCountingLoader()
	cc := newTestCache(t, 2, l.load, nil)

	for _, k := range []string{"A", "B", "C"} {
		if _, err := cc.Get(ctx, k); err != nil {
			t.Fatalf("Get %s: %v", k, err)
		}
	}
	if _, ok, _ := cc.Peek("A"); ok {
		t.Fatalf("A should have been evicted")
	}
	if cc.Len() != 2 {
		t.Fatalf("Len = %d, want 2", cc.Len())
	}

	if v, _ := cc.Get(ctx, "A"); v != "A#2" {
		t.Fatalf("Get A after eviction = %q, want fresh load A#2", v)
	}
}

func TestEvictionHonorsReadRecency(t *testing.T) {
	ctx := context.Background()
	l := newCountingLoader()
	cc := newTestCache(t, 2, l.load, nil)

	_, _ = cc.Get(ctx, "A")
	_, _ = cc.Get(ctx, "B")
	_, _ = cc.Get(ctx, "A") // A is now most recent
	_, _ = cc.Get(ctx, "C")

	if _, ok, _ := cc.Peek("B"); ok {
		t.Fatalf("B should have been evicted")
	}
	if _, ok, _ := cc.Peek("A"); !ok {
		t.Fatalf("A should survive")
	}
}

func TestCapacityOneScenario(t *testing.T) {
	ctx := context.Background()
	l := newCountingLoader()
	cc := newTestCache(t, 1, l.load, nil)

	_, _ = cc.Get(ctx, "X")
	_, _ = cc.Get(ctx, "Y")
	if _, ok, _ := cc.Peek("X"); ok {
		t.Fatalf("X should have been evicted by Y")
	}
	_, _ = cc.Get(ctx, "X")
	if n := l.count("X"); n != 2 {
		t.Fatalf("loads of X = %d, want 2", n)
	}
}

func TestPinnedEntriesAreNotEvicted(t *testing.T) {
	ctx := context.Background()
	l := newCountingLoader()
	cc := newTestCache(t, 1, l.load, nil)

	sub, err := cc.Subscribe(ctx, "X")
	if err != nil {
		t.Fatal(err)
	}
	waitStatus(t, cc, StatusLoaded, "X")

	if _, err := cc.Get(ctx, "Y"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := cc.Peek("X"); !ok {
		t.Fatalf("subscribed X must not be evicted")
	}
	if _, ok, _ := cc.Peek("Y"); ok {
		t.Fatalf("unpinned Y should be evicted instead")
	}

	sub.Close()
	if _, err := cc.Get(ctx, "Z"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := cc.Peek("X"); ok {
		t.Fatalf("X should be evictable once unsubscribed")
	}
	if cc.Len() != 1 {
		t.Fatalf("Len = %d, want 1", cc.Len())
	}
}

func TestInFlightEntriesAreNotEvicted(t *testing.T) {
	ctx := context.Background()
	l := newScriptedLoader()
	cc := newTestCache(t, 1, l.load, nil)

	slow := make(chan string, 1)
	go func() {
		v, _ := cc.Get(ctx, "slow")
		slow <- v
	}()
	pSlow := l.next(t)

	fast := make(chan string, 1)
	go func() {
		v, _ := cc.Get(ctx, "fast")
		fast <- v
	}()
	pFast := l.next(t)

	if n := cc.Len(); n != 2 {
		t.Fatalf("Len = %d, want 2 (capacity exceeded while pinned)", n)
	}

	pFast.reply("f")
	<-fast
	// fast settled and is unpinned; slow is still loading
	if _, ok, _ := cc.Peek("slow"); !ok {
		t.Fatalf("in-flight entry evicted")
	}

	pSlow.reply("s")
	<-slow
	if n := cc.Len(); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
}

// ==============================
// helpers
// ==============================

func waitStatus(t *testing.T, cc Cache[string], want Status, args ...any) Entry[string] {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		e, _, err := cc.Peek(args...)
		if err != nil {
			t.Fatalf("Peek: %v", err)
		}
		if e.Status == want {
			return e
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status never reached %v", want)
	return Entry[string]{}
}

package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/eventbus/internal/event/dispatch"
)

// recorder collects invocations across handlers.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(label string) Handler {
	return Action(func(*Event) {
		r.mu.Lock()
		r.calls = append(r.calls, label)
		r.mu.Unlock()
	})
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func returning(v any) Handler {
	return Func(func(*Event) (any, error) { return v, nil })
}

func failing(err error) Handler {
	return Func(func(*Event) (any, error) { return nil, err })
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestBus(t *testing.T, opts ...BusOption) *Bus {
	t.Helper()
	b := NewBus(opts...)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

func TestBus_Name(t *testing.T) {
	b := newTestBus(t)
	assert.Empty(t, b.EventbusName())

	assert.Same(t, b, b.SetEventbusName("testname"))
	assert.Equal(t, "testname", b.EventbusName())

	b2 := newTestBus(t, WithName("testname2"))
	assert.Equal(t, "testname2", b2.EventbusName())
	assert.NotEqual(t, b.ID(), b2.ID())
}

func TestBus_TriggerInvokesInRegistrationOrder(t *testing.T) {
	for _, k := range []int{0, 1, 2, 5, 20} {
		t.Run(fmt.Sprintf("%d listeners", k), func(t *testing.T) {
			b := newTestBus(t)
			r := &recorder{}
			var want []string
			for i := 0; i < k; i++ {
				label := fmt.Sprint(i)
				want = append(want, label)
				require.NoError(t, b.On("test:trigger", r.handler(label), nil))
			}

			require.NoError(t, b.Trigger("test:trigger"))
			assert.Equal(t, want, r.got())
			assert.Equal(t, k, b.EventCount())
		})
	}
}

func TestBus_TriggerPassesArgsAndContext(t *testing.T) {
	b := newTestBus(t)
	ctx := &struct{ name string }{"receiver"}

	var got *Event
	require.NoError(t, b.On("test", Action(func(e *Event) { got = e }), ctx))
	require.NoError(t, b.Trigger("test", 1, "two", 3.0))

	require.NotNil(t, got)
	assert.Equal(t, "test", got.Name)
	assert.Equal(t, []any{1, "two", 3.0}, got.Args)
	assert.Same(t, ctx, got.Context)
	assert.Same(t, b, got.Bus)
	assert.Equal(t, "two", got.Arg(1))
	assert.Nil(t, got.Arg(5))
}

func TestBus_OffClearsEverything(t *testing.T) {
	b := newTestBus(t)
	r := &recorder{}
	require.NoError(t, b.On("test:trigger", r.handler("a"), nil))
	require.NoError(t, b.Trigger("test:trigger"))
	assert.Equal(t, 1, b.EventCount())

	require.NoError(t, b.Off("", nil, nil))
	assert.Zero(t, b.EventCount())

	require.NoError(t, b.Trigger("test:trigger"))
	require.NoError(t, b.Trigger("test:trigger"))
	assert.Equal(t, []string{"a"}, r.got())
}

func TestBus_OffFilters(t *testing.T) {
	r := &recorder{}
	h1, h2 := r.handler("h1"), r.handler("h2")
	ctx1, ctx2 := &struct{ a int }{}, &struct{ b int }{}

	tests := []struct {
		name    string
		off     func(b *Bus) error
		want    int
		wantNms []string
	}{
		{"by name", func(b *Bus) error { return b.Off("a", nil, nil) }, 2, []string{"b"}},
		{"by handler", func(b *Bus) error { return b.Off("", h1, nil) }, 1, []string{"a"}},
		{"by context", func(b *Bus) error { return b.Off("", nil, ctx2) }, 2, []string{"a", "b"}},
		{"by name and handler", func(b *Bus) error { return b.Off("a", h2, nil) }, 2, []string{"a", "b"}},
		{"multiple names", func(b *Bus) error { return b.Off("a b", nil, nil) }, 0, []string{}},
		{"map", func(b *Bus) error { return b.OffMap(map[string]Handler{"a b": h1}, nil) }, 1, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBus(t)
			require.NoError(t, b.On("a", h1, ctx1))
			require.NoError(t, b.On("a", h2, ctx2))
			require.NoError(t, b.On("b", h1, ctx1))

			require.NoError(t, tt.off(b))
			assert.Equal(t, tt.want, b.EventCount())
			assert.Equal(t, tt.wantNms, b.EventNames())
		})
	}
}

func TestBus_Once(t *testing.T) {
	triggers := map[string]func(b *Bus) error{
		"trigger": func(b *Bus) error { return b.Trigger("test:once") },
		"sync": func(b *Bus) error {
			_, err := b.TriggerSync("test:once")
			return err
		},
		"async": func(b *Bus) error {
			_, err := b.TriggerAsync("test:once").Await(context.Background())
			return err
		},
		"defer": func(b *Bus) error {
			if err := b.TriggerDefer("test:once"); err != nil {
				return err
			}
			return b.Flush(context.Background())
		},
	}

	for name, trigger := range triggers {
		t.Run(name, func(t *testing.T) {
			b := newTestBus(t)
			calls := 0
			var countDuring int
			require.NoError(t, b.Once("test:once", Func(func(*Event) (any, error) {
				calls++
				countDuring = b.EventCount()
				return "foo", nil
			}), nil))
			assert.Equal(t, 1, b.EventCount())

			require.NoError(t, trigger(b))
			assert.Zero(t, countDuring, "binding must be removed before the listener runs")
			assert.Zero(t, b.EventCount())

			require.NoError(t, trigger(b))
			assert.Equal(t, 1, calls)
		})
	}
}

func TestBus_OnceResult(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Once("test:once", returning("foo"), nil))

	v, err := b.TriggerSync("test:once")
	require.NoError(t, err)
	assert.Equal(t, "foo", v)

	v, err = b.TriggerSync("test:once")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBus_OnceRemovedByOriginalHandler(t *testing.T) {
	b := newTestBus(t)
	r := &recorder{}
	h := r.handler("once")
	require.NoError(t, b.Once("a b", h, nil))
	assert.Equal(t, 2, b.EventCount())

	require.NoError(t, b.Off("a", h, nil))
	assert.Equal(t, []string{"b"}, b.EventNames())

	// Each name keeps its own once-binding.
	require.NoError(t, b.Trigger("b"))
	assert.Equal(t, []string{"once"}, r.got())
	assert.Zero(t, b.EventCount())
}

func TestBus_ForEachEvent(t *testing.T) {
	b := newTestBus(t)
	r := &recorder{}
	handlers := []Handler{r.handler("1"), r.handler("2"), r.handler("3"), r.handler("3A")}
	contexts := []any{&struct{ i int }{1}, &struct{ i int }{2}, &struct{ i int }{3}, &struct{ i int }{4}}
	names := []string{"test:trigger", "test:trigger2", "test:trigger3", "test:trigger3"}

	for i := range handlers {
		require.NoError(t, b.On(names[i], handlers[i], contexts[i]))
	}

	var count int
	require.NoError(t, b.ForEachEvent(func(name string, h Handler, ctx any) {
		assert.Equal(t, names[count], name)
		assert.Equal(t, handlers[count], h)
		assert.Equal(t, contexts[count], ctx)
		count++
	}))
	assert.Equal(t, 4, count)
	assert.Equal(t, []string{"test:trigger", "test:trigger2", "test:trigger3"}, b.EventNames())

	assert.ErrorIs(t, b.ForEachEvent(nil), ErrNilVisitor)
	assert.ErrorIs(t, b.ForEachEvent(nil), ErrInvalidArgument)
}

func TestBus_ForEachEventReportsOnceOriginal(t *testing.T) {
	b := newTestBus(t)
	h := returning(1)
	require.NoError(t, b.Once("a", h, nil))

	require.NoError(t, b.ForEachEvent(func(_ string, got Handler, _ any) {
		assert.Equal(t, h, got)
	}))
}

func TestBus_TriggerSync(t *testing.T) {
	tests := []struct {
		name     string
		handlers []Handler
		want     any
	}{
		{"no listeners", nil, nil},
		{"no results", []Handler{Action(func(*Event) {})}, nil},
		{"one result unwrapped", []Handler{returning("foo")}, "foo"},
		{"two results in order", []Handler{returning("foo"), returning("bar")}, []any{"foo", "bar"}},
		{"nil results dropped", []Handler{returning(nil), returning("foo"), returning(nil)}, "foo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBus(t)
			for _, h := range tt.handlers {
				require.NoError(t, b.On("test:trigger:sync", h, nil))
			}

			v, err := b.TriggerSync("test:trigger:sync")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestBus_TriggerSyncPassesPendingThrough(t *testing.T) {
	b := newTestBus(t)
	p := dispatch.NewPending()
	require.NoError(t, b.On("test", returning(p), nil))

	v, err := b.TriggerSync("test")
	require.NoError(t, err)
	assert.Same(t, p, v)
}

func TestBus_TriggerAsync(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		handlers []Handler
		want     any
		wantErr  error
	}{
		{"no listeners", nil, nil, nil},
		{"one result", []Handler{returning("foo")}, "foo", nil},
		{"two results", []Handler{returning("foo"), returning("bar")}, []any{"foo", "bar"}, nil},
		{"pending results", []Handler{
			returning(Go(func() (any, error) {
				time.Sleep(10 * time.Millisecond)
				return "foo", nil
			})),
			returning("bar"),
		}, []any{"foo", "bar"}, nil},
		{"single pending unwrapped", []Handler{returning(dispatch.Resolved("foo"))}, "foo", nil},
		{"listener error", []Handler{returning("foo"), failing(boom)}, nil, boom},
		{"rejected pending", []Handler{returning("foo"), returning(dispatch.Rejected(boom))}, nil, boom},
		{"panic", []Handler{Func(func(*Event) (any, error) { panic("bad") })}, nil, ErrHandlerPanic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBus(t)
			for _, h := range tt.handlers {
				require.NoError(t, b.On("test:trigger:async", h, nil))
			}

			v, err := b.TriggerAsync("test:trigger:async").Await(testContext(t))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, v)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestBus_TriggerAsyncWrapsListenerError(t *testing.T) {
	b := newTestBus(t, WithName("bus"))
	boom := errors.New("boom")
	require.NoError(t, b.On("test", failing(boom), nil))

	_, err := b.TriggerAsync("test").Await(testContext(t))
	var he *HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "bus", he.Bus)
	assert.Equal(t, "test", he.Name)
}

func TestBus_TriggerErrors(t *testing.T) {
	b := newTestBus(t, WithName("bus"))
	boom := errors.New("boom")
	r := &recorder{}
	require.NoError(t, b.On("test", r.handler("first"), nil))
	require.NoError(t, b.On("test", failing(boom), nil))
	require.NoError(t, b.On("test", r.handler("never"), nil))

	err := b.Trigger("test")
	assert.ErrorIs(t, err, boom)
	var he *HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "test", he.Name)
	assert.Equal(t, []string{"first"}, r.got())

	_, err = b.TriggerSync("test")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(2), b.Stats().HandlerErrors)
}

func TestBus_TriggerPanicPropagates(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.On("test", Func(func(*Event) (any, error) { panic("boom") }), nil))

	assert.Panics(t, func() { _ = b.Trigger("test") })
	assert.Panics(t, func() { _, _ = b.TriggerSync("test") })
}

func TestBus_TriggerDefer(t *testing.T) {
	b := newTestBus(t)
	release := make(chan struct{})
	r := &recorder{}
	require.NoError(t, b.On("test:trigger:defer", Action(func(*Event) {
		<-release
		r.handler("deferred").Handle(nil)
	}), nil))

	// TriggerDefer returns while the listener is still blocked.
	require.NoError(t, b.TriggerDefer("test:trigger:defer"))
	assert.Empty(t, r.got())
	close(release)

	require.NoError(t, b.Flush(testContext(t)))
	assert.Equal(t, []string{"deferred"}, r.got())
}

func TestBus_TriggerDeferOrder(t *testing.T) {
	b := newTestBus(t)
	var (
		mu  sync.Mutex
		got []any
	)
	require.NoError(t, b.On("n", Action(func(e *Event) {
		mu.Lock()
		got = append(got, e.Arg(0))
		mu.Unlock()
	}), nil))

	for i := 0; i < 50; i++ {
		require.NoError(t, b.TriggerDefer("n", i))
	}
	require.NoError(t, b.Flush(testContext(t)))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestBus_TriggerDeferReportsErrors(t *testing.T) {
	errs := make(chan error, 2)
	b := newTestBus(t, WithErrorHandler(func(err error) { errs <- err }))
	boom := errors.New("boom")
	require.NoError(t, b.On("fail", failing(boom), nil))
	require.NoError(t, b.On("panic", Func(func(*Event) (any, error) { panic("bad") }), nil))

	require.NoError(t, b.TriggerDefer("fail"))
	require.NoError(t, b.TriggerDefer("panic"))
	require.NoError(t, b.Flush(testContext(t)))

	assert.ErrorIs(t, <-errs, boom)
	err := <-errs
	assert.ErrorIs(t, err, ErrHandlerPanic)
	var he *HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "panic", he.Name)

	stats := b.Stats()
	assert.Equal(t, uint64(2), stats.Triggers[ModeDefer])
	assert.Equal(t, uint64(1), stats.HandlerPanics)
	assert.Zero(t, stats.DeferredDepth)
}

func TestBus_TriggerDeferAfterClose(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Close(testContext(t)))

	err := b.TriggerDefer("test")
	assert.ErrorIs(t, err, dispatch.ErrStopped)
	assert.Zero(t, b.Stats().DeferredDepth)
}

func TestBus_CloseRunsQueuedTriggers(t *testing.T) {
	b := NewBus()
	r := &recorder{}
	require.NoError(t, b.On("test", r.handler("ran"), nil))
	require.NoError(t, b.TriggerDefer("test"))

	require.NoError(t, b.Close(testContext(t)))
	assert.Equal(t, []string{"ran"}, r.got())
}

func TestBus_SpaceSeparatedNames(t *testing.T) {
	b := newTestBus(t)
	r := &recorder{}
	require.NoError(t, b.On("a b", r.handler("cb"), nil))
	assert.Equal(t, []string{"a", "b"}, b.EventNames())
	assert.Equal(t, 2, b.EventCount())

	require.NoError(t, b.Trigger("a"))
	assert.Equal(t, []string{"cb"}, r.got())
	require.NoError(t, b.Trigger("b"))
	assert.Equal(t, []string{"cb", "cb"}, r.got())

	require.NoError(t, b.Trigger("a b"))
	assert.Len(t, r.got(), 4)
}

func TestBus_MultiNameTriggerReturnsLastOutcome(t *testing.T) {
	errs := make(chan error, 1)
	b := newTestBus(t, WithErrorHandler(func(err error) { errs <- err }))
	boom := errors.New("boom")
	require.NoError(t, b.On("a", returning("from a"), nil))
	require.NoError(t, b.On("b", returning("from b"), nil))
	require.NoError(t, b.On("c", failing(boom), nil))

	v, err := b.TriggerSync("a b")
	require.NoError(t, err)
	assert.Equal(t, "from b", v)

	v, err = b.TriggerAsync("c a").Await(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "from a", v)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("earlier rejection was not reported")
	}
}

func TestBus_OnMap(t *testing.T) {
	b := newTestBus(t)
	ctx := &struct{}{}
	var gotCtx []any
	h1 := Action(func(e *Event) { gotCtx = append(gotCtx, e.Context) })
	h2 := returning("two")

	require.NoError(t, b.OnMap(map[string]Handler{"one three": h1, "two": h2}, ctx))
	assert.Equal(t, []string{"one", "three", "two"}, b.EventNames())

	require.NoError(t, b.Trigger("one"))
	require.NoError(t, b.Trigger("three"))
	assert.Equal(t, []any{ctx, ctx}, gotCtx)

	v, err := b.TriggerSync("two")
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}

func TestBus_OnceMap(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.OnceMap(map[string]Handler{"a": returning(1), "b": returning(2)}, nil))
	assert.Equal(t, 2, b.EventCount())

	v, err := b.TriggerSync("a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"b"}, b.EventNames())
}

func TestBus_AllListeners(t *testing.T) {
	b := newTestBus(t)
	var allArgs [][]any
	require.NoError(t, b.On("test", returning("named"), nil))
	require.NoError(t, b.On("all", Func(func(e *Event) (any, error) {
		allArgs = append(allArgs, e.Args)
		return "all", nil
	}), nil))

	v, err := b.TriggerSync("test", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []any{"named", "all"}, v)
	assert.Equal(t, [][]any{{"test", 1, 2}}, allArgs)

	// Triggering "all" itself runs the wildcard listeners twice: first with
	// the raw args, then with the name prepended.
	v, err = b.TriggerSync("all", "x")
	require.NoError(t, err)
	assert.Equal(t, []any{"all", "all"}, v)
	assert.Equal(t, [][]any{{"test", 1, 2}, {"x"}, {"all", "x"}}, allArgs)
}

func TestBus_AllListenersReadName(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.On("all", Func(func(e *Event) (any, error) {
		if len(e.Args) == 0 {
			return nil, nil
		}
		return e.Args[0], nil
	}), nil))

	v, err := b.TriggerSync("all")
	require.NoError(t, err)
	assert.Equal(t, "all", v)

	v, err = b.TriggerSync("save")
	require.NoError(t, err)
	assert.Equal(t, "save", v)
}

func TestBus_MutationDuringTrigger(t *testing.T) {
	b := newTestBus(t)
	r := &recorder{}
	var second Handler
	first := Action(func(*Event) {
		r.handler("first").Handle(nil)
		_ = b.Off("test", second, nil)
		_ = b.On("test", r.handler("added"), nil)
	})
	second = r.handler("second")

	require.NoError(t, b.On("test", first, nil))
	require.NoError(t, b.On("test", second, nil))

	// The trigger works on a snapshot: the removed listener still runs and
	// the added one waits for the next trigger.
	require.NoError(t, b.Trigger("test"))
	assert.Equal(t, []string{"first", "second"}, r.got())

	require.NoError(t, b.Trigger("test"))
	assert.Equal(t, []string{"first", "second", "first", "added"}, r.got())
}

func TestBus_Validation(t *testing.T) {
	b := newTestBus(t)
	h := returning(nil)
	var nilPtr *funcHandler

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"empty name", b.On("", h, nil), ErrInvalidName},
		{"blank name", b.On("  ", h, nil), ErrInvalidName},
		{"nil handler", b.On("a", nil, nil), ErrNilHandler},
		{"typed nil handler", b.On("a", nilPtr, nil), ErrNilHandler},
		{"func handler", b.On("a", uncomparable(func(*Event) (any, error) { return nil, nil }), nil), ErrInvalidHandler},
		{"map context", b.On("a", h, map[string]int{}), ErrInvalidContext},
		{"map blank key", b.OnMap(map[string]Handler{" ": h}, nil), ErrInvalidName},
		{"trigger empty", b.Trigger(""), ErrInvalidName},
		{"defer empty", b.TriggerDefer(" "), ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.want)
			assert.ErrorIs(t, tt.err, ErrInvalidArgument)
		})
	}

	_, err := b.TriggerSync("")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = b.TriggerAsync("").Await(testContext(t))
	assert.ErrorIs(t, err, ErrInvalidName)

	assert.Zero(t, b.EventCount())
}

// uncomparable is a Handler whose dynamic type cannot be compared.
type uncomparable func(e *Event) (any, error)

func (f uncomparable) Handle(e *Event) (any, error) { return f(e) }

func TestBus_Stats(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.On("a", returning(1), nil))
	require.NoError(t, b.On("all", returning(2), nil))

	require.NoError(t, b.Trigger("a"))
	_, err := b.TriggerSync("a")
	require.NoError(t, err)
	_, err = b.TriggerAsync("a").Await(testContext(t))
	require.NoError(t, err)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Triggers[ModeTrigger])
	assert.Equal(t, uint64(1), stats.Triggers[ModeSync])
	assert.Equal(t, uint64(1), stats.Triggers[ModeAsync])
	assert.Equal(t, uint64(6), stats.ListenersMatched)
	assert.Equal(t, 2, stats.Listeners)
}

func TestBus_ConcurrentTriggers(t *testing.T) {
	b := newTestBus(t)
	var (
		mu    sync.Mutex
		count int
	)
	require.NoError(t, b.On("test", Action(func(*Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}), nil))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := returning(i)
			_ = b.On("other", h, nil)
			_ = b.Trigger("test")
			_ = b.Off("other", h, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, count)
	assert.Equal(t, []string{"test"}, b.EventNames())
}

package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventProxy_Construction(t *testing.T) {
	b := newTestBus(t, WithName("target"))

	p, err := NewEventProxy(b)
	require.NoError(t, err)
	name, err := p.EventbusName()
	require.NoError(t, err)
	assert.Equal(t, "target", name)

	_, err = NewEventProxy(nil)
	assert.ErrorIs(t, err, ErrInvalidTarget)

	var nilBus *Bus
	_, err = NewEventProxy(nilBus)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	var nilProxy *EventProxy
	_, err = NewEventProxy(nilProxy)
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestEventProxy_DestroyRevokesOnlyProxyListeners(t *testing.T) {
	b := newTestBus(t)
	r := &recorder{}
	require.NoError(t, b.On("test:trigger", r.handler("direct"), nil))

	p := b.CreateEventProxy()
	require.NoError(t, p.On("test:trigger", r.handler("proxy"), nil))
	require.NoError(t, p.On("test:trigger2 test:trigger3", r.handler("proxy"), nil))
	require.NoError(t, p.Once("test:trigger4", r.handler("proxy"), nil))
	require.NoError(t, p.OnMap(map[string]Handler{"test:trigger5": r.handler("proxy")}, nil))
	assert.Equal(t, 6, b.EventCount())

	count, err := p.EventCount()
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	require.NoError(t, p.Trigger("test:trigger"))
	assert.Equal(t, []string{"direct", "proxy"}, r.got())

	require.NoError(t, p.Destroy())
	assert.Equal(t, 1, b.EventCount())
	assert.Equal(t, []string{"test:trigger"}, b.EventNames())
	assert.True(t, p.IsDestroyed())

	require.NoError(t, b.Trigger("test:trigger"))
	assert.Equal(t, []string{"direct", "proxy", "direct"}, r.got())
}

func TestEventProxy_DestroyedFailsEverything(t *testing.T) {
	b := newTestBus(t)
	p := b.CreateEventProxy()
	require.NoError(t, p.Destroy())

	h := returning(1)
	calls := map[string]func() error{
		"Destroy":      p.Destroy,
		"On":           func() error { return p.On("a", h, nil) },
		"OnMap":        func() error { return p.OnMap(map[string]Handler{"a": h}, nil) },
		"Once":         func() error { return p.Once("a", h, nil) },
		"OnceMap":      func() error { return p.OnceMap(map[string]Handler{"a": h}, nil) },
		"Off":          func() error { return p.Off("", nil, nil) },
		"OffMap":       func() error { return p.OffMap(map[string]Handler{"a": h}, nil) },
		"Trigger":      func() error { return p.Trigger("a") },
		"TriggerDefer": func() error { return p.TriggerDefer("a") },
		"TriggerSync": func() error {
			_, err := p.TriggerSync("a")
			return err
		},
		"TriggerAsync": func() error {
			_, err := p.TriggerAsync("a").Await(context.Background())
			return err
		},
		"EventbusName": func() error {
			_, err := p.EventbusName()
			return err
		},
		"EventCount": func() error {
			_, err := p.EventCount()
			return err
		},
		"EventNames": func() error {
			_, err := p.EventNames()
			return err
		},
		"ForEachEvent": func() error {
			return p.ForEachEvent(func(string, Handler, any) {})
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), ErrProxyDestroyed)
		})
	}
	assert.Zero(t, b.EventCount())
}

func TestEventProxy_ScopedIntrospection(t *testing.T) {
	b := newTestBus(t)
	r := &recorder{}
	require.NoError(t, b.On("direct", r.handler("direct"), nil))

	p := b.CreateEventProxy()
	h1, h2 := r.handler("1"), r.handler("2")
	ctx := &struct{}{}
	require.NoError(t, p.On("test:trigger", h1, ctx))
	require.NoError(t, p.On("test:trigger2", h2, nil))

	names, err := p.EventNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"test:trigger", "test:trigger2"}, names)

	var visited []string
	require.NoError(t, p.ForEachEvent(func(name string, h Handler, c any) {
		visited = append(visited, name)
		if name == "test:trigger" {
			assert.Equal(t, h1, h)
			assert.Equal(t, ctx, c)
		}
	}))
	assert.Equal(t, []string{"test:trigger", "test:trigger2"}, visited)
	assert.ErrorIs(t, p.ForEachEvent(nil), ErrNilVisitor)
}

func TestEventProxy_Off(t *testing.T) {
	b := newTestBus(t)
	r := &recorder{}
	direct := r.handler("direct")
	require.NoError(t, b.On("a", direct, nil))

	p := b.CreateEventProxy()
	h := r.handler("proxy")
	require.NoError(t, p.On("a b", h, nil))

	// Off through the proxy never touches listeners it did not add.
	require.NoError(t, p.Off("a", direct, nil))
	assert.Equal(t, 3, b.EventCount())

	require.NoError(t, p.Off("a", h, nil))
	assert.Equal(t, 2, b.EventCount())

	require.NoError(t, p.OffMap(map[string]Handler{"b": h}, nil))
	assert.Equal(t, 1, b.EventCount())

	count, err := p.EventCount()
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.False(t, p.IsDestroyed())
}

func TestEventProxy_Triggers(t *testing.T) {
	b := newTestBus(t)
	p := b.CreateEventProxy()
	require.NoError(t, p.On("test", returning("foo"), nil))
	require.NoError(t, b.On("test", returning("bar"), nil))

	v, err := p.TriggerSync("test")
	require.NoError(t, err)
	assert.Equal(t, []any{"foo", "bar"}, v)

	v, err = p.TriggerAsync("test").Await(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []any{"foo", "bar"}, v)

	done := make(chan struct{})
	require.NoError(t, p.Once("deferred", Action(func(*Event) { close(done) }), nil))
	require.NoError(t, p.TriggerDefer("deferred"))
	require.NoError(t, b.Flush(testContext(t)))
	<-done

	boom := errors.New("boom")
	require.NoError(t, p.On("fail", failing(boom), nil))
	assert.ErrorIs(t, p.Trigger("fail"), boom)
}

func TestEventProxy_DestroyFromListener(t *testing.T) {
	b := newTestBus(t)
	p := b.CreateEventProxy()

	var destroyErr error
	require.NoError(t, p.On("shutdown", Action(func(*Event) {
		destroyErr = p.Destroy()
	}), nil))

	require.NoError(t, p.Trigger("shutdown"))
	require.NoError(t, destroyErr)
	assert.Zero(t, b.EventCount())
}

func TestEventProxy_ProxyOfProxy(t *testing.T) {
	b := newTestBus(t)
	outer := b.CreateEventProxy()
	inner, err := NewEventProxy(outer)
	require.NoError(t, err)

	require.NoError(t, inner.On("a", returning(1), nil))
	require.NoError(t, outer.On("a", returning(2), nil))
	assert.Equal(t, 2, b.EventCount())

	require.NoError(t, inner.Destroy())
	assert.Equal(t, 1, b.EventCount())
	require.NoError(t, outer.Destroy())
	assert.Zero(t, b.EventCount())
}

package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pending is a result that settles at most once, either resolved with a
// value or rejected with an error. It is safe for concurrent use.
type Pending struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewPending returns an unsettled Pending.
func NewPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Resolved returns a Pending already resolved with v.
func Resolved(v any) *Pending {
	p := NewPending()
	p.Resolve(v)
	return p
}

// Rejected returns a Pending already rejected with err.
func Rejected(err error) *Pending {
	p := NewPending()
	p.Reject(err)
	return p
}

// Go runs fn on a new goroutine and settles the returned Pending with its
// outcome. A panic in fn rejects with a *PanicError.
func Go(fn func() (any, error)) *Pending {
	p := NewPending()
	go func() {
		var (
			v   any
			err error
		)
		panicked, value, stack := protect(func() {
			v, err = fn()
		})
		if panicked {
			p.Reject(&PanicError{Value: value, Stack: stack})
			return
		}
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(v)
	}()
	return p
}

// Resolve settles p with v. Resolving with another *Pending adopts its
// outcome once it settles. Calls after the first settlement are ignored.
func (p *Pending) Resolve(v any) {
	if inner, ok := v.(*Pending); ok {
		if inner == p {
			return
		}
		go func() {
			<-inner.done
			p.settle(inner.value, inner.err)
		}()
		return
	}
	p.settle(v, nil)
}

// Reject settles p with err. Calls after the first settlement are ignored.
func (p *Pending) Reject(err error) {
	p.settle(nil, err)
}

func (p *Pending) settle(v any, err error) {
	p.once.Do(func() {
		p.value = v
		p.err = err
		close(p.done)
	})
}

// Done returns a channel closed once p has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Settled reports whether p has settled.
func (p *Pending) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Await blocks until p settles or ctx is done.
func (p *Pending) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// All resolves to the values in order once every *Pending among them has
// resolved; other values count as already resolved. The first rejection
// rejects the outcome and no partial results are delivered.
func All(ctx context.Context, values ...any) *Pending {
	results := make([]any, len(values))
	copy(results, values)

	var waiting []int
	for i, v := range values {
		if _, ok := v.(*Pending); ok {
			waiting = append(waiting, i)
		}
	}
	if len(waiting) == 0 {
		return Resolved(results)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, i := range waiting {
		p := values[i].(*Pending)
		g.Go(func() error {
			v, err := p.Await(gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}

	out := NewPending()
	go func() {
		if err := g.Wait(); err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(results)
	}()
	return out
}

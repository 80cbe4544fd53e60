package dispatch

import "context"

// Fire invokes every binding in the batch and discards return values.
// The first handler error stops the trigger and is returned. Panics are not
// recovered.
func Fire[B Bound](b Batch[B]) error {
	var err error
	each(b, func(h Handler, e *Event) bool {
		_, err = h.Handle(e)
		return err == nil
	})
	return err
}

// Collect invokes every binding in the batch and gathers the non-nil return
// values in order. Pending values are passed through without waiting. The
// first handler error stops the trigger and is returned with the values
// gathered so far. Panics are not recovered.
func Collect[B Bound](b Batch[B]) (Results, error) {
	var (
		results Results
		err     error
	)
	each(b, func(h Handler, e *Event) bool {
		var v any
		v, err = h.Handle(e)
		if err != nil {
			return false
		}
		if v != nil {
			results = append(results, v)
		}
		return true
	})
	return results, err
}

// CollectSafe is Collect with panic recovery: a panicking handler stops the
// trigger and is reported as a *PanicError.
func CollectSafe[B Bound](b Batch[B]) (Results, error) {
	var (
		results Results
		err     error
	)
	each(b, func(h Handler, e *Event) bool {
		res := Execute(h, e)
		if !res.IsSuccess() {
			err = res.Err()
			return false
		}
		if res.Value != nil {
			results = append(results, res.Value)
		}
		return true
	})
	return results, err
}

// Settle turns collected results into a single pending outcome.
//
// No results resolve to nil. A single result resolves to that value, or is
// returned as is when it already is a *Pending. Two or more results resolve
// to a []any once every pending value has resolved; the first rejection
// rejects the outcome.
func Settle(ctx context.Context, results Results) *Pending {
	switch len(results) {
	case 0:
		return Resolved(nil)
	case 1:
		if p, ok := results[0].(*Pending); ok {
			return p
		}
		return Resolved(results[0])
	default:
		return All(ctx, results...)
	}
}

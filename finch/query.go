package finch

import (
	"context"
	"fmt"
	"sync"

	"github.com/Darkness4/finch/graphql"
	"github.com/Darkness4/finch/telemetry/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Status is the state of a query.
type Status int

const (
	// StatusIdle means nothing has been dispatched yet.
	StatusIdle Status = iota
	// StatusPending means a request is in flight.
	StatusPending
	// StatusSuccess means the last request returned data.
	StatusSuccess
	// StatusError means the last request failed.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is a snapshot of a query state.
type Result[T any] struct {
	Status Status
	Data   T
	Err    error
	// Seq is the sequence number of the request which produced this result.
	Seq uint64
}

// Loading reports whether a request is in flight.
func (r Result[T]) Loading() bool {
	return r.Status == StatusPending
}

type queryOptions struct {
	logger *zerolog.Logger
	skip   bool
}

// QueryOption configures a query.
type QueryOption func(*queryOptions)

// WithLogger sets the logger of the query.
func WithLogger(logger zerolog.Logger) QueryOption {
	return func(o *queryOptions) {
		o.logger = &logger
	}
}

// WithSkip prevents the query from being dispatched on creation.
func WithSkip() QueryOption {
	return func(o *queryOptions) {
		o.skip = true
	}
}

// Query holds the state of a GraphQL document sent over a Sender.
//
// Only the reply of the latest request is applied: replies of requests
// superseded by a Refetch, or arriving after Close, are dropped.
type Query[T any] struct {
	ctx    context.Context
	sender Sender
	env    Envelope
	log    *zerolog.Logger

	mu      sync.Mutex
	result  Result[T]
	seq     uint64
	closed  bool
	changed chan struct{}
}

// UseQuery creates a query and dispatches it, unless WithSkip is given.
//
// The data of the reply is decoded into T. Use map[string]any to keep it opaque.
func UseQuery[T any](
	ctx context.Context,
	sender Sender,
	doc *graphql.Document,
	variables map[string]interface{},
	opts ...QueryOption,
) *Query[T] {
	if sender == nil {
		log.Panic().Msg("sender is nil")
	}
	o := &queryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		logger := log.With().Str("operation", doc.OperationName()).Logger()
		o.logger = &logger
	}

	q := &Query[T]{
		ctx:     ctx,
		sender:  sender,
		env:     NewEnvelope(doc, variables),
		log:     o.logger,
		changed: make(chan struct{}),
	}
	if !o.skip {
		_, _ = q.dispatch(ctx)
	}
	return q
}

// Envelope returns the envelope sent on every dispatch.
func (q *Query[T]) Envelope() Envelope {
	return q.env
}

// Result returns the current state.
func (q *Query[T]) Result() Result[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.result
}

// Changed returns a channel closed on the next state change.
func (q *Query[T]) Changed() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.changed
}

// Wait blocks until the latest request settles.
//
// If nothing was dispatched, the current state is returned immediately.
func (q *Query[T]) Wait(ctx context.Context) (Result[T], error) {
	q.mu.Lock()
	seq := q.seq
	q.mu.Unlock()
	return q.waitFor(ctx, seq)
}

// Refetch dispatches the envelope again and waits for its reply.
//
// The message is sent before Refetch blocks. If another Refetch supersedes
// this one, the result of the newer request is returned.
func (q *Query[T]) Refetch(ctx context.Context) (Result[T], error) {
	seq, err := q.dispatch(ctx)
	if err != nil {
		return q.Result(), err
	}
	return q.waitFor(ctx, seq)
}

// Close stops applying replies to the query. Pending waiters return ErrClosed.
func (q *Query[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notify()
}

// dispatch sends the envelope under ctx, the context of the caller.
func (q *Query[T]) dispatch(ctx context.Context) (uint64, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, ErrClosed
	}
	q.seq++
	seq := q.seq
	q.result = Result[T]{
		Status: StatusPending,
		Data:   q.result.Data,
		Seq:    seq,
	}
	q.notify()
	q.mu.Unlock()

	q.log.Debug().Uint64("seq", seq).Msg("dispatching")
	send(ctx, q.sender, q.env, q.log, func(resp *graphql.Response, err error) {
		q.settle(seq, resp, err)
	})
	return seq, nil
}

func (q *Query[T]) settle(seq uint64, resp *graphql.Response, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || seq != q.seq {
		metrics.Dispatch.StaleReplies.Add(
			q.ctx,
			1,
			metric.WithAttributes(attribute.String("type", string(q.env.Type))),
		)
		q.log.Debug().
			Uint64("seq", seq).
			Uint64("latest", q.seq).
			Bool("closed", q.closed).
			Msg("dropping stale reply")
		return
	}

	res := Result[T]{Seq: seq}
	switch {
	case err != nil:
		res.Status = StatusError
		res.Err = err
	default:
		if derr := resp.UnmarshalData(&res.Data); derr != nil {
			res.Status = StatusError
			res.Err = fmt.Errorf("failed to decode data: %w", derr)
		} else if gqlErr := resp.Err(); gqlErr != nil {
			res.Status = StatusError
			res.Err = gqlErr
		} else {
			res.Status = StatusSuccess
		}
	}
	if res.Err != nil {
		q.log.Err(res.Err).Uint64("seq", seq).Msg("query failed")
	}
	q.result = res
	q.notify()
}

func (q *Query[T]) waitFor(ctx context.Context, seq uint64) (Result[T], error) {
	for {
		q.mu.Lock()
		res := q.result
		closed := q.closed
		ch := q.changed
		q.mu.Unlock()

		if res.Status != StatusPending && res.Seq >= seq {
			return res, nil
		}
		if closed {
			return res, ErrClosed
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return q.Result(), ctx.Err()
		}
	}
}

// notify must be called with the lock held.
func (q *Query[T]) notify() {
	close(q.changed)
	q.changed = make(chan struct{})
}

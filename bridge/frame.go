// Package bridge provides the framing shared by the finch transports.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Darkness4/finch/finch"
	"github.com/Darkness4/finch/graphql"
	"github.com/Darkness4/finch/telemetry/metrics"
	finchsync "github.com/Darkness4/finch/utils/sync"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "finch/bridge"

// ErrConnectionClosed is returned to pending callbacks when the connection is lost.
var ErrConnectionClosed = errors.New("connection closed before a reply was received")

// Request is an envelope tagged with a correlation ID.
type Request struct {
	ID       string         `json:"id"`
	Envelope finch.Envelope `json:"envelope"`
	// Trace carries the trace context of the sender.
	Trace propagation.MapCarrier `json:"trace,omitempty"`
}

// NewRequest creates a request and injects the trace context of ctx.
func NewRequest(ctx context.Context, id string, env finch.Envelope) Request {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		carrier = nil
	}
	return Request{ID: id, Envelope: env, Trace: carrier}
}

// DecodeRequest decodes a request frame.
//
// When only the envelope is invalid, the returned request still holds the ID
// of the frame so that the error can be answered.
func DecodeRequest(b []byte) (Request, error) {
	var frame struct {
		ID       string                 `json:"id"`
		Envelope json.RawMessage        `json:"envelope"`
		Trace    propagation.MapCarrier `json:"trace,omitempty"`
	}
	if err := json.Unmarshal(b, &frame); err != nil {
		return Request{}, fmt.Errorf("invalid request frame: %w", err)
	}
	req := Request{ID: frame.ID, Trace: frame.Trace}
	if len(frame.Envelope) == 0 {
		return req, finch.ErrMissingDocument
	}
	if err := json.Unmarshal(frame.Envelope, &req.Envelope); err != nil {
		return req, err
	}
	return req, nil
}

// Response is the reply to a Request with the same ID.
type Response struct {
	ID       string            `json:"id"`
	Response *graphql.Response `json:"response,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Reply converts the response to the callback argument of a Sender.
func (r Response) Reply() finch.Reply {
	if r.Error != "" {
		return finch.Reply{Err: errors.New(r.Error)}
	}
	return finch.Reply{Response: r.Response}
}

// Handle runs the handler for a request and builds its response.
func Handle(ctx context.Context, h finch.Handler, req Request) Response {
	ctx = otel.GetTextMapPropagator().Extract(ctx, req.Trace)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "finch.Handle", trace.WithAttributes(
		attribute.String("type", string(req.Envelope.Type)),
		attribute.String("operation", req.Envelope.Query.OperationName()),
	))
	defer span.End()
	attrs := metric.WithAttributes(attribute.String("type", string(req.Envelope.Type)))
	metrics.Relay.Handled.Add(ctx, 1, attrs)

	resp, err := h.HandleMessage(ctx, req.Envelope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Err(err).
			Str("id", req.ID).
			Str("operation", req.Envelope.Query.OperationName()).
			Msg("handler failed")
		return Response{ID: req.ID, Error: err.Error()}
	}
	return Response{ID: req.ID, Response: resp}
}

// Correlator matches responses to the callbacks of in-flight requests.
type Correlator struct {
	mu      sync.Mutex
	closed  bool
	pending *finchsync.Map[string, func(finch.Reply)]
}

// NewCorrelator creates an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{
		pending: finchsync.NewMap[string, func(finch.Reply)](),
	}
}

// Register stores the callback and returns the ID of the request.
//
// After FailAll, Register returns ErrConnectionClosed and the callback is not stored.
func (c *Correlator) Register(callback func(finch.Reply)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrConnectionClosed
	}
	id := uuid.New().String()
	c.pending.Store(id, callback)
	return id, nil
}

// Resolve calls the callback registered for the response ID.
//
// It returns false if no request is waiting for this ID.
func (c *Correlator) Resolve(resp Response) bool {
	callback, ok := c.pending.LoadAndDelete(resp.ID)
	if !ok {
		log.Warn().Str("id", resp.ID).Msg("received a response for an unknown request")
		return false
	}
	callback(resp.Reply())
	return true
}

// Fail calls the callback registered for id with err.
func (c *Correlator) Fail(id string, err error) {
	if callback, ok := c.pending.LoadAndDelete(id); ok {
		callback(finch.Reply{Err: err})
	}
}

// FailAll fails every in-flight request and rejects later registrations.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	c.closed = true
	callbacks := c.pending.Drain()
	c.mu.Unlock()
	for _, callback := range callbacks {
		callback(finch.Reply{Err: err})
	}
}

// Len returns the number of in-flight requests.
func (c *Correlator) Len() int {
	return c.pending.Len()
}

// Package finch dispatches GraphQL documents to a background handler over a message channel.
package finch

import (
	"context"
	"errors"

	"github.com/Darkness4/finch/graphql"
)

// MessageKey identifies the category of a message for the receiving handler.
type MessageKey string

const (
	// MessageKeyGeneric tags GraphQL operations sent by queries and mutations.
	MessageKeyGeneric MessageKey = "FINCH_GENERIC"
)

var (
	// ErrEmptyReply is returned when the host replies without payload and without error.
	ErrEmptyReply = errors.New("empty reply")
	// ErrClosed is returned when using a closed query.
	ErrClosed = errors.New("query closed")
	// ErrUnknownMessageKey is returned when no handler is registered for a message key.
	ErrUnknownMessageKey = errors.New("unknown message key")
	// ErrMissingDocument is returned when an envelope carries no query document.
	ErrMissingDocument = errors.New("missing query document")
)

// Envelope is the message sent over the channel.
type Envelope struct {
	Query     *graphql.Document      `json:"query"`
	Variables map[string]interface{} `json:"variables"`
	Type      MessageKey             `json:"type"`
}

// NewEnvelope builds a Generic envelope.
func NewEnvelope(doc *graphql.Document, variables map[string]interface{}) Envelope {
	if variables == nil {
		variables = map[string]interface{}{}
	}
	return Envelope{
		Query:     doc,
		Variables: variables,
		Type:      MessageKeyGeneric,
	}
}

// Reply is what the host passes to the callback of a sent message.
//
// Err is set when the host failed to deliver the message or the handler
// failed. In that case Response is usually nil.
type Reply struct {
	Response *graphql.Response
	Err      error
}

// Sender is a host message channel.
//
// SendMessage must invoke callback exactly once, either synchronously or later.
// ctx carries request-scoped values such as the trace span. The callback is
// still expected when ctx is done.
type Sender interface {
	SendMessage(ctx context.Context, env Envelope, callback func(Reply))
}

// SenderFunc is an adapter to use a function as a Sender.
type SenderFunc func(ctx context.Context, env Envelope, callback func(Reply))

// SendMessage calls f(ctx, env, callback).
func (f SenderFunc) SendMessage(ctx context.Context, env Envelope, callback func(Reply)) {
	f(ctx, env, callback)
}

// Handler answers envelopes on the receiving side of the channel.
type Handler interface {
	HandleMessage(ctx context.Context, env Envelope) (*graphql.Response, error)
}

// HandlerFunc is an adapter to use a function as a Handler.
type HandlerFunc func(ctx context.Context, env Envelope) (*graphql.Response, error)

// HandleMessage calls f(ctx, env).
func (f HandlerFunc) HandleMessage(
	ctx context.Context,
	env Envelope,
) (*graphql.Response, error) {
	return f(ctx, env)
}

// DispatchError is a failure reported by the host when sending a message.
type DispatchError struct {
	Message string
	Err     error
}

// Error returns the host message.
func (e *DispatchError) Error() string {
	return e.Message
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// result maps a reply to the outcome of a dispatch.
func (r Reply) result() (*graphql.Response, error) {
	if r.Err != nil {
		return nil, &DispatchError{Message: r.Err.Error(), Err: r.Err}
	}
	if r.Response == nil {
		return nil, ErrEmptyReply
	}
	return r.Response, nil
}

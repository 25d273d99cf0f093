package finch

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Loopback is a Sender delivering messages to a Handler of the same process.
//
// Each message is handled on its own goroutine, so callbacks are always asynchronous.
type Loopback struct {
	ctx     context.Context
	handler Handler
}

// NewLoopback creates a Loopback. ctx bounds every handler call.
func NewLoopback(ctx context.Context, handler Handler) *Loopback {
	if handler == nil {
		log.Panic().Msg("handler is nil")
	}
	return &Loopback{
		ctx:     ctx,
		handler: handler,
	}
}

// SendMessage implements Sender.
//
// The handler runs under the Loopback context, with the span of ctx.
func (l *Loopback) SendMessage(ctx context.Context, env Envelope, callback func(Reply)) {
	hctx := trace.ContextWithSpan(l.ctx, trace.SpanFromContext(ctx))
	go func() {
		resp, err := l.handler.HandleMessage(hctx, env)
		callback(Reply{Response: resp, Err: err})
	}()
}

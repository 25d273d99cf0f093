package finch

import (
	"context"
	"sync"
	"time"

	"github.com/Darkness4/finch/graphql"
	"github.com/Darkness4/finch/telemetry/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "finch"

// send sends the envelope and calls done with the outcome of the first callback invocation.
func send(
	ctx context.Context,
	sender Sender,
	env Envelope,
	logger *zerolog.Logger,
	done func(*graphql.Response, error),
) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "finch.Dispatch", trace.WithAttributes(
		attribute.String("type", string(env.Type)),
		attribute.String("operation", env.Query.OperationName()),
	))
	attrs := metric.WithAttributes(attribute.String("type", string(env.Type)))
	metrics.Dispatch.Calls.Add(ctx, 1, attrs)
	start := time.Now()

	var once sync.Once
	sender.SendMessage(ctx, env, func(r Reply) {
		called := false
		once.Do(func() {
			called = true
			metrics.Dispatch.Duration.Record(ctx, time.Since(start).Seconds(), attrs)
			resp, err := r.result()
			if err != nil {
				metrics.Dispatch.Errors.Add(ctx, 1, attrs)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
			done(resp, err)
		})
		if !called {
			logger.Warn().
				Str("operation", env.Query.OperationName()).
				Msg("callback invoked more than once, ignoring")
		}
	})
}

// Dispatch sends the envelope and waits for its reply.
//
// There is no timeout: Dispatch waits until the host invokes the callback
// or the context is done.
func Dispatch(ctx context.Context, sender Sender, env Envelope) (*graphql.Response, error) {
	type outcome struct {
		resp *graphql.Response
		err  error
	}
	ch := make(chan outcome, 1)
	send(ctx, sender, env, &log.Logger, func(resp *graphql.Response, err error) {
		ch <- outcome{resp: resp, err: err}
	})

	select {
	case o := <-ch:
		return o.resp, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

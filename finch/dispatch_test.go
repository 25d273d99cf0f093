package finch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Darkness4/finch/finch"
	"github.com/Darkness4/finch/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestDispatch(t *testing.T) {
	env := finch.NewEnvelope(testDoc, map[string]any{"id": 1})

	t.Run("success", func(t *testing.T) {
		sender := finch.SenderFunc(func(_ context.Context, _ finch.Envelope, callback func(finch.Reply)) {
			callback(finch.Reply{Response: barResponse()})
		})

		resp, err := finch.Dispatch(context.Background(), sender, env)

		require.NoError(t, err)
		assert.JSONEq(t, `{"bar":true}`, string(resp.Data))
	})

	t.Run("host error takes precedence", func(t *testing.T) {
		hostErr := errors.New("could not establish connection, receiving end does not exist")
		sender := finch.SenderFunc(func(_ context.Context, _ finch.Envelope, callback func(finch.Reply)) {
			callback(finch.Reply{Response: barResponse(), Err: hostErr})
		})

		resp, err := finch.Dispatch(context.Background(), sender, env)

		assert.Nil(t, resp)
		assert.EqualError(t, err, hostErr.Error())
		assert.ErrorIs(t, err, hostErr)
	})

	t.Run("context canceled", func(t *testing.T) {
		sender := finch.SenderFunc(func(_ context.Context, _ finch.Envelope, _ func(finch.Reply)) {})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := finch.Dispatch(ctx, sender, env)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestMux(t *testing.T) {
	mux := finch.NewMux()
	mux.Handle(
		finch.MessageKeyGeneric,
		finch.HandlerFunc(func(_ context.Context, env finch.Envelope) (*graphql.Response, error) {
			assert.Equal(t, "foo", env.Query.OperationName())
			return barResponse(), nil
		}),
	)

	t.Run("routes generic messages", func(t *testing.T) {
		resp, err := mux.HandleMessage(context.Background(), finch.NewEnvelope(testDoc, nil))
		require.NoError(t, err)
		assert.JSONEq(t, `{"bar":true}`, string(resp.Data))
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := mux.HandleMessage(context.Background(), finch.NewEnvelope(nil, nil))
		assert.ErrorIs(t, err, finch.ErrMissingDocument)
	})

	t.Run("unknown key", func(t *testing.T) {
		env := finch.NewEnvelope(testDoc, nil)
		env.Type = "FINCH_UNKNOWN"
		_, err := mux.HandleMessage(context.Background(), env)
		assert.ErrorIs(t, err, finch.ErrUnknownMessageKey)
	})
}

func TestLoopback(t *testing.T) {
	handler := finch.HandlerFunc(func(_ context.Context, env finch.Envelope) (*graphql.Response, error) {
		if env.Variables["fail"] == true {
			return nil, errors.New("handler failed")
		}
		return barResponse(), nil
	})
	sender := finch.NewLoopback(context.Background(), handler)

	t.Run("query", func(t *testing.T) {
		q := finch.UseQuery[map[string]any](context.Background(), sender, testDoc, nil)
		res, err := q.Wait(context.Background())

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"bar": true}, res.Data)
	})

	t.Run("handler error", func(t *testing.T) {
		q := finch.UseQuery[map[string]any](
			context.Background(),
			sender,
			testDoc,
			map[string]any{"fail": true},
		)
		res, err := q.Wait(context.Background())

		require.NoError(t, err)
		assert.EqualError(t, res.Err, "handler failed")
	})
}

func TestDispatchTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	t.Run("sender sees the dispatch span", func(t *testing.T) {
		var got trace.SpanContext
		sender := finch.SenderFunc(func(ctx context.Context, _ finch.Envelope, callback func(finch.Reply)) {
			got = trace.SpanContextFromContext(ctx)
			callback(finch.Reply{Response: barResponse()})
		})

		_, err := finch.Dispatch(context.Background(), sender, finch.NewEnvelope(testDoc, nil))

		require.NoError(t, err)
		require.True(t, got.IsValid())
		var dispatched []trace.SpanContext
		for _, span := range recorder.Ended() {
			if span.Name() == "finch.Dispatch" {
				dispatched = append(dispatched, span.SpanContext())
			}
		}
		assert.Contains(t, dispatched, got)
	})

	t.Run("loopback handler runs under the dispatch span", func(t *testing.T) {
		handled := make(chan trace.SpanContext, 1)
		handler := finch.HandlerFunc(func(ctx context.Context, _ finch.Envelope) (*graphql.Response, error) {
			handled <- trace.SpanContextFromContext(ctx)
			return barResponse(), nil
		})
		sender := finch.NewLoopback(context.Background(), handler)

		_, err := finch.Dispatch(context.Background(), sender, finch.NewEnvelope(testDoc, nil))

		require.NoError(t, err)
		assert.True(t, (<-handled).IsValid())
	})
}

// Package metrics defines the instruments recorded by finch.
package metrics

import (
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "finch"

// Dispatch holds the instruments for message dispatching.
var Dispatch = struct {
	Calls        metric.Int64Counter
	Errors       metric.Int64Counter
	Duration     metric.Float64Histogram
	StaleReplies metric.Int64Counter
}{}

// Relay holds the instruments of the background relay.
var Relay = struct {
	Handled     metric.Int64Counter
	Connections metric.Int64UpDownCounter
}{}

func init() {
	meter := otel.Meter(meterName)
	var err error

	Dispatch.Calls, err = meter.Int64Counter(
		"finch.dispatch.calls",
		metric.WithDescription("Number of messages dispatched."),
	)
	if err != nil {
		log.Panic().Err(err).Msg("failed to create metric")
	}
	Dispatch.Errors, err = meter.Int64Counter(
		"finch.dispatch.errors",
		metric.WithDescription("Number of dispatches which settled with an error."),
	)
	if err != nil {
		log.Panic().Err(err).Msg("failed to create metric")
	}
	Dispatch.Duration, err = meter.Float64Histogram(
		"finch.dispatch.duration",
		metric.WithDescription("Time between sending a message and receiving its reply."),
		metric.WithUnit("s"),
	)
	if err != nil {
		log.Panic().Err(err).Msg("failed to create metric")
	}
	Dispatch.StaleReplies, err = meter.Int64Counter(
		"finch.dispatch.stale_replies",
		metric.WithDescription("Number of replies dropped because a newer request or a close superseded them."),
	)
	if err != nil {
		log.Panic().Err(err).Msg("failed to create metric")
	}

	Relay.Handled, err = meter.Int64Counter(
		"finch.relay.handled",
		metric.WithDescription("Number of messages handled by the relay."),
	)
	if err != nil {
		log.Panic().Err(err).Msg("failed to create metric")
	}
	Relay.Connections, err = meter.Int64UpDownCounter(
		"finch.relay.connections",
		metric.WithDescription("Number of open bridge connections."),
	)
	if err != nil {
		log.Panic().Err(err).Msg("failed to create metric")
	}
}

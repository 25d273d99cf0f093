// Package relay provides the relay command, the background side of the finch bridge.
package relay

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	// Import the pprof package to enable profiling via HTTP.
	_ "net/http/pprof"

	// Import the godeltaprof package to enable continuous profiling via Pyroscope.
	_ "github.com/grafana/pyroscope-go/godeltaprof/http/pprof"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"

	"github.com/Darkness4/finch/bridge/native"
	"github.com/Darkness4/finch/bridge/ws"
	"github.com/Darkness4/finch/finch"
	"github.com/Darkness4/finch/graphql"
	"github.com/Darkness4/finch/telemetry"
	"github.com/Darkness4/finch/upstream"
	"github.com/Darkness4/finch/utils"
	"github.com/Darkness4/finch/utils/secret"
	"github.com/Darkness4/finch/utils/strings"
	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var (
	configPath             string
	listenAddress          string
	nativeMode             bool
	enableTracesExporting  bool
	enableMetricsExporting bool
)

// Command is the command for relaying finch messages to an upstream GraphQL endpoint.
var Command = &cli.Command{
	Name:  "relay",
	Usage: "Relay finch messages to an upstream GraphQL endpoint.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Required:    true,
			Usage:       `Config file path. (required)`,
			Destination: &configPath,
			EnvVars:     []string{"FINCH_CONFIG"},
		},
		&cli.StringFlag{
			Name:        "listen-address",
			Value:       ":8080",
			Destination: &listenAddress,
			Usage:       "The address to listen on for WebSocket clients, metrics and pprof. Empty to disable.",
			EnvVars:     []string{"FINCH_LISTEN_ADDRESS"},
		},
		&cli.BoolFlag{
			Name:        "native",
			Usage:       "Serve the native messaging protocol on stdin/stdout.",
			Destination: &nativeMode,
			EnvVars:     []string{"FINCH_NATIVE"},
		},
		&cli.BoolFlag{
			Name:        "traces.export",
			Usage:       "Enable traces push. (To configure the exporter, set the OTEL_EXPORTER_OTLP_ENDPOINT environment variable, see https://opentelemetry.io/docs/languages/sdk-configuration/otlp-exporter/)",
			Value:       false,
			Destination: &enableTracesExporting,
			EnvVars:     []string{"OTEL_EXPORTER_OTLP_TRACES_ENABLED"},
		},
		&cli.BoolFlag{
			Name:        "metrics.export",
			Usage:       "Enable metrics push. (To configure the exporter, set the OTEL_EXPORTER_OTLP_ENDPOINT environment variable, see https://opentelemetry.io/docs/languages/sdk-configuration/otlp-exporter/). Note that a Prometheus path is already exposed at /metrics.",
			Value:       false,
			Destination: &enableMetricsExporting,
			EnvVars:     []string{"OTEL_EXPORTER_OTLP_METRICS_ENABLED"},
		},
	},
	Action: func(cCtx *cli.Context) error {
		ctx, cancel := context.WithCancel(cCtx.Context)
		defer cancel()

		// Trap cleanup
		cleanChan := make(chan os.Signal, 1)
		signal.Notify(cleanChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-cleanChan
			cancel()
		}()

		// Setup telemetry
		prom, err := prometheus.New()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create prometheus exporter")
		}

		telOpts := []telemetry.Option{
			telemetry.WithMetricReader(prom),
		}

		if enableMetricsExporting {
			metricExporter, err := otlpmetricgrpc.New(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to create OTEL metric exporter")
			}
			telOpts = append(telOpts, telemetry.WithMetricExporter(metricExporter))
		}

		if enableTracesExporting {
			traceExporter, err := otlptracegrpc.New(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to create OTEL trace exporter")
			}
			telOpts = append(telOpts, telemetry.WithTraceExporter(traceExporter))
		}

		shutdown, err := telemetry.SetupOTELSDK(ctx, telOpts...)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to setup OTEL SDK")
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Err(err).Msg("failed to shutdown OTEL SDK")
			}
		}()

		configChan := make(chan *Config)
		observeErr := make(chan error, 1)
		go func() {
			observeErr <- ObserveConfig(ctx, configPath, configChan)
		}()

		var config *Config
		select {
		case config = <-configChan:
		case err := <-observeErr:
			log.Err(err).Str("config", configPath).Msg("failed to load config")
			return err
		}

		r, err := NewRelay(config)
		if err != nil {
			return err
		}
		go func() {
			for config := range configChan {
				if err := r.Apply(config); err != nil {
					log.Err(err).Msg("failed to apply config, keeping the previous one")
				}
			}
		}()

		if listenAddress != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/ws", r)
				mux.Handle("/metrics", promhttp.Handler())
				mux.Handle("/debug/", http.DefaultServeMux)
				log.Info().Str("listenAddress", listenAddress).Msg("listening")
				if err := http.ListenAndServe(listenAddress, mux); err != nil {
					log.Fatal().Err(err).Msg("fail to serve http")
				}
			}()
		}

		if nativeMode {
			log.Info().Msg("serving native messaging on stdio")
			err := native.Serve(ctx, os.Stdin, os.Stdout, r)
			cancel()
			return err
		}

		<-ctx.Done()
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Info().Msg("relay stopped")
			return nil
		}
		return ctx.Err()
	},
}

type relayState struct {
	hash    string
	handler finch.Handler
	ws      *ws.Handler
}

// Relay serves the current configuration and swaps it on reload.
type Relay struct {
	state atomic.Pointer[relayState]
}

// NewRelay creates a relay from a config.
func NewRelay(config *Config) (*Relay, error) {
	r := &Relay{}
	if err := r.Apply(config); err != nil {
		return nil, err
	}
	return r, nil
}

// Apply replaces the upstream and origin policy. In-flight messages finish on the previous upstream.
//
// On error, the previous configuration stays in use.
func (r *Relay) Apply(config *Config) error {
	hash := utils.Hash(config)
	if current := r.state.Load(); current != nil && current.hash == hash {
		log.Debug().Msg("config unchanged, skipping")
		return nil
	}

	headers := make(map[string]string, len(config.Upstream.Headers)+1)
	maps.Copy(headers, config.Upstream.Headers)
	if config.Upstream.TokenFile != "" {
		token, err := secret.NewReader(config.Upstream.TokenFile).Read()
		if err != nil {
			log.Err(err).Str("tokenFile", config.Upstream.TokenFile).Msg("failed to read token")
			return err
		}
		headers["Authorization"] = "Bearer " + token
	}

	mux := finch.NewMux()
	mux.Handle(finch.MessageKeyGeneric, upstream.NewClient(
		config.Upstream.URL,
		upstream.WithHeaders(headers),
		upstream.WithTimeout(config.Upstream.Timeout),
	))
	r.state.Store(&relayState{
		hash:    hash,
		handler: mux,
		ws: ws.NewHandler(mux, &websocket.AcceptOptions{
			OriginPatterns: config.OriginPatterns,
		}),
	})
	log.Info().
		Str("upstream", config.Upstream.URL).
		Any("headers", strings.CensorValues(headers, 4)).
		Strs("originPatterns", config.OriginPatterns).
		Msg("relay configured")
	return nil
}

// HandleMessage implements finch.Handler.
func (r *Relay) HandleMessage(
	ctx context.Context,
	env finch.Envelope,
) (*graphql.Response, error) {
	return r.state.Load().handler.HandleMessage(ctx, env)
}

// ServeHTTP implements http.Handler.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.state.Load().ws.ServeHTTP(w, req)
}

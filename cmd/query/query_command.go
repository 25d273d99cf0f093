// Package query provides a command to send a GraphQL document over a finch bridge.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Darkness4/finch/bridge/native"
	"github.com/Darkness4/finch/bridge/ws"
	"github.com/Darkness4/finch/finch"
	"github.com/Darkness4/finch/graphql"
	"github.com/Darkness4/finch/upstream"
	"github.com/Darkness4/finch/utils/try"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var (
	wsURL         string
	upstreamURL   string
	nativeHost    string
	headers       cli.StringSlice
	vars          cli.StringSlice
	variablesJSON string
	refetch       int
	timeout       time.Duration
	printTraces   bool
)

// Command is the command for sending a GraphQL document.
var Command = &cli.Command{
	Name:      "query",
	Usage:     "Send a GraphQL document and print the data.",
	ArgsUsage: "file (or - for stdin)",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "ws-url",
			Category:    "Transport:",
			Usage:       "URL of a relay WebSocket, e.g. ws://localhost:8080/ws.",
			Destination: &wsURL,
			EnvVars:     []string{"FINCH_WS_URL"},
		},
		&cli.StringFlag{
			Name:        "upstream",
			Category:    "Transport:",
			Usage:       "URL of a GraphQL endpoint queried in-process.",
			Destination: &upstreamURL,
			EnvVars:     []string{"FINCH_UPSTREAM"},
		},
		&cli.StringFlag{
			Name:        "native-host",
			Category:    "Transport:",
			Usage:       "Path of a native messaging host to spawn, e.g. \"finch relay --native\".",
			Destination: &nativeHost,
		},
		&cli.StringSliceFlag{
			Name:        "header",
			Category:    "Transport:",
			Usage:       "Header sent to the upstream, formatted as Key=Value. Only with --upstream.",
			Destination: &headers,
		},
		&cli.StringSliceFlag{
			Name:        "var",
			Category:    "Variables:",
			Usage:       "Variable formatted as key=value. The value is parsed as JSON, or kept as a string.",
			Destination: &vars,
		},
		&cli.StringFlag{
			Name:        "variables",
			Category:    "Variables:",
			Usage:       "Variables as a JSON object. --var takes precedence.",
			Destination: &variablesJSON,
		},
		&cli.IntFlag{
			Name:        "refetch",
			Usage:       "Number of times the document is sent again after the first reply.",
			Destination: &refetch,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Give up waiting for a reply after this duration. 0 waits forever.",
			Destination: &timeout,
		},
		&cli.BoolFlag{
			Name:        "traces.stdout",
			Usage:       "Print the traces to stderr.",
			Destination: &printTraces,
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

		if printTraces {
			shutdown, err := setupTraces(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Err(err).Msg("failed to shutdown OTEL SDK")
				}
			}()
		}

		doc, err := readDocument(cCtx.Args().First())
		if err != nil {
			return err
		}
		variables, err := ParseVariables(variablesJSON, vars.Value())
		if err != nil {
			return err
		}

		sender, closer, err := openSender(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := closer.Close(); err != nil {
				log.Err(err).Msg("failed to close transport")
			}
		}()

		if timeout > 0 {
			var cancelTimeout context.CancelFunc
			ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
			defer cancelTimeout()
		}

		q := finch.UseQuery[json.RawMessage](ctx, sender, doc, variables)
		defer q.Close()
		res, err := q.Wait(ctx)
		if err != nil {
			return err
		}
		if err := printResult(cCtx.App.Writer, res); err != nil {
			return err
		}

		for i := 0; i < refetch; i++ {
			res, err := q.Refetch(ctx)
			if err != nil {
				return err
			}
			if err := printResult(cCtx.App.Writer, res); err != nil {
				return err
			}
		}
		return nil
	},
}

func openSender(ctx context.Context) (finch.Sender, io.Closer, error) {
	switch {
	case wsURL != "":
		client, err := try.DoExponentialBackoffWithContextAndResult(
			ctx,
			5,
			time.Second,
			2,
			30*time.Second,
			func(ctx context.Context) (*ws.Client, error) {
				return ws.Dial(ctx, wsURL, nil)
			},
		)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case nativeHost != "":
		name, args, err := ParseCommandLine(nativeHost)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --native-host: %w", err)
		}
		client, err := native.Spawn(ctx, name, args...)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case upstreamURL != "":
		h, err := parseHeaders(headers.Value())
		if err != nil {
			return nil, nil, err
		}
		client := upstream.NewClient(upstreamURL, upstream.WithHeaders(h))
		return finch.NewLoopback(ctx, client), nopCloser{}, nil
	default:
		return nil, nil, errors.New("no transport: set --ws-url, --native-host or --upstream")
	}
}

// ErrEmptyCommand is returned when a command line has no program name.
var ErrEmptyCommand = errors.New("empty command")

// ParseCommandLine splits a command line on spaces into a program name and its arguments.
func ParseCommandLine(line string) (string, []string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, ErrEmptyCommand
	}
	return fields[0], fields[1:], nil
}

func readDocument(path string) (*graphql.Document, error) {
	var (
		b   []byte
		err error
	)
	switch path {
	case "":
		return nil, errors.New("missing document file")
	case "-":
		b, err = io.ReadAll(os.Stdin)
	default:
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return graphql.Parse(string(b))
}

// ParseVariables merges a JSON object with key=value pairs.
func ParseVariables(raw string, pairs []string) (map[string]interface{}, error) {
	variables := map[string]interface{}{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &variables); err != nil {
			return nil, fmt.Errorf("invalid variables: %w", err)
		}
	}
	for _, pair := range pairs {
		k, v, found := strings.Cut(pair, "=")
		if !found || k == "" {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", pair)
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			parsed = v
		}
		variables[k] = parsed
	}
	return variables, nil
}

func parseHeaders(pairs []string) (map[string]string, error) {
	h := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, found := strings.Cut(pair, "=")
		if !found || k == "" {
			return nil, fmt.Errorf("invalid header %q, expected Key=Value", pair)
		}
		h[k] = v
	}
	return h, nil
}

func printResult(w io.Writer, res finch.Result[json.RawMessage]) error {
	if res.Err != nil {
		log.Err(res.Err).Uint64("seq", res.Seq).Msg("query failed")
		return res.Err
	}
	b, err := json.MarshalIndent(res.Data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

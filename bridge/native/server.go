package native

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/Darkness4/finch/bridge"
	"github.com/Darkness4/finch/finch"
	"github.com/Darkness4/finch/telemetry/metrics"
	"github.com/rs/zerolog/log"
)

// Serve reads requests from r, handles them concurrently and writes the replies to w.
//
// Serve returns nil when r reaches EOF, after every in-flight request is answered.
// A request with an invalid envelope is answered with an error.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h finch.Handler) error {
	metrics.Relay.Connections.Add(ctx, 1)
	defer metrics.Relay.Connections.Add(ctx, -1)

	var wmu sync.Mutex
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var frame json.RawMessage
		if err := ReadMessage(r, &frame, MaxClientMessageSize); err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Msg("native client disconnected")
				return nil
			}
			log.Err(err).Msg("failed to read native message")
			return err
		}

		req, decodeErr := bridge.DecodeRequest(frame)
		if decodeErr != nil {
			log.Err(decodeErr).Str("id", req.ID).Msg("invalid native request")
			if req.ID == "" {
				continue
			}
		}

		wg.Add(1)
		go func(req bridge.Request, decodeErr error) {
			defer wg.Done()
			var resp bridge.Response
			if decodeErr != nil {
				resp = bridge.Response{ID: req.ID, Error: decodeErr.Error()}
			} else {
				resp = bridge.Handle(ctx, h, req)
			}
			wmu.Lock()
			defer wmu.Unlock()
			if err := WriteMessage(w, resp, MaxHostMessageSize); err != nil {
				log.Err(err).Str("id", req.ID).Msg("failed to write native message")
				if errors.Is(err, ErrMessageTooLarge) {
					_ = WriteMessage(w, bridge.Response{
						ID:    req.ID,
						Error: err.Error(),
					}, MaxHostMessageSize)
				}
			}
		}(req, decodeErr)
	}
}

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/Darkness4/finch/bridge"
	"github.com/Darkness4/finch/finch"
	"github.com/Darkness4/finch/telemetry/metrics"
	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

// Handler serves a finch.Handler over WebSocket connections.
type Handler struct {
	handler finch.Handler
	opts    *websocket.AcceptOptions
}

// NewHandler creates a Handler. opts may be nil.
func NewHandler(h finch.Handler, opts *websocket.AcceptOptions) *Handler {
	if h == nil {
		log.Panic().Msg("handler is nil")
	}
	if opts == nil {
		opts = &websocket.AcceptOptions{}
	}
	opts.Subprotocols = []string{Subprotocol}
	return &Handler{
		handler: h,
		opts:    opts,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("remote", r.RemoteAddr).Logger()
	conn, err := websocket.Accept(w, r, h.opts)
	if err != nil {
		logger.Err(err).Msg("failed to accept websocket")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx := r.Context()
	metrics.Relay.Connections.Add(ctx, 1)
	defer metrics.Relay.Connections.Add(ctx, -1)
	logger.Info().Msg("websocket client connected")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		msgType, msg, err := conn.Read(ctx)
		if err != nil {
			var closeError websocket.CloseError
			if errors.As(err, &closeError) && closeError.Code == websocket.StatusNormalClosure {
				logger.Info().Msg("websocket closed cleanly")
				return
			}
			if !errors.Is(err, context.Canceled) {
				logger.Err(err).Msg("failed to read websocket")
			}
			return
		}
		if msgType != websocket.MessageText {
			logger.Error().Int("type", int(msgType)).Msg("received unhandled msg type")
			continue
		}

		req, decodeErr := bridge.DecodeRequest(msg)
		if decodeErr != nil {
			logger.Err(decodeErr).
				Str("id", req.ID).
				Str("msg", string(msg)).
				Msg("invalid request")
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
				resp = bridge.Handle(ctx, h.handler, req)
			}
			b, err := json.Marshal(resp)
			if err != nil {
				logger.Err(err).Str("id", req.ID).Msg("failed to marshal response")
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
				logger.Err(err).Str("id", req.ID).Msg("failed to write response")
			}
		}(req, decodeErr)
	}
}

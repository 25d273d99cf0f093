// Package ws carries finch envelopes over a WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/Darkness4/finch/bridge"
	"github.com/Darkness4/finch/finch"
	"github.com/Darkness4/finch/utils"
	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Subprotocol is the WebSocket subprotocol negotiated by the bridge.
const Subprotocol = "finch"

const readLimit = 10485760 // 10 MiB

var _ finch.Sender = (*Client)(nil)

// Client sends envelopes to a relay over a WebSocket.
type Client struct {
	conn       *websocket.Conn
	correlator *bridge.Correlator
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
	log        *zerolog.Logger
}

// Dial connects to the relay at url.
func Dial(ctx context.Context, url string, opts *websocket.DialOptions) (*Client, error) {
	logger := log.With().Str("url", url).Logger()
	if opts == nil {
		opts = &websocket.DialOptions{}
	}
	opts.Subprotocols = []string{Subprotocol}

	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		logger.Err(err).Msg("failed to dial websocket")
		return nil, err
	}
	conn.SetReadLimit(readLimit)

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:       conn,
		correlator: bridge.NewCorrelator(),
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        &logger,
	}
	go c.readLoop(readCtx)
	return c, nil
}

// SendMessage implements finch.Sender.
func (c *Client) SendMessage(ctx context.Context, env finch.Envelope, callback func(finch.Reply)) {
	id, err := c.correlator.Register(callback)
	if err != nil {
		callback(finch.Reply{Err: err})
		return
	}
	msg, err := json.Marshal(bridge.NewRequest(ctx, id, env))
	if err != nil {
		c.log.Err(err).Msg("failed to marshal request")
		c.correlator.Fail(id, err)
		return
	}
	c.log.Trace().Str("msg", string(msg)).Msg("ws send")
	// Writes are not bound to a caller context, the reply callback is the only completion signal.
	if err := c.conn.Write(context.Background(), websocket.MessageText, msg); err != nil {
		c.log.Err(err).Str("id", id).Msg("failed to write message")
		c.correlator.Fail(id, err)
	}
}

// Done is closed when the connection is lost.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection. In-flight requests fail with bridge.ErrConnectionClosed.
func (c *Client) Close() (err error) {
	c.closeOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.cancel()
	})
	return err
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)
	defer c.correlator.FailAll(bridge.ErrConnectionClosed)

	for {
		msgType, msg, err := c.conn.Read(ctx)
		if err != nil {
			var closeError websocket.CloseError
			if errors.As(err, &closeError) && closeError.Code == websocket.StatusNormalClosure {
				c.log.Info().Msg("websocket closed cleanly")
				return
			}
			if ctx.Err() == nil {
				c.log.Err(err).Msg("failed to read websocket")
			}
			return
		}
		switch msgType {
		case websocket.MessageText:
			c.log.Trace().Str("msg", string(msg)).Msg("ws receive")
			var resp bridge.Response
			if err := utils.JSONUnmarshalAndPrintOnError(msg, &resp); err != nil {
				continue
			}
			c.correlator.Resolve(resp)
		default:
			c.log.Error().
				Int("type", int(msgType)).
				Str("msg", string(msg)).
				Msg("received unhandled msg type")
		}
	}
}

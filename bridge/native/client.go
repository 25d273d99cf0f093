package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/Darkness4/finch/bridge"
	"github.com/Darkness4/finch/finch"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ finch.Sender = (*Client)(nil)

// Client sends envelopes to a native messaging host.
type Client struct {
	r      io.Reader
	w      io.Writer
	closer io.Closer

	wmu        sync.Mutex
	correlator *bridge.Correlator
	done       chan struct{}
	log        *zerolog.Logger
}

// NewClient creates a client reading replies from r and writing requests to w.
//
// closer is called on Close and may be nil.
func NewClient(r io.Reader, w io.Writer, closer io.Closer) *Client {
	logger := log.With().Str("transport", "native").Logger()
	c := &Client{
		r:          r,
		w:          w,
		closer:     closer,
		correlator: bridge.NewCorrelator(),
		done:       make(chan struct{}),
		log:        &logger,
	}
	go c.readLoop()
	return c
}

// Spawn starts a native messaging host and connects to its stdio.
func Spawn(ctx context.Context, name string, args ...string) (*Client, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start native host: %w", err)
	}
	return NewClient(stdout, stdin, closerFunc(func() error {
		err := stdin.Close()
		return errors.Join(err, cmd.Wait())
	})), nil
}

// SendMessage implements finch.Sender.
func (c *Client) SendMessage(ctx context.Context, env finch.Envelope, callback func(finch.Reply)) {
	id, err := c.correlator.Register(callback)
	if err != nil {
		callback(finch.Reply{Err: err})
		return
	}
	c.wmu.Lock()
	err = WriteMessage(c.w, bridge.NewRequest(ctx, id, env), MaxClientMessageSize)
	c.wmu.Unlock()
	if err != nil {
		c.log.Err(err).Str("id", id).Msg("failed to write message")
		c.correlator.Fail(id, err)
	}
}

// Done is closed when the host stops replying.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection to the host.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var resp bridge.Response
		if err := ReadMessage(c.r, &resp, MaxHostMessageSize); err != nil {
			if errors.Is(err, io.EOF) {
				c.log.Debug().Msg("native host closed its output")
			} else {
				c.log.Err(err).Msg("failed to read message")
			}
			c.correlator.FailAll(bridge.ErrConnectionClosed)
			return
		}
		c.log.Trace().Str("id", resp.ID).Msg("native receive")
		c.correlator.Resolve(resp)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

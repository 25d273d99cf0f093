// Package native implements the native messaging protocol: JSON messages
// prefixed by their length as a 32-bit unsigned integer in native byte order.
package native

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxHostMessageSize is the maximum size of a message sent by the host.
	MaxHostMessageSize = 1 << 20
	// MaxClientMessageSize is the maximum size of a message sent to the host.
	MaxClientMessageSize = 64 << 20
)

// ErrMessageTooLarge is returned when a message exceeds the size limit.
var ErrMessageTooLarge = errors.New("message too large")

// WriteMessage encodes v as JSON and writes it with its length prefix.
func WriteMessage(w io.Writer, v any, limit int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(b) > limit {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(b), limit)
	}
	buf := make([]byte, 4+len(b))
	binary.NativeEndian.PutUint32(buf, uint32(len(b)))
	copy(buf[4:], b)
	_, err = w.Write(buf)
	return err
}

// ReadMessage reads a length prefixed message and decodes it into v.
//
// io.EOF is returned if the stream ends before a new message.
func ReadMessage(r io.Reader, v any, limit int) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	size := binary.NativeEndian.Uint32(header[:])
	if int64(size) > int64(limit) {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, size, limit)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return json.Unmarshal(body, v)
}

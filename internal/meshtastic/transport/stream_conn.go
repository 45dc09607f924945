package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"google.golang.org/protobuf/proto"
)

// Start1 and Start2 are the two magic bytes that prefix every frame on
// the Meshtastic serial stream, per the protocol's wire framing.
const (
	Start1 byte = 0x94
	Start2 byte = 0xc3

	// maxFrameLen bounds a single frame's protobuf payload to what the
	// 16-bit length header can express; the firmware never sends
	// anything close to this.
	maxFrameLen = 1<<16 - 1
)

var (
	// ErrFrameTooLarge is returned when a length header exceeds maxFrameLen.
	ErrFrameTooLarge = errors.New("transport: frame exceeds maximum length")
	// ErrBadMagic is returned when a frame's leading bytes are not Start1/Start2.
	ErrBadMagic = errors.New("transport: bad frame magic bytes")
)

// StreamConn wraps a duplex byte stream (serial port, TCP/net.Pipe
// connection) with the Meshtastic stream framing: two magic bytes, a
// 16-bit big-endian length, then that many bytes of protobuf-encoded
// message. NewClientStreamConn and NewRadioStreamConn both return the
// same type — "client" and "radio" differ only in which protobuf
// message each side expects to read (ToRadio vs FromRadio), which is
// the caller's concern, not the framing's.
type StreamConn struct {
	rw     io.ReadWriter
	reader *bufio.Reader

	mu sync.Mutex // serializes concurrent Write calls
}

// NewClientStreamConn wraps rw for use by a Meshtastic client (writes
// ToRadio, reads FromRadio).
func NewClientStreamConn(rw io.ReadWriter) (*StreamConn, error) {
	return newStreamConn(rw), nil
}

// NewRadioStreamConn wraps rw for use by a simulated/emulated radio
// (writes FromRadio, reads ToRadio).
func NewRadioStreamConn(rw io.ReadWriter) *StreamConn {
	return newStreamConn(rw)
}

func newStreamConn(rw io.ReadWriter) *StreamConn {
	return &StreamConn{rw: rw, reader: bufio.NewReader(rw)}
}

// writeStreamHeader writes the 4-byte frame header (Start1, Start2,
// length-high, length-low) for a payload of the given length.
func writeStreamHeader(w io.Writer, length int) error {
	if length < 0 || length > maxFrameLen {
		return ErrFrameTooLarge
	}
	header := [4]byte{Start1, Start2, 0, 0}
	binary.BigEndian.PutUint16(header[2:], uint16(length))
	_, err := w.Write(header[:])
	return err
}

// Write marshals msg to protobuf wire format and writes one framed
// message. Safe for concurrent use.
func (s *StreamConn) Write(msg proto.Message) error {
	payload, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeStreamHeader(s.rw, len(payload)); err != nil {
		return err
	}
	if _, err := s.rw.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// Read blocks until one framed message arrives and unmarshals it into
// msg. Read is not safe for concurrent use by multiple goroutines (the
// stream is single-reader, matching how the bridge's loop consumes it).
func (s *StreamConn) Read(msg proto.Message) error {
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			return fmt.Errorf("read magic byte: %w", err)
		}
		if b != Start1 {
			continue
		}
		b2, err := s.reader.ReadByte()
		if err != nil {
			return fmt.Errorf("read magic byte: %w", err)
		}
		if b2 != Start2 {
			continue
		}
		break
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(s.reader, lenBuf[:]); err != nil {
		return fmt.Errorf("read frame length: %w", err)
	}
	length := binary.BigEndian.Uint16(lenBuf[:])
	if int(length) > maxFrameLen {
		return ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(s.reader, payload); err != nil {
		return fmt.Errorf("read frame payload: %w", err)
	}

	if err := proto.Unmarshal(payload, msg); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}

// Close closes the underlying stream if it implements io.Closer.
func (s *StreamConn) Close() error {
	if c, ok := s.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

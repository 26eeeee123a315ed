package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// StreamDecoder reassembles frames from a byte stream.
// One Write on the sending side is not assumed to map to one Read here.
type StreamDecoder struct {
	r *bufio.Reader
}

func NewStreamDecoder(r io.Reader) *StreamDecoder {
	return &StreamDecoder{r: bufio.NewReaderSize(r, 4096)}
}

// PeekHandshake consumes the bare handshake sentinel if it is next in the stream.
// A frame whose first length prefix happens to spell "US" followed by a header
// beginning "ER" is indistinguishable; no header in use is that long.
func (sd *StreamDecoder) PeekHandshake() (bool, error) {
	b, err := sd.r.Peek(len(Handshake))
	if err != nil {
		if len(b) > 0 && err == io.EOF {
			return false, io.ErrUnexpectedEOF
		}
		return false, err
	}
	if !bytes.Equal(b, []byte(Handshake)) {
		return false, nil
	}
	_, err = sd.r.Discard(len(Handshake))
	return true, err
}

// DecodeNext blocks until a whole frame has been read.
// io.EOF is returned only if the stream ends on a frame boundary.
// If the frame fails UTF-8 validation the raw bytes are returned with ErrMalformedFrame.
func (sd *StreamDecoder) DecodeNext() (Frame, []byte, error) {
	var raw []byte
	var fields [3]string
	for i := range fields {
		var lb [2]byte
		if _, err := io.ReadFull(sd.r, lb[:]); err != nil {
			if i > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return Frame{}, nil, err
		}
		l := binary.LittleEndian.Uint16(lb[:])
		field := make([]byte, l)
		if _, err := io.ReadFull(sd.r, field); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return Frame{}, nil, err
		}
		raw = append(raw, lb[:]...)
		raw = append(raw, field...)
		fields[i] = string(field)
	}

	f := Frame{Header: fields[0], Body: fields[1], Timestamp: fields[2]}
	if err := f.validate(); err != nil {
		return Frame{}, raw, err
	}
	return f, raw, nil
}

// ReadRaw performs a single read of at most max bytes. Used for the plain
// text username that answers the handshake.
func (sd *StreamDecoder) ReadRaw(max int) ([]byte, error) {
	buf := make([]byte, max)
	n, err := sd.r.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return nil, err
}

// WriteFrame encodes header and body and writes them with a single Write
func WriteFrame(w io.Writer, header, body string) error {
	b, err := Encode(header, body)
	if err != nil {
		return err
	}
	return writeAll(w, b)
}

// WriteRaw writes the frame bytes exactly as given
func WriteRaw(w io.Writer, b []byte) error {
	return writeAll(w, b)
}

func writeAll(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("short write: %d of %d bytes: %w", n, len(b), io.ErrShortWrite)
	}
	return nil
}

// IsExpectedCloseError reports errors that just mean the peer has gone
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.EBADF) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "broken pipe")
}

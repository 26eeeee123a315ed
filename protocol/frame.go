package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf8"
)

// Encode builds a frame stamped with the current local time
func Encode(header, body string) ([]byte, error) {
	return EncodeAt(header, body, time.Now())
}

// EncodeAt builds a frame stamped with the given time
func EncodeAt(header, body string, t time.Time) ([]byte, error) {
	return Frame{Header: header, Body: body, Timestamp: t.Format(TimestampLayout)}.MarshalBinary()
}

// MarshalBinary encodes the frame with its existing timestamp
func (f Frame) MarshalBinary() ([]byte, error) {
	fields := [3]string{f.Header, f.Body, f.Timestamp}
	size := 0
	for i, field := range fields {
		if len(field) > MaxFieldLength {
			return nil, fmt.Errorf("field %d is %d bytes: %w", i, len(field), ErrPayloadTooLarge)
		}
		size += 2 + len(field)
	}

	out := make([]byte, 0, size)
	for _, field := range fields {
		out = binary.LittleEndian.AppendUint16(out, uint16(len(field)))
		out = append(out, field...)
	}
	return out, nil
}

// Decode parses the first frame in msgin. Trailing bytes are ignored.
func Decode(msgin []byte) (Frame, error) {
	f, _, err := decodePrefix(msgin)
	return f, err
}

// Returns the decoded frame and the number of bytes it occupied
func decodePrefix(msgin []byte) (f Frame, n int, err error) {
	var fields [3]string
	for i := range fields {
		if len(msgin)-n < 2 {
			return Frame{}, 0, fmt.Errorf("missing length of field %d: %w", i, ErrMalformedFrame)
		}
		l := int(binary.LittleEndian.Uint16(msgin[n:]))
		n += 2
		if len(msgin)-n < l {
			return Frame{}, 0, fmt.Errorf("field %d declares %d bytes, %d present: %w", i, l, len(msgin)-n, ErrMalformedFrame)
		}
		fields[i] = string(msgin[n : n+l])
		n += l
	}

	f = Frame{Header: fields[0], Body: fields[1], Timestamp: fields[2]}
	if err = f.validate(); err != nil {
		return Frame{}, 0, err
	}
	return f, n, nil
}

func (f Frame) validate() error {
	if !utf8.ValidString(f.Header) || !utf8.ValidString(f.Body) || !utf8.ValidString(f.Timestamp) {
		return fmt.Errorf("field is not valid UTF-8: %w", ErrMalformedFrame)
	}
	return nil
}

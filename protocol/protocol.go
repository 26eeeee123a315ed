/*
All of the definitions supported by the roomhub wire protocol

Every frame contains three length-prefixed UTF-8 fields, in this order:
  - Header: sender name, command echo, or a protocol keyword (CREATED, JOIN, ...)
  - Body: text payload, command text, or error detail
  - Timestamp: human readable, generated at encode time, display only

Each field is preceded by its byte length as an unsigned 16-bit little-endian
integer. There is no padding, magic number, version or checksum.

Handshake: room servers send the bare bytes "USER" (no length prefix, no
frame) as soon as they accept a connection. The peer answers with its
username as plain text, and only then are frames exchanged.

Control headers (server -> client):
  - CREATED: body "<room> <host> <port>", hop to the new room
  - JOIN: body "<host>:<port>", hop to an existing room
  - LEAVE: hop back to the tracker
  - EXIT: close the session
  - WHISPER: body "<target>|<message>", display only
  - ERROR: human readable reason, display only
*/
package protocol

import "errors"

// Frame is the unit of wire transfer
type Frame struct {
	Header    string
	Body      string
	Timestamp string
}

// Maximum encoded length of a single field
const MaxFieldLength = 0xFFFF

// Layout used for the timestamp field
const TimestampLayout = "January 02 2006 15:04:05"

// Handshake is the raw sentinel a room server sends before any frame
const Handshake = "USER"

// Protocol keywords carried in the header field
const (
	HeaderCreated       = "CREATED"
	HeaderJoin          = "JOIN"
	HeaderLeave         = "LEAVE"
	HeaderExit          = "EXIT"
	HeaderWhisper       = "WHISPER"
	HeaderWhispered     = "Whispered"
	HeaderError         = "ERROR"
	HeaderRegistered    = "REGISTERED"
	HeaderActiveServers = "ACTIVE_SERVERS"
	HeaderUsers         = "Users"
	HeaderCurrent       = "Currently in:"
	HeaderWelcome       = "Welcome to eIRC\nTracker Server"
	HeaderUsage         = "Command Usage"
)

var (
	// A field is longer than the 16-bit length prefix can describe
	ErrPayloadTooLarge = errors.New("payload too large")
	// The buffer ended before a declared length, or a field is not UTF-8
	ErrMalformedFrame = errors.New("malformed frame")
)

// IsCommand reports whether a frame body is a slash command
func (f Frame) IsCommand() bool {
	return len(f.Body) > 0 && f.Body[0] == '/'
}

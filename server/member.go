package server

import (
	"net"
	"sync"

	"github.com/CiaranWoodward/roomhub/protocol"
)

// server representation of a connected room member
type member struct {
	// Username given in the handshake
	name string
	// Frame stream decoder
	dc *protocol.StreamDecoder
	// Internal connection state
	con net.Conn
	// Serializes writes so concurrent broadcasts never interleave frames
	write_mutex sync.Mutex
}

func newMember(con net.Conn) *member {
	return &member{con: con, dc: protocol.NewStreamDecoder(con)}
}

func (m *member) send(header, body string) error {
	b, err := protocol.Encode(header, body)
	if err != nil {
		return err
	}
	return m.sendRaw(b)
}

func (m *member) sendRaw(b []byte) error {
	m.write_mutex.Lock()
	defer m.write_mutex.Unlock()
	return protocol.WriteRaw(m.con, b)
}

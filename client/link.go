package client

import (
	"errors"
	"net"
	"sync"

	"github.com/CiaranWoodward/roomhub/protocol"
)

var errLinkClosed = errors.New("link closed")

// One connection of a session, to the tracker or to a room
type link struct {
	con  net.Conn
	dc   *protocol.StreamDecoder
	addr string

	// Closed once the peer has sent its first frame. Nothing but the handshake reply is written before that.
	ready      chan struct{}
	ready_once sync.Once
	// Closed when the session moves off this connection or ends
	closed     chan struct{}
	close_once sync.Once
	// Serializes the handshake reply and outgoing frames
	write_mutex sync.Mutex
}

func newLink(con net.Conn, addr string) *link {
	return &link{
		con:    con,
		dc:     protocol.NewStreamDecoder(con),
		addr:   addr,
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (l *link) markReady() {
	l.ready_once.Do(func() { close(l.ready) })
}

func (l *link) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// Answer the USER sentinel with the bare username
func (l *link) answerHandshake(username string) error {
	l.write_mutex.Lock()
	defer l.write_mutex.Unlock()
	if l.isClosed() {
		return errLinkClosed
	}
	return protocol.WriteRaw(l.con, []byte(username))
}

func (l *link) writeFrame(header, body string) error {
	l.write_mutex.Lock()
	defer l.write_mutex.Unlock()
	if l.isClosed() {
		return errLinkClosed
	}
	return protocol.WriteFrame(l.con, header, body)
}

// Half-close, then release the socket
func (l *link) close() {
	l.close_once.Do(func() {
		close(l.closed)
		if tc, ok := l.con.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		l.con.Close()
	})
}

/*
Package client implements the user-facing session of a roomhub client.

A Session holds one live connection at a time. It starts on the tracker and
moves that connection to whichever room the tracker or room server tells it
to (CREATED, JOIN, LEAVE) until it is told to EXIT or is closed.
*/
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/CiaranWoodward/roomhub/protocol"
)

const (
	DefaultDialTimeout = 5 * time.Second
	messageBuffer      = 64
)

var (
	// The session ended because the connected peer closed the connection
	ErrConnectionClosed = errors.New("connection closed by peer")
	// The session was closed while an operation was in progress
	ErrSessionClosed = errors.New("session closed")
)

type Config struct {
	TrackerAddr string
	Username    string
	DialTimeout time.Duration
}

// Message is one item of received traffic, for display by the front-end
type Message struct {
	Frame protocol.Frame
	// Text is set, instead of Frame, for undecodable input and local notices
	Text string
	// Hop is the address the session moved to because of this frame
	Hop string
}

func (m Message) String() string {
	if m.Text != "" {
		return m.Text
	}
	return fmt.Sprintf("[%s] %s: %s", m.Frame.Timestamp, m.Frame.Header, m.Frame.Body)
}

// Session struct - instantiated with the 'NewSession' function
type Session struct {
	cfg   Config
	input <-chan string

	// Received traffic. Closed when Run returns.
	Messages chan Message

	// Guards the link pointer; held across a hop so writers never see a half-made connection
	conn_mutex sync.Mutex
	link       *link

	done      chan struct{}
	done_once sync.Once
	err       error
}

// NewSession creates a session that sends every line received on input.
// Closing input closes the session.
func NewSession(cfg Config, input <-chan string) *Session {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &Session{
		cfg:      cfg,
		input:    input,
		Messages: make(chan Message, messageBuffer),
		done:     make(chan struct{}),
	}
}

// Run connects to the tracker and serves the session until EXIT, peer
// close, context cancellation or Close. Messages is closed on return.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.Messages)

	if _, err := s.connect(s.cfg.TrackerAddr); err != nil {
		s.stop(err)
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop()
	}()
	go func() {
		defer wg.Done()
		s.writeLoop()
	}()

	select {
	case <-ctx.Done():
		s.stop(ctx.Err())
	case <-s.done:
	}
	wg.Wait()
	return s.err
}

// Close shuts the session down in an orderly way
func (s *Session) Close() {
	s.stop(nil)
}

func (s *Session) Username() string {
	return s.cfg.Username
}

// TrackerAddr is where the session returns on LEAVE
func (s *Session) TrackerAddr() string {
	return s.cfg.TrackerAddr
}

// CurrentAddr is the address of the live connection, empty before Run
func (s *Session) CurrentAddr() string {
	s.conn_mutex.Lock()
	defer s.conn_mutex.Unlock()
	if s.link == nil {
		return ""
	}
	return s.link.addr
}

func (s *Session) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Record why the session ended, the first time only, and release the connection
func (s *Session) stop(err error) {
	s.done_once.Do(func() {
		s.err = err
		close(s.done)
		s.conn_mutex.Lock()
		if s.link != nil {
			s.link.close()
		}
		s.conn_mutex.Unlock()
	})
}

func (s *Session) current() *link {
	s.conn_mutex.Lock()
	defer s.conn_mutex.Unlock()
	return s.link
}

// Dial addr and make it the live connection, closing the previous one.
// The username is not sent until the new peer asks for it.
func (s *Session) connect(addr string) (*link, error) {
	s.conn_mutex.Lock()
	defer s.conn_mutex.Unlock()
	if s.isDone() {
		return nil, ErrSessionClosed
	}

	con, err := net.DialTimeout("tcp", addr, s.cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	if s.link != nil {
		s.link.close()
	}
	s.link = newLink(con, addr)
	log.Printf("Connected to %s", addr)
	return s.link, nil
}

// Deliver to the front-end unless the session has already ended
func (s *Session) emit(m Message) {
	select {
	case s.Messages <- m:
	case <-s.done:
	}
}

func (s *Session) notice(format string, args ...interface{}) {
	s.emit(Message{Text: fmt.Sprintf(format, args...)})
}

// Best effort display of bytes that did not decode as a frame
func plainText(raw []byte) string {
	text := strings.Map(func(r rune) rune {
		if r == '\n' || unicode.IsPrint(r) {
			return r
		}
		return -1
	}, strings.ToValidUTF8(string(raw), ""))
	return strings.TrimSpace(text)
}

// Where a control frame tells the session to go next, if anywhere
func (s *Session) hopTarget(f protocol.Frame) (string, error) {
	switch f.Header {
	case protocol.HeaderCreated:
		// "<room> <host> <port>"
		parts := strings.Fields(f.Body)
		if len(parts) != 3 {
			return "", fmt.Errorf("bad %s body %q", f.Header, f.Body)
		}
		return net.JoinHostPort(parts[1], parts[2]), nil
	case protocol.HeaderJoin:
		addr := strings.TrimSpace(f.Body)
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return "", fmt.Errorf("bad %s body %q: %w", f.Header, f.Body, err)
		}
		return addr, nil
	case protocol.HeaderLeave:
		return s.cfg.TrackerAddr, nil
	}
	return "", nil
}

// Read frames from the live connection and follow control frames.
// This loop is the only one that replaces the connection.
func (s *Session) readLoop() {
	l := s.current()
	for {
		handshake, err := l.dc.PeekHandshake()
		if err == nil && handshake {
			if err := l.answerHandshake(s.cfg.Username); err != nil && !protocol.IsExpectedCloseError(err) {
				log.Printf("Handshake reply to %s failed: %v", l.addr, err)
			}
			continue
		}

		var f protocol.Frame
		var raw []byte
		if err == nil {
			f, raw, err = l.dc.DecodeNext()
		}
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedFrame) {
				l.markReady()
				s.emit(Message{Text: plainText(raw)})
				continue
			}
			if s.isDone() {
				return
			}
			if !protocol.IsExpectedCloseError(err) {
				log.Printf("Read from %s failed: %v", l.addr, err)
			}
			s.notice("Server %s closed the connection.", l.addr)
			s.stop(fmt.Errorf("%s: %w", l.addr, ErrConnectionClosed))
			return
		}
		l.markReady()

		if f.Header == protocol.HeaderExit {
			s.emit(Message{Frame: f})
			s.stop(nil)
			return
		}

		addr, err := s.hopTarget(f)
		if err != nil {
			log.Printf("Ignoring control frame from %s: %v", l.addr, err)
			s.emit(Message{Frame: f})
			continue
		}
		if addr == "" {
			s.emit(Message{Frame: f})
			continue
		}

		s.emit(Message{Frame: f, Hop: addr})
		next, err := s.connect(addr)
		if err != nil {
			if !errors.Is(err, ErrSessionClosed) {
				s.notice("Failed to connect to %s: %v", addr, err)
			}
			s.stop(err)
			return
		}
		l = next
	}
}

// Send each input line, as a frame with the username as header, on the live connection
func (s *Session) writeLoop() {
	for {
		var text string
		select {
		case <-s.done:
			return
		case line, ok := <-s.input:
			if !ok {
				s.stop(nil)
				return
			}
			text = line
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if !s.send(text) {
			return
		}
	}
}

// Send one line, following the connection across hops.
// Returns false once the session has ended.
func (s *Session) send(text string) bool {
	for {
		l := s.current()
		select {
		case <-l.ready:
		case <-l.closed:
			if s.isDone() {
				return false
			}
			continue
		case <-s.done:
			return false
		}

		err := l.writeFrame(s.cfg.Username, text)
		if err == nil {
			return true
		}
		if errors.Is(err, errLinkClosed) {
			continue
		}
		if !protocol.IsExpectedCloseError(err) {
			s.notice("Message not sent: %v", err)
			return true
		}

		// Peer closed: stop writing on this connection until it is replaced or the session ends
		s.notice("Message not sent: connection to %s closed", l.addr)
		select {
		case <-l.closed:
			return !s.isDone()
		case <-s.done:
			return false
		}
	}
}

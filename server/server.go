/*
Package server implements a roomhub room server: one chat room that accepts
member connections, broadcasts their traffic and executes room commands.
*/
package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CiaranWoodward/roomhub/protocol"
	"github.com/CiaranWoodward/roomhub/registry"
)

const (
	DefaultMaxConnections   = 32
	DefaultMaxMessageLength = 1024
)

// Config is supplied by whoever spawns the room (tracker or launcher)
type Config struct {
	Host             string
	Port             int
	MaxConnections   int
	MaxMessageLength int

	Name         string
	AdminUser    string
	AdminAddress string
	Private      bool
	Passkey      string
}

type Room struct {
	cfg      Config
	users    *registry.Registry[*member]
	commands map[string]CommandFunc

	listener net.Listener
	// Every accepted connection, including those still in the handshake
	conns       map[net.Conn]struct{}
	conns_mutex sync.Mutex
	closed      bool
	wg          sync.WaitGroup
}

func NewRoom(cfg Config) *Room {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	return &Room{
		cfg:      cfg,
		users:    registry.New[*member](cfg.Name, address, cfg.AdminUser, cfg.AdminAddress, cfg.Private, cfg.Passkey),
		commands: defaultCommands(),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Listen binds the room's socket. Bind failures are returned to the caller, never retried.
func (r *Room) Listen() error {
	address := net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.cfg.Port))
	l, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("room '%s' listen on %s: %w", r.cfg.Name, address, err)
	}

	r.conns_mutex.Lock()
	r.listener = l
	r.conns_mutex.Unlock()
	r.users.SetAddress(l.Addr().String())
	log.Printf("Room '%s' listening on %s", r.cfg.Name, l.Addr())
	return nil
}

// Start binds and runs the accept loop in the background
func (r *Room) Start() error {
	if err := r.Listen(); err != nil {
		return err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Serve()
	}()
	return nil
}

// Serve accepts connections until Close is called
func (r *Room) Serve() {
	r.conns_mutex.Lock()
	l := r.listener
	r.conns_mutex.Unlock()
	if l == nil {
		return
	}

	for {
		con, err := l.Accept()
		if err != nil {
			if r.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Room '%s': accept failed: %v", r.cfg.Name, err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		log.Printf("Room '%s': connected with %s", r.cfg.Name, con.RemoteAddr())
		r.AddConnection(con)
	}
}

// AddConnection takes ownership of an established connection and serves it
func (r *Room) AddConnection(con net.Conn) {
	if !r.track(con) {
		con.Close()
		return
	}
	go func() {
		defer r.wg.Done()
		defer r.untrack(con)
		r.handleConnection(con)
	}()
}

// Close stops accepting, disconnects every member and waits for their goroutines
func (r *Room) Close() {
	r.conns_mutex.Lock()
	r.closed = true
	if r.listener != nil {
		r.listener.Close()
	}
	for con := range r.conns {
		con.Close()
	}
	r.conns_mutex.Unlock()

	r.wg.Wait()
}

// Addr is the bound address, or the configured one before Listen
func (r *Room) Addr() string {
	return r.users.Address()
}

func (r *Room) Name() string {
	return r.users.Name()
}

// Admins returns a snapshot of the room's admins
func (r *Room) Admins() map[string]string {
	return r.users.ListAdmins()
}

// ActiveUsers returns the sorted usernames of current members
func (r *Room) ActiveUsers() []string {
	return r.users.MemberNames()
}

func (r *Room) UserCount() int {
	return r.users.MemberCount()
}

// Register a member, replacing any earlier connection of the same username
func (r *Room) UserJoin(m *member) {
	r.users.AddMember(m.name, m)
}

// Deregister a member. Returns false if the username now belongs to another connection.
func (r *Room) UserLeave(m *member) bool {
	return r.users.RemoveMemberIf(m.name, func(cur *member) bool { return cur == m })
}

func (r *Room) isClosed() bool {
	r.conns_mutex.Lock()
	defer r.conns_mutex.Unlock()
	return r.closed
}

func (r *Room) track(con net.Conn) bool {
	r.conns_mutex.Lock()
	defer r.conns_mutex.Unlock()
	if r.closed {
		return false
	}
	r.conns[con] = struct{}{}
	r.wg.Add(1)
	return true
}

func (r *Room) untrack(con net.Conn) {
	r.conns_mutex.Lock()
	delete(r.conns, con)
	r.conns_mutex.Unlock()
	con.Close()
}

func (r *Room) connCount() int {
	r.conns_mutex.Lock()
	defer r.conns_mutex.Unlock()
	return len(r.conns)
}

// Handshake, join, then the member's message loop. All cleanup for the
// member happens here, exactly once, whatever ended the loop.
func (r *Room) handleConnection(con net.Conn) {
	m := newMember(con)

	if r.connCount() > r.cfg.MaxConnections {
		log.Printf("Room '%s' is full, rejecting %s", r.cfg.Name, con.RemoteAddr())
		m.send(protocol.HeaderError, "Room is full")
		return
	}

	if err := m.sendRaw([]byte(protocol.Handshake)); err != nil {
		log.Printf("Room '%s': handshake with %s failed: %v", r.cfg.Name, con.RemoteAddr(), err)
		return
	}
	raw, err := m.dc.ReadRaw(r.cfg.MaxMessageLength)
	if err != nil {
		log.Printf("Room '%s': no username from %s: %v", r.cfg.Name, con.RemoteAddr(), err)
		return
	}
	m.name = strings.TrimSpace(string(raw))
	if m.name == "" || strings.ContainsAny(m.name, " \t\r\n") {
		m.send(protocol.HeaderError, "Invalid username")
		return
	}

	log.Printf("Room '%s': username is %s", r.cfg.Name, m.name)
	r.UserJoin(m)
	r.broadcast(r.Name(), fmt.Sprintf("%s joined!", m.name))
	if err := m.send(r.Name(), "Connected to server!"); err != nil {
		log.Printf("Room '%s': failed to confirm join for %s: %v", r.cfg.Name, m.name, err)
	}

	r.messageLoop(m)

	if r.UserLeave(m) {
		log.Printf("Room '%s': %s left", r.cfg.Name, m.name)
		r.broadcast(r.Name(), fmt.Sprintf("%s left!", m.name))
	}
}

// Read frames until the member leaves or the connection fails
func (r *Room) messageLoop(m *member) {
	for {
		f, raw, err := m.dc.DecodeNext()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedFrame) {
				log.Printf("Room '%s': malformed frame from %s: %v", r.cfg.Name, m.name, err)
				m.send(protocol.HeaderError, "Malformed frame")
				continue
			}
			if !protocol.IsExpectedCloseError(err) {
				log.Printf("Room '%s': read from %s failed: %v", r.cfg.Name, m.name, err)
			}
			return
		}

		if len(raw) > r.cfg.MaxMessageLength {
			m.send(protocol.HeaderError, fmt.Sprintf("Message exceeds %d bytes", r.cfg.MaxMessageLength))
			continue
		}

		if f.IsCommand() {
			if done := r.handleCommand(m, f.Body); done {
				return
			}
			continue
		}

		r.broadcastRaw(raw)
	}
}

// Send a notice frame to every current member
func (r *Room) broadcast(header, body string) {
	b, err := protocol.Encode(header, body)
	if err != nil {
		log.Printf("Room '%s': cannot encode broadcast: %v", r.cfg.Name, err)
		return
	}
	r.broadcastRaw(b)
}

// Snapshot the members under the registry lock, then send outside it
func (r *Room) broadcastRaw(b []byte) {
	for name, m := range r.users.ListMembers() {
		if err := m.sendRaw(b); err != nil && !protocol.IsExpectedCloseError(err) {
			log.Printf("Room '%s': broadcast to %s failed: %v", r.cfg.Name, name, err)
		}
	}
}

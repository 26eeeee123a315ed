/*
Package tracker implements the roomhub tracker daemon: the well known
rendezvous point where clients list, create, join and register rooms.

Rooms created through the tracker are served by room servers that the
daemon spawns in process, each on its own freshly allocated port.
*/
package tracker

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/CiaranWoodward/roomhub/protocol"
	"github.com/CiaranWoodward/roomhub/registry"
	"github.com/CiaranWoodward/roomhub/server"
)

const (
	DefaultHost             = "localhost"
	DefaultPort             = 8888
	DefaultMaxConnections   = 32
	DefaultMaxMessageLength = 1024
)

type Config struct {
	Host             string
	Port             int
	MaxConnections   int
	MaxMessageLength int
	// First port handed to spawned rooms. 0 means the tracker port + 1.
	RoomPortBase int
}

type Daemon struct {
	cfg       Config
	rooms     *registry.Registry[Room]
	commands  map[string]CommandFunc
	advertise string // host put in CREATED replies and room addresses

	ports    *PortAllocator
	listener net.Listener
	// Every accepted tracker connection
	conns       map[net.Conn]struct{}
	conns_mutex sync.Mutex
	closed      bool
	wg          sync.WaitGroup

	// Room servers spawned by /create, closed with the daemon
	spawned       []*server.Room
	spawned_mutex sync.Mutex
}

func NewDaemon(cfg Config) *Daemon {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	return &Daemon{
		cfg:       cfg,
		advertise: advertiseHost(cfg.Host),
		rooms:     registry.New[Room]("GlobalTracker", address, "tracker", address, false, ""),
		commands:  defaultCommands(),
		conns:     make(map[net.Conn]struct{}),
	}
}

// Rooms of a tracker bound to a wildcard address are advertised on localhost
func advertiseHost(host string) string {
	if host == "" {
		return DefaultHost
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		return DefaultHost
	}
	return host
}

// Listen binds the tracker socket and seeds the room port allocator
func (d *Daemon) Listen() error {
	address := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	l, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("tracker listen on %s: %w", address, err)
	}

	base := d.cfg.RoomPortBase
	if base <= 0 {
		base = l.Addr().(*net.TCPAddr).Port + 1
	}

	d.conns_mutex.Lock()
	d.listener = l
	d.ports = NewPortAllocator(base)
	d.conns_mutex.Unlock()
	d.rooms.SetAddress(l.Addr().String())
	d.rooms.AddAdmin("tracker", l.Addr().String())
	log.Printf("Tracker listening on %s, rooms from port %d", l.Addr(), base)
	return nil
}

// Start binds and runs the accept loop in the background
func (d *Daemon) Start() error {
	if err := d.Listen(); err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Serve()
	}()
	return nil
}

// Serve accepts connections until Close is called
func (d *Daemon) Serve() {
	d.conns_mutex.Lock()
	l := d.listener
	d.conns_mutex.Unlock()
	if l == nil {
		return
	}

	for {
		con, err := l.Accept()
		if err != nil {
			if d.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Tracker: accept failed: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		log.Printf("Tracker: connected with %s", con.RemoteAddr())
		if !d.track(con) {
			con.Close()
			return
		}
		go func() {
			defer d.wg.Done()
			defer d.untrack(con)
			d.handleConnection(con)
		}()
	}
}

// Close stops the tracker, drops every connection and shuts down spawned rooms
func (d *Daemon) Close() {
	d.conns_mutex.Lock()
	d.closed = true
	if d.listener != nil {
		d.listener.Close()
	}
	for con := range d.conns {
		con.Close()
	}
	d.conns_mutex.Unlock()

	d.wg.Wait()

	d.spawned_mutex.Lock()
	spawned := d.spawned
	d.spawned = nil
	d.spawned_mutex.Unlock()
	for _, room := range spawned {
		room.Close()
	}
}

// Addr is the bound address, or the configured one before Listen
func (d *Daemon) Addr() string {
	return d.rooms.Address()
}

func (d *Daemon) isClosed() bool {
	d.conns_mutex.Lock()
	defer d.conns_mutex.Unlock()
	return d.closed
}

func (d *Daemon) track(con net.Conn) bool {
	d.conns_mutex.Lock()
	defer d.conns_mutex.Unlock()
	if d.closed {
		return false
	}
	d.conns[con] = struct{}{}
	d.wg.Add(1)
	return true
}

func (d *Daemon) untrack(con net.Conn) {
	d.conns_mutex.Lock()
	delete(d.conns, con)
	d.conns_mutex.Unlock()
	con.Close()
}

func (d *Daemon) connCount() int {
	d.conns_mutex.Lock()
	defer d.conns_mutex.Unlock()
	return len(d.conns)
}

// Keep a spawned room so Close can shut it down. Returns false once closed.
func (d *Daemon) addSpawned(room *server.Room) bool {
	if d.isClosed() {
		return false
	}
	d.spawned_mutex.Lock()
	defer d.spawned_mutex.Unlock()
	d.spawned = append(d.spawned, room)
	return true
}

// The tracker side of one client connection
type peer struct {
	con    net.Conn
	dc     *protocol.StreamDecoder
	remote string
}

func (p *peer) send(header, body string) error {
	return protocol.WriteFrame(p.con, header, body)
}

// Welcome, then one command per frame until /exit or the connection fails
func (d *Daemon) handleConnection(con net.Conn) {
	p := &peer{con: con, dc: protocol.NewStreamDecoder(con), remote: con.RemoteAddr().String()}

	if d.connCount() > d.cfg.MaxConnections {
		log.Printf("Tracker is full, rejecting %s", p.remote)
		p.send(protocol.HeaderError, "Tracker is full")
		return
	}

	if err := p.send(protocol.HeaderWelcome, protocol.CommandText); err != nil {
		log.Printf("Tracker: welcome to %s failed: %v", p.remote, err)
		return
	}

	for {
		f, raw, err := p.dc.DecodeNext()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedFrame) {
				log.Printf("Tracker: malformed frame from %s: %v", p.remote, err)
				p.send(protocol.HeaderError, "Malformed frame")
				continue
			}
			if !protocol.IsExpectedCloseError(err) {
				log.Printf("Tracker: read from %s failed: %v", p.remote, err)
			}
			return
		}

		if len(raw) > d.cfg.MaxMessageLength {
			p.send(protocol.HeaderError, fmt.Sprintf("Message exceeds %d bytes", d.cfg.MaxMessageLength))
			continue
		}

		if !f.IsCommand() {
			if err := p.send(protocol.HeaderUsage, protocol.CommandText); err != nil {
				return
			}
			continue
		}

		if done := d.handleCommand(p, f.Body); done {
			log.Printf("Tracker: %s exited", p.remote)
			return
		}
	}
}

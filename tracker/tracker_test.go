package tracker

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CiaranWoodward/roomhub/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	dialTimeout    = 2 * time.Second
	messageTimeout = 2 * time.Second
)

type testClient struct {
	con net.Conn
	dc  *protocol.StreamDecoder
}

func startDaemon(t *testing.T, cfg Config) *Daemon {
	t.Helper()
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	d := NewDaemon(cfg)
	require.NoError(t, d.Start())
	t.Cleanup(d.Close)
	return d
}

// Dial the tracker and consume the welcome frame
func connect(t *testing.T, d *Daemon) *testClient {
	t.Helper()
	con, err := net.DialTimeout("tcp", d.Addr(), dialTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { con.Close() })

	c := &testClient{con: con, dc: protocol.NewStreamDecoder(con)}
	f := c.next(t)
	require.Equal(t, protocol.HeaderWelcome, f.Header)
	require.Equal(t, protocol.CommandText, f.Body)
	return c
}

func (c *testClient) next(t *testing.T) protocol.Frame {
	t.Helper()
	c.con.SetReadDeadline(time.Now().Add(messageTimeout))
	f, _, err := c.dc.DecodeNext()
	require.NoError(t, err)
	return f
}

// Send a command and return the reply
func (c *testClient) do(t *testing.T, body string) protocol.Frame {
	t.Helper()
	require.NoError(t, protocol.WriteFrame(c.con, "alice", body))
	return c.next(t)
}

func (c *testClient) expect(t *testing.T, body, header, reply string) {
	t.Helper()
	f := c.do(t, body)
	assert.Equal(t, header, f.Header, body)
	assert.Equal(t, reply, f.Body, body)
}

// Parse a CREATED body into the room's address
func createdAddr(t *testing.T, f protocol.Frame) (string, int) {
	t.Helper()
	require.Equal(t, protocol.HeaderCreated, f.Header, f.Body)
	parts := strings.Fields(f.Body)
	require.Len(t, parts, 3)
	port, err := strconv.Atoi(parts[2])
	require.NoError(t, err)
	return net.JoinHostPort(parts[1], parts[2]), port
}

func TestPortAllocator(t *testing.T) {
	a := NewPortAllocator(9000)
	prev := 0
	for i := 0; i < 100; i++ {
		port := a.Allocate()
		assert.Greater(t, port, prev)
		prev = port
	}
	assert.Equal(t, 9099, prev)
}

func TestPortAllocatorConcurrent(t *testing.T) {
	a := NewPortAllocator(20000)
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int]bool)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				port := a.Allocate()
				mu.Lock()
				assert.False(t, seen[port], "port %d handed out twice", port)
				seen[port] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestWelcomeAndHelp(t *testing.T) {
	d := startDaemon(t, Config{})
	c := connect(t, d)

	c.expect(t, "hello there", protocol.HeaderUsage, protocol.CommandText)
	c.expect(t, "/commands", protocol.HeaderUsage, protocol.CommandText)
	c.expect(t, "/dance", protocol.HeaderError, "Unknown command")
}

func TestSeededIdentity(t *testing.T) {
	d := startDaemon(t, Config{})
	assert.Equal(t, map[string]string{"tracker": d.Addr()}, d.rooms.ListAdmins())
	assert.Equal(t, "GlobalTracker", d.rooms.Name())
	assert.Empty(t, d.Rooms())
}

func TestCreateNameUniqueness(t *testing.T) {
	d := startDaemon(t, Config{})
	c := connect(t, d)

	addr, _ := createdAddr(t, c.do(t, "/create room1 alice 0"))
	c.expect(t, "/create room1 bob 0", protocol.HeaderError,
		"Server name 'room1' is already taken. Choose a different name.")

	rooms := d.Rooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, "room1", rooms[0].Name)
	assert.Equal(t, addr, rooms[0].Address)
	assert.Equal(t, "alice", rooms[0].AdminUser)
	assert.False(t, rooms[0].Private)
}

func TestConcurrentCreateSameName(t *testing.T) {
	d := startDaemon(t, Config{})

	n_clients := 8
	clients := make([]*testClient, n_clients)
	for i := range clients {
		clients[i] = connect(t, d)
	}

	replies := make(chan protocol.Frame, n_clients)
	for _, c := range clients {
		go func(c *testClient) {
			protocol.WriteFrame(c.con, "alice", "/create dup alice 0")
			c.con.SetReadDeadline(time.Now().Add(messageTimeout))
			f, _, _ := c.dc.DecodeNext()
			replies <- f
		}(c)
	}

	created := 0
	for i := 0; i < n_clients; i++ {
		f := <-replies
		if f.Header == protocol.HeaderCreated {
			created++
		} else {
			assert.Equal(t, protocol.HeaderError, f.Header)
		}
	}
	assert.Equal(t, 1, created)
	assert.Len(t, d.Rooms(), 1)
}

func TestCreateUsage(t *testing.T) {
	d := startDaemon(t, Config{})
	c := connect(t, d)

	c.expect(t, "/create room1 alice", protocol.HeaderError, errCreateUsage.Error())
	c.expect(t, "/create room1 alice 1", protocol.HeaderError,
		"Private rooms need a passkey: /create room1 alice 1 <passkey>")
	assert.Empty(t, d.Rooms())
}

func TestPrivateRoomGating(t *testing.T) {
	d := startDaemon(t, Config{})
	c := connect(t, d)

	addr, _ := createdAddr(t, c.do(t, "/create room1 alice 1 secret"))

	c.expect(t, "/join room1", protocol.HeaderError,
		"Server 'room1' is private. Please provide a passkey: /join room1 <passkey>")
	c.expect(t, "/join room1 wrongpass", protocol.HeaderError, "Incorrect passkey")
	c.expect(t, "/join room1 secret", protocol.HeaderJoin, addr)
}

func TestJoin(t *testing.T) {
	d := startDaemon(t, Config{})
	c := connect(t, d)

	addr, _ := createdAddr(t, c.do(t, "/create lobby alice true key"))
	c.expect(t, "/join lobby key", protocol.HeaderJoin, addr)

	addr, _ = createdAddr(t, c.do(t, "/create open alice 0"))
	c.expect(t, "/join open", protocol.HeaderJoin, addr)
	c.expect(t, "/join open ignored", protocol.HeaderJoin, addr)

	c.expect(t, "/join nowhere", protocol.HeaderError, "Server not found")
	c.expect(t, "/join", protocol.HeaderError, errJoinUsage.Error())
}

func TestServersListing(t *testing.T) {
	d := startDaemon(t, Config{})
	c := connect(t, d)

	c.expect(t, "/servers", protocol.HeaderActiveServers, "")

	bAddr, _ := createdAddr(t, c.do(t, "/create beta alice 0"))
	aAddr, _ := createdAddr(t, c.do(t, "/create alpha alice 0"))
	c.do(t, "/register gamma 10.0.0.5:7000 bob 0")

	c.expect(t, "/servers", protocol.HeaderActiveServers, strings.Join([]string{
		"alpha @ " + aAddr,
		"beta @ " + bAddr,
		"gamma @ 10.0.0.5:7000",
	}, "\n"))
}

func TestRegister(t *testing.T) {
	d := startDaemon(t, Config{})
	c := connect(t, d)
	local := c.con.LocalAddr().String()

	c.expect(t, "/register remote 10.0.0.5:7000 bob true pw", protocol.HeaderRegistered,
		"remote 10.0.0.5:7000 bob "+local+" true pw")
	c.expect(t, "/register remote 10.0.0.6:7000 bob 0", protocol.HeaderError, "Server already registered")
	c.expect(t, "/register other 10.0.0.6:7000 bob", protocol.HeaderError, errRegisterUsage.Error())
	c.expect(t, "/register other nowhere bob 0", protocol.HeaderError,
		"Invalid address 'nowhere', expected <host>:<port>")
	c.expect(t, "/register public 10.0.0.7:7000 carol 0", protocol.HeaderRegistered,
		"public 10.0.0.7:7000 carol "+local+" false")

	c.expect(t, "/join remote", protocol.HeaderError,
		"Server 'remote' is private. Please provide a passkey: /join remote <passkey>")
	c.expect(t, "/join remote pw", protocol.HeaderJoin, "10.0.0.5:7000")

	room, ok := d.LookupRoom("remote")
	require.True(t, ok)
	assert.Equal(t, Room{
		Name:         "remote",
		Address:      "10.0.0.5:7000",
		AdminUser:    "bob",
		AdminAddress: local,
		Private:      true,
		Passkey:      "pw",
	}, room)
}

func TestExit(t *testing.T) {
	d := startDaemon(t, Config{})
	c := connect(t, d)
	other := connect(t, d)

	c.expect(t, "/exit", protocol.HeaderExit, "Closing connection...")
	c.con.SetReadDeadline(time.Now().Add(messageTimeout))
	_, _, err := c.dc.DecodeNext()
	assert.Error(t, err)

	// Other connections are unaffected
	other.expect(t, "/servers", protocol.HeaderActiveServers, "")
}

func TestAdvertiseHost(t *testing.T) {
	assert.Equal(t, "localhost", advertiseHost(""))
	assert.Equal(t, "localhost", advertiseHost("0.0.0.0"))
	assert.Equal(t, "localhost", advertiseHost("::"))
	assert.Equal(t, "127.0.0.1", advertiseHost("127.0.0.1"))
	assert.Equal(t, "tracker.lan", advertiseHost("tracker.lan"))
}

func TestCreateOnWildcardHost(t *testing.T) {
	d := NewDaemon(Config{Host: "0.0.0.0"})
	require.NoError(t, d.Start())
	t.Cleanup(d.Close)
	c := connect(t, d)

	f := c.do(t, "/create room1 alice 0")
	addr, port := createdAddr(t, f)
	assert.Equal(t, fmt.Sprintf("room1 localhost %d", port), f.Body)

	con, err := net.DialTimeout("tcp", addr, dialTimeout)
	require.NoError(t, err)
	con.Close()

	room, ok := d.LookupRoom("room1")
	require.True(t, ok)
	assert.Equal(t, addr, room.Address)
}

func TestCreateThenConnect(t *testing.T) {
	d := startDaemon(t, Config{})
	c := connect(t, d)

	addr, _ := createdAddr(t, c.do(t, "/create room1 alice 0"))

	con, err := net.DialTimeout("tcp", addr, dialTimeout)
	require.NoError(t, err)
	defer con.Close()
	dc := protocol.NewStreamDecoder(con)
	con.SetReadDeadline(time.Now().Add(messageTimeout))
	ok, err := dc.PeekHandshake()
	require.NoError(t, err)
	require.True(t, ok)
	_, err = con.Write([]byte("alice"))
	require.NoError(t, err)

	f, _, err := dc.DecodeNext()
	require.NoError(t, err)
	assert.Equal(t, "room1", f.Header)
	assert.Equal(t, "alice joined!", f.Body)
	f, _, err = dc.DecodeNext()
	require.NoError(t, err)
	assert.Equal(t, "Connected to server!", f.Body)
}

func TestCreatePortsIncrease(t *testing.T) {
	d := startDaemon(t, Config{})
	c := connect(t, d)

	_, trackerPort, err := net.SplitHostPort(d.Addr())
	require.NoError(t, err)
	prev, err := strconv.Atoi(trackerPort)
	require.NoError(t, err)

	for _, name := range []string{"r1", "r2", "r3", "r4", "r5"} {
		_, port := createdAddr(t, c.do(t, "/create "+name+" alice 0"))
		assert.Greater(t, port, prev)
		prev = port
	}
}

func TestRoomSpawnFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	d := startDaemon(t, Config{RoomPortBase: busy.Addr().(*net.TCPAddr).Port})
	c := connect(t, d)

	f := c.do(t, "/create room1 alice 0")
	assert.Equal(t, protocol.HeaderError, f.Header)
	assert.Contains(t, f.Body, "Could not start room 'room1'")
	assert.Empty(t, d.Rooms())
}

func TestTrackerFull(t *testing.T) {
	d := startDaemon(t, Config{MaxConnections: 1})
	connect(t, d)

	con, err := net.DialTimeout("tcp", d.Addr(), dialTimeout)
	require.NoError(t, err)
	defer con.Close()

	dc := protocol.NewStreamDecoder(con)
	con.SetReadDeadline(time.Now().Add(messageTimeout))
	f, _, err := dc.DecodeNext()
	require.NoError(t, err)
	assert.Equal(t, protocol.HeaderError, f.Header)
	assert.Equal(t, "Tracker is full", f.Body)
}

func TestCloseStopsRooms(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDaemon(Config{Host: "127.0.0.1"})
	require.NoError(t, d.Start())

	con, err := net.DialTimeout("tcp", d.Addr(), dialTimeout)
	require.NoError(t, err)
	defer con.Close()
	c := &testClient{con: con, dc: protocol.NewStreamDecoder(con)}
	c.next(t)

	addr, _ := createdAddr(t, c.do(t, "/create room1 alice 0"))
	d.Close()

	_, err = net.DialTimeout("tcp", addr, dialTimeout)
	assert.Error(t, err)
	_, err = net.DialTimeout("tcp", d.Addr(), dialTimeout)
	assert.Error(t, err)
}

func TestRegisterRemote(t *testing.T) {
	d := startDaemon(t, Config{})

	room := Room{Name: "remote", Address: "10.0.0.5:7000", AdminUser: "bob", Private: true, Passkey: "pw"}
	echo, err := Register(context.Background(), d.Addr(), room)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(echo, "remote 10.0.0.5:7000 bob "), echo)
	assert.True(t, strings.HasSuffix(echo, " true pw"), echo)

	got, ok := d.LookupRoom("remote")
	require.True(t, ok)
	assert.True(t, got.CheckPasskey("pw"))
	assert.False(t, got.CheckPasskey("nope"))

	_, err = Register(context.Background(), d.Addr(), room)
	assert.ErrorIs(t, err, ErrRejected)
}

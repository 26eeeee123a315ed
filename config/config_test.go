package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, b []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestTrackerDefaults(t *testing.T) {
	cfg, err := LoadTrackerConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTrackerConfig(), cfg)
	assert.NoError(t, cfg.Validate())

	d := cfg.Daemon()
	assert.Equal(t, "localhost", d.Host)
	assert.Equal(t, 8888, d.Port)
	assert.Equal(t, 32, d.MaxConnections)
	assert.Equal(t, 1024, d.MaxMessageLength)
	assert.Equal(t, 0, d.RoomPortBase)
}

func TestMissingFileIsIgnored(t *testing.T) {
	cfg, err := LoadTrackerConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTrackerConfig(), cfg)
}

func TestTrackerJSON(t *testing.T) {
	path := writeFile(t, "tracker.json", []byte(`{"host": "0.0.0.0", "port": 9000, "room_port_base": 9100}`))
	cfg, err := LoadTrackerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 9100, cfg.RoomPortBase)
	// Fields absent from the file keep their defaults
	assert.Equal(t, DefaultMaxConnections, cfg.MaxConnections)
}

func TestRoomCBOR(t *testing.T) {
	want := RoomConfig{
		Host:             "127.0.0.1",
		Port:             9500,
		MaxConnections:   8,
		MaxMessageLength: 512,
		Name:             "lounge",
		AdminUser:        "alice",
		Private:          true,
		Passkey:          "secret",
		Tracker:          "127.0.0.1:8888",
	}
	b, err := cbor.Marshal(want)
	require.NoError(t, err)
	path := writeFile(t, "room.cbor", b)

	cfg, err := LoadRoomConfig(path)
	require.NoError(t, err)
	assert.Equal(t, want, cfg)
	assert.NoError(t, cfg.Validate())

	rc := cfg.Room()
	assert.Equal(t, "lounge", rc.Name)
	assert.True(t, rc.Private)
	assert.Equal(t, "secret", rc.Passkey)
}

func TestBadFiles(t *testing.T) {
	_, err := LoadTrackerConfig(writeFile(t, "tracker.yaml", []byte("port: 1")))
	assert.Error(t, err)

	_, err = LoadTrackerConfig(writeFile(t, "tracker.json", []byte("{not json")))
	assert.Error(t, err)

	_, err = LoadRoomConfig(writeFile(t, "room.cbor", []byte{0xff, 0x00}))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "client.json", []byte(`{"tracker_host": "tracker.lan", "username": "alice"}`))
	t.Setenv("EIRC_USERNAME", "bob")
	t.Setenv("EIRC_PORT", "7777")

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "tracker.lan", cfg.TrackerHost)
	assert.Equal(t, "bob", cfg.Username)
	assert.Equal(t, "tracker.lan:7777", cfg.TrackerAddr())
	assert.Equal(t, "tracker.lan:7777", cfg.Session().TrackerAddr)
	assert.Equal(t, "bob", cfg.Session().Username)

	t.Setenv("EIRC_ROOM_PRIVATE", "true")
	t.Setenv("EIRC_ROOM_NAME", "den")
	t.Setenv("EIRC_ROOM_PASSKEY", "pw")
	room, err := LoadRoomConfig("")
	require.NoError(t, err)
	assert.True(t, room.Private)
	assert.Equal(t, "den", room.Name)
	assert.Equal(t, 7777, room.Port)
}

func TestBadEnvInt(t *testing.T) {
	t.Setenv("EIRC_MAX_CONNECTIONS", "lots")
	_, err := LoadTrackerConfig("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tc := DefaultTrackerConfig()
	tc.Port = 70000
	assert.Error(t, tc.Validate())
	tc = DefaultTrackerConfig()
	tc.MaxConnections = 0
	assert.Error(t, tc.Validate())
	tc = DefaultTrackerConfig()
	tc.Host = ""
	assert.Error(t, tc.Validate(), "empty host")

	rc := DefaultRoomConfig()
	assert.Error(t, rc.Validate(), "name is required")
	rc.Name = "den"
	assert.NoError(t, rc.Validate())
	rc.Private = true
	assert.Error(t, rc.Validate(), "private without passkey")
	rc.Passkey = "pw"
	assert.NoError(t, rc.Validate())
}

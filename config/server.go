package config

import (
	"errors"

	"github.com/CiaranWoodward/roomhub/server"
	"github.com/CiaranWoodward/roomhub/tracker"
)

type TrackerConfig struct {
	Host             string `json:"host" cbor:"host"`
	Port             int    `json:"port" cbor:"port"`
	MaxConnections   int    `json:"max_connections" cbor:"max_connections"`
	MaxMessageLength int    `json:"message_length" cbor:"message_length"`
	// 0 means the tracker port + 1
	RoomPortBase int    `json:"room_port_base" cbor:"room_port_base"`
	LogFile      string `json:"log_file" cbor:"log_file"`
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Host:             DefaultHost,
		Port:             DefaultPort,
		MaxConnections:   DefaultMaxConnections,
		MaxMessageLength: DefaultMaxMessageLength,
	}
}

// LoadTrackerConfig reads path, if given, and applies env overrides.
// Callers apply their flags and then Validate.
func LoadTrackerConfig(path string) (TrackerConfig, error) {
	cfg := DefaultTrackerConfig()
	if err := loadFile(path, &cfg); err != nil {
		return cfg, err
	}

	envString("EIRC_HOST", &cfg.Host)
	envString("EIRC_LOG_FILE", &cfg.LogFile)
	for key, dst := range map[string]*int{
		"EIRC_PORT":            &cfg.Port,
		"EIRC_MAX_CONNECTIONS": &cfg.MaxConnections,
		"EIRC_MESSAGE_LENGTH":  &cfg.MaxMessageLength,
		"EIRC_ROOM_PORT_BASE":  &cfg.RoomPortBase,
	} {
		if err := envInt(key, dst); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (c TrackerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host is required, rooms are advertised on it")
	}
	if err := checkPort("port", c.Port); err != nil {
		return err
	}
	if err := checkPort("room port base", c.RoomPortBase); err != nil {
		return err
	}
	return checkLimits(c.MaxConnections, c.MaxMessageLength)
}

func (c TrackerConfig) Daemon() tracker.Config {
	return tracker.Config{
		Host:             c.Host,
		Port:             c.Port,
		MaxConnections:   c.MaxConnections,
		MaxMessageLength: c.MaxMessageLength,
		RoomPortBase:     c.RoomPortBase,
	}
}

// RoomConfig describes a standalone room server
type RoomConfig struct {
	Host             string `json:"host" cbor:"host"`
	Port             int    `json:"port" cbor:"port"`
	MaxConnections   int    `json:"max_connections" cbor:"max_connections"`
	MaxMessageLength int    `json:"message_length" cbor:"message_length"`
	Name             string `json:"name" cbor:"name"`
	AdminUser        string `json:"admin_user" cbor:"admin_user"`
	AdminAddress     string `json:"admin_address" cbor:"admin_address"`
	Private          bool   `json:"private" cbor:"private"`
	Passkey          string `json:"passkey" cbor:"passkey"`
	// Tracker to /register the room with once it is listening, if any
	Tracker string `json:"tracker" cbor:"tracker"`
	LogFile string `json:"log_file" cbor:"log_file"`
}

func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		Host:             DefaultHost,
		Port:             DefaultPort + 1,
		MaxConnections:   DefaultMaxConnections,
		MaxMessageLength: DefaultMaxMessageLength,
		AdminUser:        "admin",
	}
}

func LoadRoomConfig(path string) (RoomConfig, error) {
	cfg := DefaultRoomConfig()
	if err := loadFile(path, &cfg); err != nil {
		return cfg, err
	}

	envString("EIRC_HOST", &cfg.Host)
	envString("EIRC_ROOM_NAME", &cfg.Name)
	envString("EIRC_ROOM_ADMIN", &cfg.AdminUser)
	envString("EIRC_ROOM_PASSKEY", &cfg.Passkey)
	envString("EIRC_TRACKER", &cfg.Tracker)
	envString("EIRC_LOG_FILE", &cfg.LogFile)
	envBool("EIRC_ROOM_PRIVATE", &cfg.Private)
	for key, dst := range map[string]*int{
		"EIRC_PORT":            &cfg.Port,
		"EIRC_MAX_CONNECTIONS": &cfg.MaxConnections,
		"EIRC_MESSAGE_LENGTH":  &cfg.MaxMessageLength,
	} {
		if err := envInt(key, dst); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (c RoomConfig) Validate() error {
	if c.Name == "" {
		return errors.New("room name is required")
	}
	if c.Private && c.Passkey == "" {
		return errors.New("private rooms need a passkey")
	}
	if err := checkPort("port", c.Port); err != nil {
		return err
	}
	return checkLimits(c.MaxConnections, c.MaxMessageLength)
}

func (c RoomConfig) Room() server.Config {
	return server.Config{
		Host:             c.Host,
		Port:             c.Port,
		MaxConnections:   c.MaxConnections,
		MaxMessageLength: c.MaxMessageLength,
		Name:             c.Name,
		AdminUser:        c.AdminUser,
		AdminAddress:     c.AdminAddress,
		Private:          c.Private,
		Passkey:          c.Passkey,
	}
}

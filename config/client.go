package config

import (
	"net"
	"strconv"

	"github.com/CiaranWoodward/roomhub/client"
)

type ClientConfig struct {
	TrackerHost string `json:"tracker_host" cbor:"tracker_host"`
	TrackerPort int    `json:"tracker_port" cbor:"tracker_port"`
	Username    string `json:"username" cbor:"username"`
	LogFile     string `json:"log_file" cbor:"log_file"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		TrackerHost: DefaultHost,
		TrackerPort: DefaultPort,
	}
}

// LoadClientConfig reads path, if given, and applies env overrides.
// The username may still be empty; the front-end asks for it.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := loadFile(path, &cfg); err != nil {
		return cfg, err
	}

	envString("EIRC_HOST", &cfg.TrackerHost)
	envString("EIRC_USERNAME", &cfg.Username)
	envString("EIRC_LOG_FILE", &cfg.LogFile)
	if err := envInt("EIRC_PORT", &cfg.TrackerPort); err != nil {
		return cfg, err
	}
	return cfg, checkPort("tracker port", cfg.TrackerPort)
}

func (c ClientConfig) TrackerAddr() string {
	return net.JoinHostPort(c.TrackerHost, strconv.Itoa(c.TrackerPort))
}

func (c ClientConfig) Session() client.Config {
	return client.Config{
		TrackerAddr: c.TrackerAddr(),
		Username:    c.Username,
	}
}

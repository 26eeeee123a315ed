// Package config loads tracker, room and client settings from defaults, an
// optional JSON or CBOR file, and EIRC_* environment overrides, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	DefaultHost             = "localhost"
	DefaultPort             = 8888
	DefaultMaxConnections   = 32
	DefaultMaxMessageLength = 1024
)

// Read path into v, choosing the decoder by extension. A missing file is not an error.
func loadFile(path string, v interface{}) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(b, v); err != nil {
			return fmt.Errorf("parse json %s: %w", path, err)
		}
	case ".cbor":
		if err := cbor.Unmarshal(b, v); err != nil {
			return fmt.Errorf("parse cbor %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = (v == "1" || strings.ToLower(v) == "true")
	}
}

func checkPort(name string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s %d out of range", name, port)
	}
	return nil
}

func checkLimits(maxConns, msgLength int) error {
	if maxConns <= 0 {
		return fmt.Errorf("max connections must be positive, got %d", maxConns)
	}
	if msgLength <= 0 {
		return fmt.Errorf("message length must be positive, got %d", msgLength)
	}
	return nil
}

// Package logging routes the standard logger to stdout and a rotating file
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures rotating file logs and also writes to stdout.
// With an empty file the log goes to logs/<app>.log next to the executable.
// The returned closer flushes and closes the file.
func Setup(app, file string) (io.Closer, error) {
	return setup(app, file, os.Stdout)
}

// SetupQuiet is Setup without the stdout copy, for interactive front-ends
func SetupQuiet(app, file string) (io.Closer, error) {
	return setup(app, file, nil)
}

func setup(app, file string, console io.Writer) (io.Closer, error) {
	if file == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		file = filepath.Join(filepath.Dir(exe), "logs", app+".log")
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	w := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    getEnvInt("EIRC_LOG_MAX_SIZE_MB", 20),
		MaxBackups: getEnvInt("EIRC_LOG_MAX_BACKUPS", 5),
		MaxAge:     getEnvInt("EIRC_LOG_MAX_AGE_DAYS", 7),
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if console != nil {
		log.SetOutput(io.MultiWriter(console, w))
	} else {
		log.SetOutput(w)
	}
	return w, nil
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			return n
		}
	}
	return def
}

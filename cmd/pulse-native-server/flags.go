package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into
// server.Config.
type cliConfig struct {
	tcpPort           uint
	unixSocketDir     string
	requireAuthCookie bool
	authCookiePath    string
	socketOwnerUser   string
	socketOwnerGroup  string
	socketPermissions uint
	chunkSize         uint
	logLevel          string
	metricsAddr       string
	showVersion       bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("pulse-native-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}

	fs.UintVar(&cfg.tcpPort, "tcp-port", 4713, "TCP listen port; 0 disables the TCP transport")
	fs.StringVar(&cfg.unixSocketDir, "unix-socket-dir", "/tmp/pulse-native", "Directory holding the \"native\" socket and pid file; empty disables the UNIX transport")
	fs.BoolVar(&cfg.requireAuthCookie, "require-auth-cookie", false, "Require clients to present a matching auth cookie")
	fs.StringVar(&cfg.authCookiePath, "auth-cookie-path", "", "Path to a 256-byte auth cookie file (required when -require-auth-cookie is set)")
	fs.StringVar(&cfg.socketOwnerUser, "socket-owner-user", "", "Optional owner user for the UNIX socket")
	fs.StringVar(&cfg.socketOwnerGroup, "socket-owner-group", "", "Optional owner group for the UNIX socket")
	fs.UintVar(&cfg.socketPermissions, "socket-permissions", 0660, "POSIX mode for the UNIX socket")
	fs.UintVar(&cfg.chunkSize, "chunk-size", 1152, "Default minreq chunk size in bytes")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Optional address to serve Prometheus metrics on (e.g. :9713); empty disables it")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	if cfg.tcpPort == 0 && cfg.unixSocketDir == "" {
		return nil, errors.New("at least one of -tcp-port or -unix-socket-dir must be enabled")
	}

	if cfg.requireAuthCookie && cfg.authCookiePath == "" {
		return nil, errors.New("-auth-cookie-path is required when -require-auth-cookie is set")
	}

	if cfg.socketPermissions > 0777 {
		return nil, fmt.Errorf("socket-permissions must be a valid POSIX mode, got %o", cfg.socketPermissions)
	}

	return cfg, nil
}

// loadCookie reads and validates the auth cookie file:
// "a cookie file of the wrong length is fatal to startup."
func loadCookie(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read auth cookie: %w", err)
	}
	if len(data) != 256 {
		return nil, fmt.Errorf("auth cookie %q must be exactly 256 bytes, got %d", path, len(data))
	}
	return data, nil
}

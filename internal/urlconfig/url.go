// Package urlconfig parses the rethinkdb:// connection URL into a
// Config. It sits outside the connection engine proper, but every
// complete driver needs a way to turn a user-facing URL into dial
// parameters.
package urlconfig

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hasirciogluhq/rethinkconn/internal/stream"
)

// Config is the parsed form of a rethinkdb:// connection URL.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Parse parses "rethinkdb://[user[:password]@]host[:port]". Host is
// required; everything else defaults (port 28015, no credentials).
func Parse(raw string) (Config, error) {
	// A bare "host" or "host:port" has no "://" separator; net/url would
	// otherwise mistake "host" for the scheme (as in "localhost:28015"
	// parsing to scheme "localhost"). Supplying the scheme ourselves
	// routes both forms through the same parse below.
	if !strings.Contains(raw, "://") {
		raw = "rethinkdb://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("urlconfig: invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "rethinkdb" {
		return Config{}, fmt.Errorf("urlconfig: unsupported scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Config{}, fmt.Errorf("urlconfig: missing host in %q", raw)
	}

	cfg := Config{Host: host, Port: stream.DefaultPort}
	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("urlconfig: invalid port %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	if u.User != nil {
		cfg.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cfg.Password = pw
		}
	}

	return cfg, nil
}

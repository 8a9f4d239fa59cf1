package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hasirciogluhq/rethinkconn/pkg/rethinkdb"
)

// exit codes
const (
	exitOK         = 0
	exitConnection = 1
	exitQuery      = 2
	exitAuth       = 3
)

type rootConfig struct {
	host       string
	port       int
	user       string
	password   string
	timeout    time.Duration
	v0_4       bool
	healthAddr string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	cfg := &rootConfig{}

	cmd := &cobra.Command{
		Use:           "rethinkconn",
		Short:         "Minimal RethinkDB connection-engine client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if cfg.verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(level)
			cfg.resolveEnvVars()
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&cfg.host, "host", "H", "localhost", "RethinkDB host (env RETHINKDB_HOST)")
	f.IntVarP(&cfg.port, "port", "P", 28015, "RethinkDB port (env RETHINKDB_PORT)")
	f.StringVarP(&cfg.user, "user", "u", "admin", "RethinkDB user (env RETHINKDB_USER)")
	f.StringVarP(&cfg.password, "password", "p", "", "RethinkDB password (env RETHINKDB_PASSWORD)")
	f.DurationVarP(&cfg.timeout, "timeout", "t", 10*time.Second, "connection timeout")
	f.BoolVar(&cfg.v0_4, "legacy-handshake", false, "use the V0_4 handshake instead of V1_0/SCRAM")
	f.StringVar(&cfg.healthAddr, "health-addr", "", "if set, serve /healthz and /readyz on this address")
	f.BoolVarP(&cfg.verbose, "verbose", "v", false, "debug-level logging")

	cmd.AddCommand(newConnectCmd(cfg))
	cmd.AddCommand(newQueryCmd(cfg))
	cmd.AddCommand(newReplCmd(cfg))

	return cmd
}

// resolveEnvVars fills unset flags from RETHINKDB_* environment
// variables, the same convention RethinkDB's own client drivers use.
func (c *rootConfig) resolveEnvVars() {
	if c.host == "localhost" {
		if v := os.Getenv("RETHINKDB_HOST"); v != "" {
			c.host = v
		}
	}
	if c.port == 28015 {
		if v := os.Getenv("RETHINKDB_PORT"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.port = n
			}
		}
	}
	if c.user == "admin" {
		if v := os.Getenv("RETHINKDB_USER"); v != "" {
			c.user = v
		}
	}
	if c.password == "" {
		c.password = os.Getenv("RETHINKDB_PASSWORD")
	}
}

func (c *rootConfig) connect() (*rethinkdb.Connection, error) {
	url := fmt.Sprintf("rethinkdb://%s:%d", c.host, c.port)
	hv := rethinkdb.V1_0
	if c.v0_4 {
		hv = rethinkdb.V0_4
	}
	return rethinkdb.Connect(url, rethinkdb.ConnectOptions{
		HandshakeVersion: hv,
		Username:         c.user,
		Password:         c.password,
		DialTimeout:      c.timeout,
	})
}

// exitCodeFor maps an error returned by a subcommand to a process exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var authErr *rethinkdb.AuthError
	var handshakeErr *rethinkdb.HandshakeError
	if errors.As(err, &authErr) || errors.As(err, &handshakeErr) {
		return exitAuth
	}
	var queryErr *rethinkdb.QueryError
	if errors.As(err, &queryErr) {
		return exitQuery
	}
	return exitConnection
}

package main

import (
	"testing"

	"github.com/hasirciogluhq/rethinkconn/pkg/rethinkdb"
)

func TestExitCodeForNil(t *testing.T) {
	if got := exitCodeFor(nil); got != exitOK {
		t.Fatalf("got %d, want %d", got, exitOK)
	}
}

func TestExitCodeForAuthError(t *testing.T) {
	err := &rethinkdb.AuthError{Reason: "bad password"}
	if got := exitCodeFor(err); got != exitAuth {
		t.Fatalf("got %d, want %d", got, exitAuth)
	}
}

func TestExitCodeForQueryError(t *testing.T) {
	err := &rethinkdb.QueryError{Kind: rethinkdb.ErrorKindRuntime, Message: "boom"}
	if got := exitCodeFor(err); got != exitQuery {
		t.Fatalf("got %d, want %d", got, exitQuery)
	}
}

func TestExitCodeForConnectError(t *testing.T) {
	err := &rethinkdb.ConnectError{Reason: "refused"}
	if got := exitCodeFor(err); got != exitConnection {
		t.Fatalf("got %d, want %d", got, exitConnection)
	}
}

func TestResolveEnvVarsLeavesExplicitFlagsAlone(t *testing.T) {
	t.Setenv("RETHINKDB_HOST", "fromenv")
	cfg := &rootConfig{host: "explicit-host", port: 28015, user: "admin"}
	cfg.resolveEnvVars()
	if cfg.host != "explicit-host" {
		t.Fatalf("host = %q, want unchanged", cfg.host)
	}
}

func TestResolveEnvVarsFillsDefaults(t *testing.T) {
	t.Setenv("RETHINKDB_HOST", "fromenv")
	cfg := &rootConfig{host: "localhost", port: 28015, user: "admin"}
	cfg.resolveEnvVars()
	if cfg.host != "fromenv" {
		t.Fatalf("host = %q, want fromenv", cfg.host)
	}
}

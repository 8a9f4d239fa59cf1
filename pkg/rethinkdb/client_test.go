package rethinkdb

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasirciogluhq/rethinkconn/internal/testserver"
)

func startFakeServer(t *testing.T, fake *testserver.FakeRethinkServer) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &testserver.Server{Listener: ln, Handler: fake}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return ln.Addr().String()
}

func TestConnectAndRunAtomQuery(t *testing.T) {
	resp, _ := json.Marshal(map[string]interface{}{"t": 1, "r": []interface{}{42}})
	fake := &testserver.FakeRethinkServer{
		Username:  "admin",
		Password:  "",
		Responses: [][]byte{resp},
	}
	addr := startFakeServer(t, fake)

	conn, err := Connect("rethinkdb://"+addr, ConnectOptions{DialTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer conn.Close()

	assert.True(t, conn.Connected())

	env, err := conn.Run([]byte(`[1,1]`))
	require.NoError(t, err)
	assert.Equal(t, float64(42), env.Value.Number)
}

func TestConnectWrongPasswordFails(t *testing.T) {
	fake := &testserver.FakeRethinkServer{Username: "admin", Password: "realpass"}
	addr := startFakeServer(t, fake)

	_, err := Connect("rethinkdb://"+addr, ConnectOptions{
		Username:    "admin",
		Password:    "wrongpass",
		DialTimeout: 2 * time.Second,
	})
	assert.Error(t, err)
}

func TestCursorIteratesMultipleBatches(t *testing.T) {
	batch1, _ := json.Marshal(map[string]interface{}{"t": 3, "r": []interface{}{map[string]interface{}{"id": 1}}})
	batch2, _ := json.Marshal(map[string]interface{}{"t": 2, "r": []interface{}{map[string]interface{}{"id": 2}}})
	fake := &testserver.FakeRethinkServer{
		Username:  "admin",
		Responses: [][]byte{batch1, batch2},
	}
	addr := startFakeServer(t, fake)

	conn, err := Connect("rethinkdb://"+addr, ConnectOptions{DialTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer conn.Close()

	cur, err := conn.RunCursor([]byte(`[1,1]`))
	require.NoError(t, err)
	defer cur.Close()

	var ids []float64
	var row struct {
		ID float64 `json:"id"`
	}
	for cur.Next(&row) {
		ids = append(ids, row.ID)
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, []float64{1, 2}, ids)
}

package server

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daniel-jacob-pearson/moosic/internal/api"
	"github.com/daniel-jacob-pearson/moosic/internal/store"
	"github.com/daniel-jacob-pearson/moosic/internal/xmlrpc"
)

func newTestRegistry() *api.Registry {
	m := &api.Methods{Store: store.New(), Log: zerolog.Nop(), Version: "1.5.6"}
	reg := api.NewRegistry()
	m.Install(reg)
	return reg
}

func startServer(t *testing.T, socketPath, tcpAddr string) *Server {
	t.Helper()
	srv := &Server{
		Registry:   newTestRegistry(),
		Log:        zerolog.Nop(),
		SocketPath: socketPath,
		TCPAddr:    tcpAddr,
	}
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func rpc(t *testing.T, client *http.Client, target, method string, params []any) (any, *xmlrpc.Fault) {
	t.Helper()
	var body bytes.Buffer
	require.NoError(t, xmlrpc.EncodeCall(&body, method, params))
	resp, err := client.Post(target, "text/xml", &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	value, fault, err := xmlrpc.ParseResponse(resp.Body)
	require.NoError(t, err)
	return value, fault
}

func TestServeOverUnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "socket")
	startServer(t, socketPath, "")

	client, target := LocalClient(socketPath)

	value, fault := rpc(t, client, target, "no_op", nil)
	require.Nil(t, fault)
	assert.Equal(t, true, value)

	value, fault = rpc(t, client, target, "append", []any{[]any{[]byte("/m/a.mp3")}})
	require.Nil(t, fault)
	assert.Equal(t, true, value)

	value, fault = rpc(t, client, target, "queue_length", nil)
	require.Nil(t, fault)
	assert.Equal(t, 1, value)
}

func TestServeOverTCP(t *testing.T) {
	srv := startServer(t, "", "127.0.0.1:0")
	target := "http://" + srv.TCPAddrActual() + "/"

	value, fault := rpc(t, http.DefaultClient, target, "api_version", nil)
	require.Nil(t, fault)
	assert.Equal(t, []any{1, 8}, value)
}

func TestDispatchMissBecomesFault(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "socket")
	startServer(t, socketPath, "")
	client, target := LocalClient(socketPath)

	_, fault := rpc(t, client, target, "bogus", nil)
	require.NotNil(t, fault)
	assert.Equal(t, xmlrpc.CodeNoSuchMethod, fault.Code)
}

func TestMalformedRequestBecomesFault(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "socket")
	startServer(t, socketPath, "")
	client, target := LocalClient(socketPath)

	resp, err := client.Post(target, "text/xml", bytes.NewBufferString("this is not xml"))
	require.NoError(t, err)
	defer resp.Body.Close()
	_, fault, err := xmlrpc.ParseResponse(resp.Body)
	require.NoError(t, err)
	require.NotNil(t, fault)
	assert.Equal(t, xmlrpc.CodeParse, fault.Code)
}

func TestStaleSocketIsRecovered(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "socket")
	// A leftover file that nothing is listening on.
	require.NoError(t, os.WriteFile(socketPath, nil, 0o600))

	startServer(t, socketPath, "")

	client, target := LocalClient(socketPath)
	value, fault := rpc(t, client, target, "no_op", nil)
	require.Nil(t, fault)
	assert.Equal(t, true, value)
}

func TestSecondInstanceRefusesToStart(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "socket")
	startServer(t, socketPath, "")

	second := &Server{
		Registry:   newTestRegistry(),
		Log:        zerolog.Nop(),
		SocketPath: socketPath,
	}
	err := second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestStopRemovesSocketFile(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "socket")
	srv := &Server{
		Registry:   newTestRegistry(),
		Log:        zerolog.Nop(),
		SocketPath: socketPath,
	}
	require.NoError(t, srv.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	_, err := os.Stat(socketPath)
	assert.True(t, os.IsNotExist(err))
}

func TestMulticallOverTheWire(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "socket")
	startServer(t, socketPath, "")
	client, target := LocalClient(socketPath)

	calls := []any{
		map[string]any{"methodName": "append", "params": []any{[]any{[]byte("/m/a.mp3")}}},
		map[string]any{"methodName": "queue_length", "params": []any{}},
	}
	value, fault := rpc(t, client, target, "system.multicall", []any{calls})
	require.Nil(t, fault)
	results := value.([]any)
	require.Len(t, results, 2)
	assert.Equal(t, []any{true}, results[0])
	assert.Equal(t, []any{1}, results[1])
}

// Package server exposes the method registry over the two Moosic
// transports: HTTP carrying XML-RPC on a Unix-domain socket under the
// configuration directory, and optionally on a TCP port.
//
// Both listeners share one dispatcher and one data store. net/http runs
// each accepted request in its own goroutine; mutual exclusion is
// provided solely by the data-store lock. Shutdown stops accepting new
// work but drains requests already in flight, so every client gets a
// reply.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/daniel-jacob-pearson/moosic/internal/api"
	"github.com/daniel-jacob-pearson/moosic/internal/xmlrpc"
)

// maxRequestBytes bounds a request body. Queue batches are large but not
// unbounded; this keeps a misbehaving client from exhausting memory.
const maxRequestBytes = 32 << 20

// Server runs the RPC listeners.
type Server struct {
	Registry   *api.Registry
	Log        zerolog.Logger
	SocketPath string // Unix socket path; empty disables the local listener
	TCPAddr    string // TCP listen address; empty disables the TCP listener

	httpServer *http.Server
	listeners  []net.Listener
	ownsSocket bool
	group      *errgroup.Group
}

// Start binds the configured listeners and begins serving. At least one
// transport must be configured.
func (s *Server) Start() error {
	if s.SocketPath == "" && s.TCPAddr == "" {
		return fmt.Errorf("no listener configured")
	}

	router := chi.NewRouter()
	router.Use(s.logRequests)
	router.Post("/*", s.handleRPC)
	s.httpServer = &http.Server{Handler: router}

	if s.SocketPath != "" {
		ln, err := s.listenUnix()
		if err != nil {
			return err
		}
		s.listeners = append(s.listeners, ln)
		s.ownsSocket = true
		s.Log.Info().Msgf("Listening on local socket %s", s.SocketPath)
	}
	if s.TCPAddr != "" {
		ln, err := net.Listen("tcp", s.TCPAddr)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("binding %s: %w", s.TCPAddr, err)
		}
		s.listeners = append(s.listeners, ln)
		s.Log.Info().Msgf("Listening on %s", ln.Addr())
	}

	s.group = &errgroup.Group{}
	for _, ln := range s.listeners {
		ln := ln
		s.group.Go(func() error {
			if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	return nil
}

// TCPAddrActual reports the bound TCP address, for logs and tests that
// listen on an ephemeral port.
func (s *Server) TCPAddrActual() string {
	for _, ln := range s.listeners {
		if _, ok := ln.(*net.TCPListener); ok {
			return ln.Addr().String()
		}
	}
	return ""
}

// Stop closes the listeners, waits for in-flight requests to drain, and
// removes the socket file if this server created it.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.group != nil {
		if gerr := s.group.Wait(); err == nil {
			err = gerr
		}
	}
	if s.ownsSocket {
		if rerr := os.Remove(s.SocketPath); rerr != nil && !os.IsNotExist(rerr) && err == nil {
			err = rerr
		}
	}
	return err
}

func (s *Server) closeListeners() {
	for _, ln := range s.listeners {
		ln.Close()
	}
	s.listeners = nil
}

// listenUnix binds the local socket, recovering from a stale socket file:
// if the address is in use, a no-op call probes for a live server. A
// reply means another instance owns the socket and startup must fail;
// no reply means the file is stale and is removed before one retry.
func (s *Server) listenUnix() (net.Listener, error) {
	ln, err := net.Listen("unix", s.SocketPath)
	if err == nil {
		return ln, nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return nil, fmt.Errorf("binding %s: %w", s.SocketPath, err)
	}
	if probeErr := Probe(s.SocketPath); probeErr == nil {
		return nil, fmt.Errorf("tried to start a new moosicd, but an instance of moosicd is already running")
	}
	s.Log.Warn().Msgf("Cleaning up stale socket file: %q.", s.SocketPath)
	if err := os.Remove(s.SocketPath); err != nil {
		return nil, fmt.Errorf("removing stale socket %s: %w", s.SocketPath, err)
	}
	ln, err = net.Listen("unix", s.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", s.SocketPath, err)
	}
	return ln, nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	w.Header().Set("Content-Type", "text/xml")

	name, params, err := xmlrpc.ParseCall(body)
	if err != nil {
		s.writeFault(w, xmlrpc.AsFault(err))
		return
	}
	result, err := s.Registry.Dispatch(name, params)
	if err != nil {
		s.writeFault(w, xmlrpc.AsFault(err))
		return
	}
	if err := xmlrpc.EncodeResponse(w, result); err != nil {
		s.Log.Error().Err(err).Msgf("Cannot encode response for %s", name)
	}
}

func (s *Server) writeFault(w http.ResponseWriter, f *xmlrpc.Fault) {
	if err := xmlrpc.EncodeFault(w, f); err != nil {
		s.Log.Error().Err(err).Msg("Cannot encode fault response")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Log.Debug().Msgf("Request from %s", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// LocalClient returns an HTTP client that dials the given Unix socket,
// plus the URL requests should target. The URL uses the quoted socket
// path as its host; the quoting's own '%' signs are escaped once more,
// since net/url accepts no other escapes in a host.
func LocalClient(socketPath string) (*http.Client, string) {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
	return client, "http://" + strings.ReplaceAll(url.QueryEscape(socketPath), "%", "%25") + "/"
}

// Probe makes a no-op call through the given socket and reports whether a
// live Moosic server answered.
func Probe(socketPath string) error {
	client, target := LocalClient(socketPath)
	client.Timeout = 2 * time.Second

	var body bytes.Buffer
	if err := xmlrpc.EncodeCall(&body, "no_op", nil); err != nil {
		return err
	}
	resp, err := client.Post(target, "text/xml", &body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, fault, err := xmlrpc.ParseResponse(resp.Body)
	if err != nil {
		return err
	}
	if fault != nil {
		return fault
	}
	return nil
}

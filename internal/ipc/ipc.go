// Package ipc exposes the daemon's control surface on a unix socket.
// Requests and replies are single JSON documents per connection.
package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
)

const DefaultSocketPath = "/tmp/parley.sock"

type Request struct {
	Cmd string `json:"cmd"` // "wake", "stop", "state"
}

type Response struct {
	Ok    bool   `json:"ok"`
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler serves one control request.
type Handler func(Request) Response

type Server struct {
	ln net.Listener
}

// Serve listens on socketPath and dispatches requests to handler on
// per-connection goroutines. A stale socket file from a previous run is
// removed first.
func Serve(socketPath string, handler Handler) (*Server, error) {
	os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handleConn(conn, handler)
		}
	}()
	return s, nil
}

func (s *Server) Close() error {
	return s.ln.Close()
}

func handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		return
	}
	resp := handler(req)
	_ = json.NewEncoder(conn).Encode(resp)
}

// Send delivers one command to a running daemon and returns its reply.
func Send(socketPath, cmd string) (Response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(Request{Cmd: cmd}); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

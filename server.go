package main

import (
	"context"
	"log/slog"
	"net"
)

// Server owns the plaintext TCP listener that session.go/dispatcher.go
// speak the framed protocol over. Encryption is handled per-connection by
// internal/frame, not by the listener itself — unlike the teacher's
// HTTPS+WebSocket Server, there is no TLS config here (spec.md §6: "the
// wire format is a length-prefixed AEAD frame over a raw TCP socket, not
// TLS").
type Server struct {
	addr string
	deps *Deps
}

// NewServer returns a Server that will listen on addr and dispatch every
// accepted connection through deps.
func NewServer(addr string, deps *Deps) *Server {
	return &Server{addr: addr, deps: deps}
}

// Run listens on s.addr and spawns one goroutine per accepted connection,
// blocking until ctx is canceled. Mirrors the teacher's Run/shutdown-on-
// context-cancel shape, generalized from http.Server.Shutdown to a raw
// net.Listener close.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("listening", "addr", s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("accept", "err", err)
			continue
		}
		go handleConnection(ctx, conn, s.deps)
	}
}

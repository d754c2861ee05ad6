// Package tcpserver implements the raw-socket transport: a TCP listener
// whose connections speak the line-framed wire protocol against the hub.
package tcpserver

import (
	"context"
	"net"

	pkgerrors "github.com/pkg/errors"

	"github.com/cardhouse/roomhub/internal/logger"
	"github.com/cardhouse/roomhub/internal/server"
)

// Serve binds addr and accepts connections until ctx is cancelled, spawning
// one session per connection. A bind failure is returned immediately and is
// fatal to the caller; per-connection accept errors only skip that iteration.
func Serve(ctx context.Context, cfg server.Config, hub *server.Hub) error {
	ln, err := net.Listen("tcp", cfg.TCPAddr)
	if err != nil {
		return pkgerrors.Wrapf(err, "bind tcp listener on %s", cfg.TCPAddr)
	}
	logger.InfoF("TCP server listening on %s", ln.Addr().String())

	go func() {
		<-ctx.Done()
		if err := ln.Close(); err != nil {
			logger.WarnF("TCP listener close error: %v", err)
		}
	}()

	sem := make(chan struct{}, cfg.MaxConns)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || pkgerrors.Is(err, net.ErrClosed) {
				logger.Info("TCP server stopped")
				return nil
			}
			logger.ErrorF("Accept connection error: %v", err)
			continue
		}

		logger.DebugF("Accepted new connection from %s", conn.RemoteAddr().String())

		sem <- struct{}{}
		go func(c net.Conn) {
			defer func() { <-sem }()
			newSession(c, hub, cfg).serve()
		}(conn)
	}
}

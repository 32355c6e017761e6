// Package control serves the daemon's local request socket. Each connection
// carries one framed request answered by one framed reply.
package control

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/cluster"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/framing"
	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
	"github.com/pkg/errors"
)

const socketMode = 0660

// Server answers requests on a Unix stream socket with a handler.
type Server struct {
	log     logging.Logger
	path    string
	max     int
	timeout time.Duration
	handler cluster.Handler
}

// NewServer creates a Server listening at path. timeout bounds each frame
// exchanged with a client.
func NewServer(log logging.Logger, path string, max int, timeout time.Duration, h cluster.Handler) *Server {
	if max <= 0 {
		max = framing.DefaultMaxSize
	}
	return &Server{log: log, path: path, max: max, timeout: timeout, handler: h}
}

// Serve accepts connections until ctx is done. A socket left behind by an
// earlier run is replaced and the socket is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	log := s.log.WithField("socket", s.path)

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return errors.Wrap(err, "unable to create control socket directory")
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unable to remove stale control socket")
	}
	l, err := net.Listen("unix", s.path)
	if err != nil {
		return errors.Wrap(err, "unable to listen on control socket")
	}
	defer os.Remove(s.path)
	if err := os.Chmod(s.path, socketMode); err != nil {
		l.Close()
		return errors.Wrap(err, "unable to set control socket mode")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		l.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	log.Debug("serving requests")
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Debug("stopped serving requests")
				return nil
			}
			return errors.Wrap(err, "unable to accept control connection")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(log, conn)
		}()
	}
}

func (s *Server) handle(log logging.Logger, nc net.Conn) {
	conn := framing.NewConn(nc, s.max, s.timeout)
	defer conn.Close()

	req, err := conn.Recv()
	if err != nil {
		log.WithError(err).Warn("unable to read control request")
		return
	}
	if err := conn.Send(s.handler(req)); err != nil {
		log.WithError(err).Warn("unable to answer control request")
	}
}

// Call sends payload to the control socket at path and returns the reply.
func Call(path string, max int, timeout time.Duration, payload []byte) ([]byte, error) {
	conn, err := framing.Dial(path, max, timeout)
	if err != nil {
		return nil, errors.WithMessage(err, "daemon unreachable")
	}
	defer conn.Close()

	if err := conn.Send(payload); err != nil {
		return nil, err
	}
	return conn.Recv()
}

package singleinstance

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	residentHost  = "127.0.0.1"
	pingRequest   = "PING\n"
	pongResponse  = "PONG\n"
	successStatus = "SUCCESS\n"
	errorStatus   = "ERROR\n"
	maxPayload    = 1 << 20
	dialTimeout   = 2 * time.Second
	replyTimeout  = 45 * time.Second
)

// tcpServer implements Server over TCP loopback.
type tcpServer struct {
	lis      net.Listener
	incoming chan *tcpConn
	done     chan struct{}
	port     int

	closeOnce sync.Once
}

func newTcpServer() Server {
	return &tcpServer{incoming: make(chan *tcpConn, 8), done: make(chan struct{})}
}

// Start binds ONLY the start port of the configured range. If occupied, fail.
func (s *tcpServer) Start(ctx context.Context) error {
	if s.lis != nil {
		return nil
	}
	start, _ := PortRange()
	addr := fmt.Sprintf("%s:%d", residentHost, start)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Warn("singleinstance: failed to bind", "addr", addr, "err", err)
		return err
	}
	s.lis = lis
	s.port = start
	slog.Info("singleinstance: listening", "addr", addr)
	go s.acceptLoop(ctx)
	return nil
}

// Port returns the bound port (0 if not started).
func (s *tcpServer) Port() int { return s.port }

func (s *tcpServer) acceptLoop(ctx context.Context) {
	for {
		c, err := s.lis.Accept()
		if err != nil {
			return
		}
		tc, ok := s.readRequest(c)
		if !ok {
			continue
		}
		select {
		case s.incoming <- tc:
		case <-ctx.Done():
			_ = c.Close()
			return
		case <-s.done:
			_ = c.Close()
			return
		}
	}
}

// readRequest answers PING inline and parses anything else into a tcpConn.
func (s *tcpServer) readRequest(c net.Conn) (*tcpConn, bool) {
	remote := c.RemoteAddr().String()
	_ = c.SetDeadline(time.Now().Add(3 * time.Second))
	br := bufio.NewReader(c)
	bw := bufio.NewWriter(c)
	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		_ = c.Close()
		return nil, false
	}
	if line == pingRequest {
		slog.Debug("singleinstance: PING -> PONG", "remote", remote)
		_, _ = bw.WriteString(pongResponse)
		_ = bw.Flush()
		_ = c.Close()
		return nil, false
	}

	cmd, err := ParseCommand(line)
	if err != nil {
		slog.Warn("singleinstance: bad request", "remote", remote, "err", err)
		_, _ = bw.WriteString(errorStatus + err.Error())
		_ = bw.Flush()
		_ = c.Close()
		return nil, false
	}
	payload, err := io.ReadAll(io.LimitReader(br, maxPayload))
	if err != nil {
		slog.Warn("singleinstance: reading payload failed", "remote", remote, "err", err)
		_ = c.Close()
		return nil, false
	}
	_ = c.SetDeadline(time.Time{})
	slog.Info("singleinstance: request", "remote", remote, "command", cmd, "bytes", len(payload))
	return &tcpConn{c: c, r: Request{Command: cmd, Payload: strings.TrimSuffix(string(payload), "\n")}, w: bw}, true
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, net.ErrClosed
	case tc := <-s.incoming:
		return tc, nil
	}
}

func (s *tcpServer) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.lis != nil {
			_ = s.lis.Close()
		}
	})
	return nil
}

type tcpConn struct {
	c net.Conn
	r Request
	w *bufio.Writer
}

func (tc *tcpConn) Request() Request { return tc.r }

func (tc *tcpConn) RespondSuccess(text string) error {
	if _, err := tc.w.WriteString(successStatus + text); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) RespondError(msg string) error {
	if _, err := tc.w.WriteString(errorStatus + msg); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Close() error { return tc.c.Close() }

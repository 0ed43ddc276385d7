package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"
)

type tcpClient struct{}

func newTcpClient() Client { return &tcpClient{} }

func (c *tcpClient) Send(ctx context.Context, req Request) (bool, string, error) {
	addr, ok := FindResident(ctx)
	if !ok {
		return false, "", ctx.Err()
	}
	slog.Debug("singleinstance: resident found", "addr", addr, "command", req.Command)
	reply, err := send(addr, req, dialTimeout)
	return true, reply, err
}

func send(addr string, req Request, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(req.Command + "\n" + req.Payload); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	// The payload ends at EOF.
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return "", err
		}
	}

	// Replies can take as long as a processing request.
	_ = conn.SetReadDeadline(time.Now().Add(replyTimeout))
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	body, _ := io.ReadAll(br)
	switch status {
	case successStatus:
		return string(body), nil
	case errorStatus:
		return "", errors.New(string(body))
	}
	return "", errors.New("malformed reply from resident")
}

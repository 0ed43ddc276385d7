package singleinstance

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"time"
)

const defaultProbeTimeout = 300 * time.Millisecond

// FindResident returns the address of the first port in the range whose
// listener answers PING, or false when none does.
func FindResident(ctx context.Context) (string, bool) {
	timeout := defaultProbeTimeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < timeout {
			timeout = d
		}
	}
	start, end := PortRange()
	for port := start; port <= end; port++ {
		if ctx.Err() != nil {
			return "", false
		}
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		if ping(addr, timeout) {
			return addr, true
		}
	}
	return "", false
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte(pingRequest)); err != nil {
		return false
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && resp == pongResponse
}

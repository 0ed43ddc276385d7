package singleinstance

import (
	"os"
	"strconv"
)

const (
	defaultPortStart = 49500
	defaultPortEnd   = 49550
)

// PortRange returns the inclusive control port range, read from
// INSTANT_TRANSLATOR_PORT_START and INSTANT_TRANSLATOR_PORT_END and clamped to
// [1024, 65535].
func PortRange() (int, int) {
	start := defaultPortStart
	end := defaultPortEnd
	if v := os.Getenv("INSTANT_TRANSLATOR_PORT_START"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			start = n
		}
	}
	if v := os.Getenv("INSTANT_TRANSLATOR_PORT_END"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			end = n
		}
	}
	if start < 1024 {
		start = 1024
	}
	if end > 65535 {
		end = 65535
	}
	if end < start {
		start, end = end, start
	}
	return start, end
}

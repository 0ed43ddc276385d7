package singleinstance

// This file defines the API for single-instance ownership and command delegation
// to the resident process.

import (
	"context"
	"fmt"
	"strings"
)

// Commands understood by the resident.
const (
	CmdTrigger = "TRIGGER" // act as if the hotkey was pressed
	CmdReplace = "REPLACE" // inject the payload into the focused window
	CmdActions = "ACTIONS" // payload is an actions JSON document to register
	CmdClear   = "CLEAR"   // unregister all actions
)

// Server owns the TCP endpoint and answers delegated requests.
type Server interface {
	// Start listens on the first port of the configured range. It fails if the port is taken.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection as a Conn, or ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close releases ownership and stops accepting clients.
	Close() error
}

// Conn represents one client connection and exposes request + response API.
type Conn interface {
	// Request returns the parsed client request.
	Request() Request
	// RespondSuccess sends success with an optional text body.
	RespondSuccess(text string) error
	// RespondError sends an error with human-readable message.
	RespondError(msg string) error
	// Close closes the underlying connection.
	Close() error
}

// Request is one command plus its payload, which may span lines.
type Request struct {
	Command string
	Payload string
}

// ParseCommand validates a command name.
func ParseCommand(s string) (string, error) {
	cmd := strings.ToUpper(strings.TrimSpace(s))
	switch cmd {
	case CmdTrigger, CmdReplace, CmdActions, CmdClear:
		return cmd, nil
	}
	return "", fmt.Errorf("unknown command %q", s)
}

// Client delegates commands to a resident server.
type Client interface {
	// Send scans the port range, performs the handshake and delivers req.
	// If no resident is found, returns delegated=false, err=nil.
	Send(ctx context.Context, req Request) (delegated bool, reply string, err error)
}

// NewServer returns TCP implementation.
func NewServer() Server { return newTcpServer() }

// NewClient returns TCP implementation.
func NewClient() Client { return newTcpClient() }

package singleinstance

import (
	"context"
	"testing"
	"time"
)

func usePort(t *testing.T, port string) {
	t.Setenv("INSTANT_TRANSLATOR_PORT_START", port)
	t.Setenv("INSTANT_TRANSLATOR_PORT_END", port)
}

func TestServerClientRoundTrip(t *testing.T) {
	usePort(t, "49541")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := NewServer()
	if err := srv.Start(ctx); err != nil {
		t.Skipf("loopback TCP unavailable in this environment: %v", err)
	}
	defer srv.Close()

	if addr, ok := FindResident(ctx); !ok || addr != "127.0.0.1:49541" {
		t.Fatalf("FindResident = %q, %v", addr, ok)
	}

	client := NewClient()
	type result struct {
		delegated bool
		reply     string
		err       error
	}
	resCh := make(chan result, 1)
	go func() {
		d, r, err := client.Send(ctx, Request{Command: CmdReplace, Payload: "line one\nline two"})
		resCh <- result{d, r, err}
	}()

	conn, err := srv.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	req := conn.Request()
	if req.Command != CmdReplace || req.Payload != "line one\nline two" {
		t.Errorf("request = %+v", req)
	}
	if err := conn.RespondSuccess("ok"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	_ = conn.Close()

	res := <-resCh
	if res.err != nil || !res.delegated || res.reply != "ok" {
		t.Fatalf("client result = %+v", res)
	}
}

func TestServerErrorReply(t *testing.T) {
	usePort(t, "49542")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := NewServer()
	if err := srv.Start(ctx); err != nil {
		t.Skipf("loopback TCP unavailable in this environment: %v", err)
	}
	defer srv.Close()

	errCh := make(chan error, 1)
	go func() {
		_, _, err := NewClient().Send(ctx, Request{Command: CmdTrigger})
		errCh <- err
	}()
	conn, err := srv.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_ = conn.RespondError("listener not running")
	_ = conn.Close()
	if err := <-errCh; err == nil || err.Error() != "listener not running" {
		t.Fatalf("err = %v", err)
	}
}

func TestNoResident(t *testing.T) {
	usePort(t, "49549")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	delegated, _, err := NewClient().Send(ctx, Request{Command: CmdClear})
	if delegated || err != nil {
		t.Fatalf("Send = %v, %v; want not delegated", delegated, err)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"TRIGGER\n", CmdTrigger, false},
		{"replace", CmdReplace, false},
		{" actions ", CmdActions, false},
		{"CLEAR", CmdClear, false},
		{"STDOUT\n", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseCommand(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestPortRange(t *testing.T) {
	t.Setenv("INSTANT_TRANSLATOR_PORT_START", "80")
	t.Setenv("INSTANT_TRANSLATOR_PORT_END", "70000")
	start, end := PortRange()
	if start != 1024 || end != 65535 {
		t.Fatalf("range = %d-%d", start, end)
	}
}

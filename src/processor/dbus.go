package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

// D-Bus coordinates of the processing service.
const (
	DBusService   = "com.instantai.Translator"
	DBusPath      = "/com/instantai/Translator"
	DBusInterface = "com.instantai.Translator"
	dbusMethod    = DBusInterface + ".ProcessText"
)

// Caller is the part of a bus object used here; *dbus.Object satisfies it.
type Caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call
}

// DBus calls ProcessText(text, operation) on the session bus.
type DBus struct {
	conn    *dbus.Conn
	obj     Caller
	Timeout time.Duration
}

// NewDBus connects to the session bus. The service itself may start later;
// calls made before it appears fail with ErrIPC.
func NewDBus() (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: connect session bus: %v", ErrIPC, err)
	}
	return &DBus{conn: conn, obj: conn.Object(DBusService, dbus.ObjectPath(DBusPath))}, nil
}

// NewDBusWith uses obj directly.
func NewDBusWith(obj Caller) *DBus {
	return &DBus{obj: obj}
}

func (p *DBus) Process(ctx context.Context, text, operation string) (string, error) {
	ctx, cancel := bounded(ctx, p.Timeout)
	defer cancel()

	start := time.Now()
	var out string
	call := p.obj.CallWithContext(ctx, dbusMethod, 0, text, operation)
	if err := call.Store(&out); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrIPC, operation, err)
	}
	if out == "" {
		return "", fmt.Errorf("%w: %s: empty reply", ErrIPC, operation)
	}
	slog.Info("text processed over D-Bus", "operation", operation, "elapsed", time.Since(start))
	return out, nil
}

// Close releases the bus connection.
func (p *DBus) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

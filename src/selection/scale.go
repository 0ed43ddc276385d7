package selection

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CoordinateTransform maps raw pointer coordinates to the coordinate space the
// popup is placed in. Scaling heuristics plug in here.
type CoordinateTransform func(x, y int) (int, int)

// Identity leaves coordinates untouched.
func Identity(x, y int) (int, int) { return x, y }

// Scale divides coordinates by factor. Factors <= 1 yield Identity.
func Scale(factor float64) CoordinateTransform {
	if factor <= 1 {
		return Identity
	}
	return func(x, y int) (int, int) {
		return int(float64(x) / factor), int(float64(y) / factor)
	}
}

const baseDPI = 96.0

// ScaleProbe gathers the inputs for DetectScale.
type ScaleProbe struct {
	Getenv func(string) string
	// XResources returns the output of `xrdb -query`.
	XResources func(ctx context.Context) (string, error)
}

// DefaultProbe reads the process environment and runs xrdb.
func DefaultProbe() ScaleProbe {
	return ScaleProbe{Getenv: os.Getenv, XResources: queryXrdb}
}

// DetectScale returns the display scale factor, trying GDK_SCALE,
// QT_SCALE_FACTOR and then Xft.dpi. It returns 1 when nothing applies.
func DetectScale(ctx context.Context, p ScaleProbe) float64 {
	for _, key := range []string{"GDK_SCALE", "QT_SCALE_FACTOR"} {
		if p.Getenv == nil {
			break
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(p.Getenv(key)), 64); err == nil && f > 0 {
			slog.Debug("display scale from environment", "var", key, "factor", f)
			return f
		}
	}
	if p.XResources != nil {
		out, err := p.XResources(ctx)
		if err != nil {
			slog.Debug("xrdb query failed", "err", err)
			return 1
		}
		if dpi, ok := parseXftDPI(out); ok && dpi > baseDPI {
			slog.Debug("display scale from Xft.dpi", "dpi", dpi)
			return dpi / baseDPI
		}
	}
	return 1
}

func parseXftDPI(resources string) (float64, bool) {
	sc := bufio.NewScanner(strings.NewReader(resources))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.TrimSpace(key) != "Xft.dpi" {
			continue
		}
		dpi, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || dpi <= 0 {
			return 0, false
		}
		return dpi, true
	}
	return 0, false
}

func queryXrdb(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "xrdb", "-query").Output()
	return string(out), err
}

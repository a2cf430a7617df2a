// Package snapshot writes the last rendered frame to a timestamped image file.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pkg/metrics"
	"github.com/autopeer-io/skypeer/pkg/log"
)

// TimeLayout names snapshot files, e.g. 2024-05-01_13-45-09.jpg.
const TimeLayout = "2006-01-02_15-04-05"

// FrameSource yields the frame to capture.
type FrameSource interface {
	Frame() *core.Frame
}

// Config configures a Taker.
type Config struct {
	Dir    string
	Format string // jpg or png

	// Uploader is optional.
	Uploader Uploader

	Clock clock.PassiveClock
}

// Result describes a written snapshot.
type Result struct {
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
	Seq  uint64 `json:"seq"`
}

// Taker takes snapshots.
type Taker struct {
	dir      string
	format   string
	uploader Uploader
	clock    clock.PassiveClock
}

// New returns a Taker writing into cfg.Dir.
func New(cfg Config) *Taker {
	t := &Taker{
		dir:      cfg.Dir,
		format:   strings.ToLower(cfg.Format),
		uploader: cfg.Uploader,
		clock:    cfg.Clock,
	}
	if t.format == "jpeg" || t.format == "" {
		t.format = "jpg"
	}
	if t.clock == nil {
		t.clock = clock.RealClock{}
	}
	return t
}

// Take encodes the current frame of src. A file taken within the same second
// as a previous one replaces it.
func (t *Taker) Take(ctx context.Context, src FrameSource) (Result, error) {
	f := src.Frame()
	if f.Degenerate() {
		metrics.SnapshotsTotal.WithLabelValues("no_frame").Inc()
		return Result{}, core.ErrNoFrame
	}

	var (
		buf         bytes.Buffer
		contentType string
		err         error
	)
	switch t.format {
	case "png":
		contentType = "image/png"
		err = png.Encode(&buf, f.Image())
	default:
		contentType = "image/jpeg"
		err = jpeg.Encode(&buf, f.Image(), &jpeg.Options{Quality: 90})
	}
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("create snapshot dir: %w", err)
	}
	name := t.clock.Now().Format(TimeLayout) + "." + t.format
	res := Result{Path: filepath.Join(t.dir, name), Seq: f.Seq}
	if err := os.WriteFile(res.Path, buf.Bytes(), 0o644); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("write snapshot: %w", err)
	}
	log.Info("Snapshot saved", "path", res.Path, "seq", f.Seq)

	if t.uploader != nil {
		url, err := t.uploader.Upload(ctx, name, contentType, buf.Bytes())
		if err != nil {
			log.Error(err, "Snapshot upload failed, local copy kept", "path", res.Path)
		} else {
			res.URL = url
		}
	}

	metrics.SnapshotsTotal.WithLabelValues("ok").Inc()
	return res, nil
}

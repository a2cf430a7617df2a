package snapshot

import (
	"context"
	"errors"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pilot/link/fake"
)

type staticSource struct{ f *core.Frame }

func (s staticSource) Frame() *core.Frame { return s.f }

type recordingUploader struct {
	names []string
	err   error
}

func (u *recordingUploader) Upload(_ context.Context, name, contentType string, data []byte) (string, error) {
	u.names = append(u.names, name)
	if u.err != nil {
		return "", u.err
	}
	return "https://s3.local/snapshots/" + name, nil
}

var at = time.Date(2024, 5, 1, 13, 45, 9, 0, time.Local)

func TestTakeJPEG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "img")
	up := &recordingUploader{}
	tk := New(Config{Dir: dir, Uploader: up, Clock: testingclock.NewFakePassiveClock(at)})

	res, err := tk.Take(context.Background(), staticSource{fake.NewFrame(9, 8, 6)})
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	if want := filepath.Join(dir, "2024-05-01_13-45-09.jpg"); res.Path != want {
		t.Fatalf("Path = %q, want %q", res.Path, want)
	}
	if res.Seq != 9 || res.URL == "" || len(up.names) != 1 {
		t.Fatalf("result = %+v, uploads = %v", res, up.names)
	}

	fh, err := os.Open(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()
	img, err := jpeg.Decode(fh)
	if err != nil {
		t.Fatalf("not a jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Fatalf("bounds = %v", b)
	}
}

func TestTakePNG(t *testing.T) {
	dir := t.TempDir()
	tk := New(Config{Dir: dir, Format: "PNG", Clock: testingclock.NewFakePassiveClock(at)})

	res, err := tk.Take(context.Background(), staticSource{fake.NewFrame(1, 2, 2)})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(res.Path) != ".png" {
		t.Fatalf("Path = %q", res.Path)
	}
	fh, _ := os.Open(res.Path)
	defer fh.Close()
	if _, err := png.Decode(fh); err != nil {
		t.Fatalf("not a png: %v", err)
	}
}

func TestTakeWithoutFrame(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "img")
	tk := New(Config{Dir: dir})

	for _, src := range []staticSource{{nil}, {&core.Frame{Seq: 3}}} {
		if _, err := tk.Take(context.Background(), src); !errors.Is(err, core.ErrNoFrame) {
			t.Fatalf("expected ErrNoFrame, got %v", err)
		}
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("snapshot dir created without a frame")
	}
}

func TestUploadFailureKeepsLocalFile(t *testing.T) {
	up := &recordingUploader{err: errors.New("bucket gone")}
	tk := New(Config{Dir: t.TempDir(), Uploader: up, Clock: testingclock.NewFakePassiveClock(at)})

	res, err := tk.Take(context.Background(), staticSource{fake.NewFrame(1, 2, 2)})
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if res.URL != "" {
		t.Fatalf("URL = %q", res.URL)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Fatal(err)
	}
}

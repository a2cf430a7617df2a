package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/autopeer-io/skypeer/internal/pilot/journal"
	"github.com/autopeer-io/skypeer/internal/pilot/route"
)

func TestPrintRoute(t *testing.T) {
	rt := route.Parse("mem", "takeoff\nflip x\nhover\nforward 30\n")

	var buf bytes.Buffer
	skipped := printRoute(&buf, rt)
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}

	out := buf.String()
	for _, want := range []string{"takeoff", "forward 30", "skipped:", "ignored:", "4 step(s), 1 malformed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if rt.Len() != 4 {
		t.Fatalf("printing consumed the route: len=%d", rt.Len())
	}
}

func TestRouteCheckCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(good, []byte("takeoff\nland\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("up -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"valid route", []string{"check", good}, false},
		{"malformed route", []string{"check", bad}, true},
		{"missing file", []string{"check", filepath.Join(dir, "nope.txt")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRouteCommand()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJournalCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, e := range []journal.Entry{
		{RunID: "0123456789abcdef", Source: journal.SourceRoute, Line: 1, Command: "takeoff", Result: journal.ResultOK, Duration: time.Second},
		{Source: journal.SourceInteractive, Command: "land", Result: journal.ResultRejected},
	} {
		if err := j.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	j.Close()

	var out bytes.Buffer
	cmd := newJournalCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--path", path, "--run", "0123456789abcdef"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "takeoff") || strings.Contains(out.String(), "rejected") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "01234567") {
		t.Fatalf("run id not shortened:\n%s", out.String())
	}
}

package sdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/pkg/log"
)

// VideoConfig configures the H.264 receiver and decoder.
type VideoConfig struct {
	// ListenAddr receives the raw stream, e.g. :11111.
	ListenAddr string
	FFmpegPath string
	Width      int
	Height     int
}

// decoder pipes the UDP stream through ffmpeg and keeps the last frame.
type decoder struct {
	cfg VideoConfig

	conn  *net.UDPConn
	cmd   *exec.Cmd
	stdin io.WriteCloser

	ready chan struct{}

	mu     sync.Mutex
	frame  *core.Frame
	freeze bool
	frozen *core.Frame
	seq    uint64

	wg sync.WaitGroup
}

func newDecoder(cfg VideoConfig) *decoder {
	return &decoder{cfg: cfg, ready: make(chan struct{}, 1)}
}

func startDecoder(ctx context.Context, cfg VideoConfig) (*decoder, error) {
	d := newDecoder(cfg)

	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve video address: %w", err)
	}
	d.conn, err = net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for video on %s: %w", cfg.ListenAddr, err)
	}

	d.cmd = exec.CommandContext(context.WithoutCancel(ctx), cfg.FFmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-pix_fmt", "rgb24",
		"-s", strconv.Itoa(cfg.Width)+"x"+strconv.Itoa(cfg.Height),
		"-f", "rawvideo", "pipe:1")
	d.stdin, err = d.cmd.StdinPipe()
	if err != nil {
		d.conn.Close()
		return nil, err
	}
	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		d.conn.Close()
		return nil, err
	}
	if err := d.cmd.Start(); err != nil {
		d.conn.Close()
		return nil, fmt.Errorf("start %s: %w", cfg.FFmpegPath, err)
	}

	d.wg.Add(2)
	go d.pump()
	go func() {
		defer d.wg.Done()
		if err := d.readFrames(stdout); err != nil {
			log.Error(err, "Video decoder stopped")
		}
	}()

	log.Info("Video decoder started", "listen", d.conn.LocalAddr().String(), "size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
	return d, nil
}

// pump forwards H.264 datagrams into ffmpeg.
func (d *decoder) pump() {
	defer d.wg.Done()
	defer d.stdin.Close()

	buf := make([]byte, 2048)
	for {
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Error(err, "Reading video datagram failed")
			}
			return
		}
		if _, err := d.stdin.Write(buf[:n]); err != nil {
			log.Error(err, "Writing to ffmpeg failed")
			return
		}
	}
}

// readFrames splits r into fixed-size RGB24 frames until EOF.
func (d *decoder) readFrames(r io.Reader) error {
	size := d.cfg.Width * d.cfg.Height * 3
	if size <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", d.cfg.Width, d.cfg.Height)
	}
	for {
		pix := make([]byte, size)
		if _, err := io.ReadFull(r, pix); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
		d.publish(pix)
	}
}

func (d *decoder) publish(pix []byte) {
	d.mu.Lock()
	d.seq++
	d.frame = &core.Frame{
		Seq:        d.seq,
		Width:      d.cfg.Width,
		Height:     d.cfg.Height,
		Pix:        pix,
		CapturedAt: time.Now(),
	}
	d.mu.Unlock()

	select {
	case d.ready <- struct{}{}:
	default:
	}
}

func (d *decoder) Frame() *core.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.freeze {
		return d.frozen
	}
	return d.frame
}

func (d *decoder) SetFreeze(frozen bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if frozen && !d.freeze {
		d.frozen = d.frame
	}
	d.freeze = frozen
}

func (d *decoder) Close() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	if d.cmd != nil && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	d.wg.Wait()
	if d.cmd != nil {
		_ = d.cmd.Wait()
	}
	return err
}

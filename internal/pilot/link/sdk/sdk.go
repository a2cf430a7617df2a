// Package sdk implements core.Link over the Tello SDK text protocol: one UDP
// datagram per command, answered by "ok" or "error ...", plus an H.264 video
// stream decoded by an ffmpeg child process.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/pkg/log"
)

// Config configures a Link.
type Config struct {
	// DroneAddr is the drone command endpoint, e.g. 192.168.10.1:8889.
	DroneAddr string
	// LocalAddr is the local UDP endpoint commands are sent from.
	LocalAddr string

	// CommandTimeout bounds a command when the caller's ctx has no deadline.
	CommandTimeout time.Duration

	// Video is nil when video is disabled.
	Video *VideoConfig
}

var (
	_ core.Link          = (*Link)(nil)
	_ core.FrameNotifier = (*Link)(nil)
	_ core.VideoStreamer = (*Link)(nil)
)

// Link talks to a real drone.
type Link struct {
	cfg   Config
	conn  *net.UDPConn
	drone *net.UDPAddr

	// sendMu keeps one command in flight; the SDK answers in order.
	sendMu    sync.Mutex
	responses chan string

	video *decoder

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// Dial binds the local endpoint and, when configured, starts the video
// decoder. It does not talk to the drone yet.
func Dial(ctx context.Context, cfg Config) (*Link, error) {
	drone, err := net.ResolveUDPAddr("udp", cfg.DroneAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve drone address: %w", err)
	}
	local, err := net.ResolveUDPAddr("udp", cfg.LocalAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve local address: %w", err)
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.LocalAddr, err)
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 7 * time.Second
	}

	l := &Link{
		cfg:       cfg,
		conn:      conn,
		drone:     drone,
		responses: make(chan string, 1),
		closed:    make(chan struct{}),
	}

	if cfg.Video != nil {
		dec, err := startDecoder(ctx, *cfg.Video)
		if err != nil {
			conn.Close()
			return nil, err
		}
		l.video = dec
	} else {
		l.video = newDecoder(VideoConfig{})
	}

	l.wg.Add(1)
	go l.readResponses()

	log.Info("Drone link ready", "drone", drone.String(), "local", conn.LocalAddr().String(), "video", cfg.Video != nil)
	return l, nil
}

// LocalAddr returns the bound command endpoint.
func (l *Link) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

func (l *Link) readResponses() {
	defer l.wg.Done()
	buf := make([]byte, 1024)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.closed:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error(err, "Reading drone response failed")
			continue
		}
		if !from.IP.Equal(l.drone.IP) || from.Port != l.drone.Port {
			continue
		}
		resp := strings.TrimSpace(string(buf[:n]))

		// Keep only the newest answer; a late reply to a timed-out command
		// must not be taken for the next one.
		select {
		case l.responses <- resp:
		default:
			select {
			case <-l.responses:
			default:
			}
			l.responses <- resp
		}
	}
}

// Send writes one SDK command and waits for its answer.
func (l *Link) Send(ctx context.Context, cmd string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.CommandTimeout)
		defer cancel()
	}

	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	select {
	case <-l.closed:
		return core.NewLinkError(cmd, net.ErrClosed)
	default:
	}

	// Drop a stale answer left by an earlier timeout.
	select {
	case <-l.responses:
	default:
	}

	if _, err := l.conn.WriteToUDP([]byte(cmd), l.drone); err != nil {
		return core.NewLinkError(cmd, err)
	}

	select {
	case resp := <-l.responses:
		if strings.EqualFold(resp, "ok") {
			return nil
		}
		return core.NewLinkError(cmd, fmt.Errorf("drone answered %q", resp))
	case <-ctx.Done():
		return core.NewLinkError(cmd, ctx.Err())
	case <-l.closed:
		return core.NewLinkError(cmd, net.ErrClosed)
	}
}

func (l *Link) SendControlCommand(ctx context.Context) error {
	return l.Send(ctx, "command")
}

func (l *Link) StreamOn(ctx context.Context) error {
	return l.Send(ctx, "streamon")
}

func (l *Link) TakeOff(ctx context.Context) error {
	return l.Send(ctx, "takeoff")
}

func (l *Link) Land(ctx context.Context) error {
	return l.Send(ctx, "land")
}

func (l *Link) Move(ctx context.Context, dir core.MoveDirection, cm int) error {
	return l.Send(ctx, fmt.Sprintf("%s %d", dir, cm))
}

func (l *Link) Rotate(ctx context.Context, dir core.RotateDirection, degrees int) error {
	return l.Send(ctx, fmt.Sprintf("%s %d", dir, degrees))
}

func (l *Link) Flip(ctx context.Context, dir core.FlipDirection) error {
	return l.Send(ctx, fmt.Sprintf("flip %s", dir))
}

func (l *Link) ReadFrame() *core.Frame {
	return l.video.Frame()
}

func (l *Link) FrameReady() <-chan struct{} {
	return l.video.ready
}

func (l *Link) SetVideoFreeze(frozen bool) {
	l.video.SetFreeze(frozen)
}

// Close stops the decoder and releases the sockets.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.conn.Close()
		if verr := l.video.Close(); verr != nil && err == nil {
			err = verr
		}
		l.wg.Wait()
		log.Info("Drone link closed")
	})
	return err
}

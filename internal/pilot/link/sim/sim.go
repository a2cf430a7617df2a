// Package sim is a drone simulator implementing core.Link. Motion commands
// take a configurable time, fail unless airborne, and a synthetic video
// stream is produced at a fixed rate.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/pkg/log"
)

var (
	_ core.Link          = (*Link)(nil)
	_ core.FrameNotifier = (*Link)(nil)
	_ core.VideoStreamer = (*Link)(nil)
)

var (
	errNotInSDKMode = errors.New("error Not in SDK mode")
	errNotAirborne  = errors.New("error Not airborne")
	errAirborne     = errors.New("error Already airborne")
)

// Config configures the simulator.
type Config struct {
	// Latency is how long every command takes.
	Latency time.Duration

	// FrameInterval is the synthetic video period; zero disables video.
	FrameInterval time.Duration
	Width         int
	Height        int

	Clock clock.WithTicker
}

// Pose is the simulated position relative to the take-off point.
type Pose struct {
	Flying  bool `json:"flying"`
	SDKMode bool `json:"sdkMode"`
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Z       int  `json:"z"`
	Yaw     int  `json:"yaw"`
	Flips   int  `json:"flips"`
}

// Link is the simulator.
type Link struct {
	cfg   Config
	clock clock.WithTicker

	mu        sync.Mutex
	pose      Pose
	streaming bool
	frame     *core.Frame
	freeze    bool
	frozen    *core.Frame
	seq       uint64

	ready     chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts a simulator.
func New(cfg Config) *Link {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 320, 240
	}
	l := &Link{
		cfg:   cfg,
		clock: cfg.Clock,
		ready: make(chan struct{}, 1),
		stop:  make(chan struct{}),
	}
	if cfg.FrameInterval > 0 {
		l.wg.Add(1)
		go l.produce()
	}
	log.Info("Drone simulator started", "latency", cfg.Latency, "frameInterval", cfg.FrameInterval)
	return l
}

// Pose returns the simulated state.
func (l *Link) Pose() Pose {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pose
}

func (l *Link) wait(ctx context.Context, op string) error {
	select {
	case <-l.stop:
		return core.NewLinkError(op, errors.New("simulator closed"))
	default:
	}
	if l.cfg.Latency <= 0 {
		return nil
	}
	t := l.clock.NewTimer(l.cfg.Latency)
	defer t.Stop()
	select {
	case <-t.C():
		return nil
	case <-ctx.Done():
		return core.NewLinkError(op, ctx.Err())
	case <-l.stop:
		return core.NewLinkError(op, errors.New("simulator closed"))
	}
}

// apply runs the latency and then mutates the pose under the lock.
func (l *Link) apply(ctx context.Context, op string, fn func(p *Pose) error) error {
	if err := l.wait(ctx, op); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if op != "command" && !l.pose.SDKMode {
		return core.NewLinkError(op, errNotInSDKMode)
	}
	if err := fn(&l.pose); err != nil {
		return core.NewLinkError(op, err)
	}
	log.Debug("Simulated command", "op", op, "pose", fmt.Sprintf("%+v", l.pose))
	return nil
}

func (l *Link) SendControlCommand(ctx context.Context) error {
	return l.apply(ctx, "command", func(p *Pose) error {
		p.SDKMode = true
		return nil
	})
}

func (l *Link) StreamOn(ctx context.Context) error {
	return l.apply(ctx, "streamon", func(p *Pose) error {
		l.streaming = true
		return nil
	})
}

func (l *Link) TakeOff(ctx context.Context) error {
	return l.apply(ctx, "takeoff", func(p *Pose) error {
		if p.Flying {
			return errAirborne
		}
		p.Flying = true
		p.Z = 80
		return nil
	})
}

func (l *Link) Land(ctx context.Context) error {
	return l.apply(ctx, "land", func(p *Pose) error {
		if !p.Flying {
			return errNotAirborne
		}
		p.Flying = false
		p.Z = 0
		return nil
	})
}

func (l *Link) Move(ctx context.Context, dir core.MoveDirection, cm int) error {
	return l.apply(ctx, fmt.Sprintf("%s %d", dir, cm), func(p *Pose) error {
		if !p.Flying {
			return errNotAirborne
		}
		switch dir {
		case core.MoveUp:
			p.Z += cm
		case core.MoveDown:
			p.Z -= cm
		case core.MoveForward:
			p.X += cm
		case core.MoveBackward:
			p.X -= cm
		case core.MoveLeft:
			p.Y -= cm
		case core.MoveRight:
			p.Y += cm
		default:
			return fmt.Errorf("error unknown direction %q", dir)
		}
		return nil
	})
}

func (l *Link) Rotate(ctx context.Context, dir core.RotateDirection, degrees int) error {
	return l.apply(ctx, fmt.Sprintf("%s %d", dir, degrees), func(p *Pose) error {
		if !p.Flying {
			return errNotAirborne
		}
		if dir == core.RotateCCW {
			degrees = -degrees
		}
		p.Yaw = ((p.Yaw+degrees)%360 + 360) % 360
		return nil
	})
}

func (l *Link) Flip(ctx context.Context, dir core.FlipDirection) error {
	return l.apply(ctx, fmt.Sprintf("flip %s", dir), func(p *Pose) error {
		if !p.Flying {
			return errNotAirborne
		}
		if !dir.Valid() {
			return fmt.Errorf("error invalid flip direction %q", dir)
		}
		p.Flips++
		return nil
	})
}

func (l *Link) ReadFrame() *core.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.freeze {
		return l.frozen
	}
	return l.frame
}

func (l *Link) FrameReady() <-chan struct{} {
	return l.ready
}

func (l *Link) SetVideoFreeze(frozen bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if frozen && !l.freeze {
		l.frozen = l.frame
	}
	l.freeze = frozen
}

func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		close(l.stop)
		l.wg.Wait()
	})
	return nil
}

// produce emits a frame per tick once the stream is on. The image is a
// gradient shifted by yaw so movement is visible.
func (l *Link) produce() {
	defer l.wg.Done()
	ticker := l.clock.NewTicker(l.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C():
		}

		l.mu.Lock()
		if !l.streaming {
			l.mu.Unlock()
			continue
		}
		l.seq++
		l.frame = l.render(l.seq, l.pose)
		l.mu.Unlock()

		select {
		case l.ready <- struct{}{}:
		default:
		}
	}
}

func (l *Link) render(seq uint64, p Pose) *core.Frame {
	w, h := l.cfg.Width, l.cfg.Height
	pix := make([]byte, w*h*3)
	shift := p.Yaw * w / 360
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			pix[i] = byte((x + shift) * 255 / w)
			pix[i+1] = byte(y * 255 / h)
			pix[i+2] = byte(seq)
		}
	}
	return &core.Frame{Seq: seq, Width: w, Height: h, Pix: pix, CapturedAt: l.clock.Now()}
}

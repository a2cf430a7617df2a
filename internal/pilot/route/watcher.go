package route

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/autopeer-io/skypeer/pkg/log"
)

// reloadDebounce collapses the burst of events editors emit on save.
const reloadDebounce = 200 * time.Millisecond

// Watcher calls OnChange whenever the watched route file is written or
// replaced. The directory is watched so atomic renames are seen too.
type Watcher struct {
	path     string
	onChange func(path string)
}

// NewWatcher returns a watcher for path.
func NewWatcher(path string, onChange func(path string)) *Watcher {
	return &Watcher{path: filepath.Clean(path), onChange: onChange}
}

// Start blocks until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	log.Info("Watching route file", "path", w.path)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			w.onChange(w.path)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error(err, "Route watcher error", "path", w.path)
		}
	}
}

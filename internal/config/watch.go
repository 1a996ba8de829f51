package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zoobzio/clockz"

	"github.com/vango-dev/ripple/internal/errors"
)

// DefaultDebounce collapses the bursts of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// WatchOption configures Watch.
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
	clock    clockz.Clock
}

// WithDebounce sets how long the file must stay quiet before a reload.
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) { o.debounce = d }
}

// WithClock sets the clock that times the debounce.
func WithClock(c clockz.Clock) WatchOption {
	return func(o *watchOptions) { o.clock = c }
}

// Watch calls fn with the reloaded settings each time the file at path
// changes, until ctx ends. A file that fails to load is reported through
// fn's error and watching continues. fn runs on the watcher goroutine.
//
// The parent directory is watched so that editors which save by renaming
// a temporary file are still seen.
func Watch(ctx context.Context, path string, fn func(*Config, error), opts ...WatchOption) error {
	o := watchOptions{debounce: DefaultDebounce, clock: clockz.RealClock}
	for _, opt := range opts {
		opt(&o)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.New("C004").Wrap(err)
	}
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return errors.New("C004").Wrap(err)
	}

	go func() {
		defer watcher.Close()

		var timer clockz.Timer
		for {
			var timerC <-chan time.Time
			if timer != nil {
				timerC = timer.C()
			}

			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = o.clock.NewTimer(o.debounce)
					continue
				}
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(o.debounce)

			case <-timerC:
				timer = nil
				fn(LoadFile(target))

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fn(nil, errors.New("C004").Wrap(err))
			}
		}
	}()
	return nil
}

package process

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// A file is handed to the workers once it has seen no event for settle.
var (
	settle   = 300 * time.Millisecond
	tickRate = 250 * time.Millisecond
)

// Watch runs fn over the images already in dir and every image created in
// it afterwards, until ctx is cancelled. The directory is listed only once
// the watch is registered, so nothing written in between is missed.
func Watch(ctx context.Context, dir string, workers int, fn Func) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "process: new watcher")
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return eris.Wrapf(err, "process: watch %s", dir)
	}
	existing, err := ListImages(dir)
	if err != nil {
		return err
	}
	zap.L().Info("watching directory",
		zap.String("dir", dir),
		zap.Int("existing", len(existing)),
		zap.Int("workers", workers),
	)

	files := make(chan string, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		drain(ctx, files, workers, fn)
	}()

	err = debounce(ctx, w, existing, files)
	close(files)
	<-done
	return err
}

// debounce forwards image paths once their writes have settled. initial
// paths are due on the first tick unless an event for them arrives first.
func debounce(ctx context.Context, w *fsnotify.Watcher, initial []string, out chan<- string) error {
	pending := make(map[string]time.Time, len(initial))
	for _, name := range initial {
		pending[name] = time.Time{}
	}
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !IsImage(ev.Name) {
				continue
			}
			pending[ev.Name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) < settle {
					continue
				}
				select {
				case out <- name:
					delete(pending, name)
				case <-ctx.Done():
					return nil
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("watch error", zap.Error(err))
		}
	}
}

package process

import (
	"context"
	"sync"
)

// Func handles one file. Errors are the handler's to log.
type Func func(ctx context.Context, path string)

// RunPool feeds files to workers goroutines and waits for them. Files not
// yet started when ctx is cancelled are skipped.
func RunPool(ctx context.Context, files []string, workers int, fn Func) {
	ch := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(done)
		drain(ctx, ch, workers, fn)
	}()
	for _, f := range files {
		select {
		case ch <- f:
		case <-ctx.Done():
			close(ch)
			<-done
			return
		}
	}
	close(ch)
	<-done
}

// drain runs workers over ch until it is closed.
func drain(ctx context.Context, ch <-chan string, workers int, fn Func) {
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range ch {
				if ctx.Err() != nil {
					continue
				}
				fn(ctx, path)
			}
		}()
	}
	wg.Wait()
}

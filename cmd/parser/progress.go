package main

import (
	"log"
	"sync"
	"time"
)

type fileProgress struct {
	total  int64
	done   int64
	active bool
}

// tracker collects per-file progress from the workers and logs it on a ticker.
type tracker struct {
	mu    sync.Mutex
	order []string
	files map[string]*fileProgress
}

func newTracker(files []string) *tracker {
	t := &tracker{order: files, files: make(map[string]*fileProgress, len(files))}
	for _, f := range files {
		t.files[f] = &fileProgress{}
	}
	return t
}

func (t *tracker) begin(path string, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.files[path]; ok {
		p.total = total
		p.active = true
	}
}

func (t *tracker) update(path string, done int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.files[path]; ok {
		p.done = done
	}
}

func (t *tracker) finish(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.files[path]; ok {
		p.active = false
		p.done = p.total
	}
}

func (t *tracker) log() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.order {
		p := t.files[f]
		if !p.active {
			continue
		}
		pct := 0.0
		if p.total > 0 {
			pct = float64(p.done) * 100 / float64(p.total)
		}
		log.Printf("[INFO] progress %s %d/%d (%.1f%%)", f, p.done, p.total, pct)
	}
}

// run logs every interval until the returned stop func is called.
func (t *tracker) run(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				t.log()
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"deepbuild/internal/gateway/service/transcript"
)

// tail prints a project's transcript messages as they are appended.
type tail struct {
	mu  sync.Mutex
	tr  *transcript.Service
	id  string
	n   int
	out io.Writer
}

func newTail(tr *transcript.Service, id string, out io.Writer, skipExisting bool) *tail {
	t := &tail{tr: tr, id: id, out: out}
	if skipExisting {
		t.n = len(tr.History(id))
	}
	return t
}

func (t *tail) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := t.tr.History(t.id)
	if t.n > len(msgs) {
		t.n = 0
	}
	for _, m := range msgs[t.n:] {
		fmt.Fprintf(t.out, "[%s] %s\n\n", m.Role, m.Text)
	}
	t.n = len(msgs)
}

// follow flushes periodically until the returned stop func is called; stop
// does a final flush.
func (t *tail) follow(every time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				t.flush()
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
		t.flush()
	}
}

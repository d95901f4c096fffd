package ptyproc

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

// collector records process events for assertions.
type collector struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	exits  int
	info   ExitInfo
	exited chan struct{}
}

func newCollector() *collector {
	return &collector{exited: make(chan struct{})}
}

func (c *collector) handlers() Handlers {
	return Handlers{
		OnData: func(p []byte) {
			c.mu.Lock()
			c.buf.Write(p)
			c.mu.Unlock()
		},
		OnExit: func(info ExitInfo) {
			c.mu.Lock()
			c.exits++
			c.info = info
			first := c.exits == 1
			c.mu.Unlock()
			if first {
				close(c.exited)
			}
		},
	}
}

func (c *collector) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *collector) waitExit(t *testing.T, d time.Duration) ExitInfo {
	t.Helper()
	select {
	case <-c.exited:
	case <-time.After(d):
		t.Fatalf("process did not exit within %s; output so far: %q", d, c.output())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func (c *collector) waitOutput(t *testing.T, substr string, d time.Duration) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if bytes.Contains([]byte(c.output()), []byte(substr)) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q; got %q", substr, c.output())
}

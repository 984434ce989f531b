// Package coalescer implements the message coalescer: a per-session
// debounce buffer that joins rapid-fire fragments from mobile clients into
// one prompt instead of triggering an LLM call per fragment.
package coalescer

import (
	"strings"
	"sync"
	"time"
)

// Emit is called once per session when its debounce timer fires, with the
// buffered messages joined by newlines.
type Emit func(sessionID string, content string)

type sessionBuffer struct {
	mu     sync.Mutex
	lines  []string
	timer  *time.Timer
}

// Coalescer holds one buffer per session. The debounce window is resolved
// per session on every Add, so per-channel configuration and hot reloads
// both take effect immediately: in-flight timers keep whatever window was
// live when they were (re)armed, and new arrivals pick up changes.
type Coalescer struct {
	mu       sync.Mutex
	sessions map[string]*sessionBuffer
	window   func(sessionID string) time.Duration
	emit     Emit
}

// New builds a Coalescer. windowFn is consulted on every Add so the debounce
// window can differ per channel and be changed at runtime by a config
// reload without restarting in-flight timers.
func New(windowFn func(sessionID string) time.Duration, emit Emit) *Coalescer {
	return &Coalescer{
		sessions: make(map[string]*sessionBuffer),
		window:   windowFn,
		emit:     emit,
	}
}

// Add appends content to sessionID's buffer and (re)starts its timer.
func (c *Coalescer) Add(sessionID, content string) {
	buf := c.bufferFor(sessionID)

	buf.mu.Lock()
	defer buf.mu.Unlock()

	buf.lines = append(buf.lines, content)
	if buf.timer != nil {
		buf.timer.Stop()
	}
	buf.timer = time.AfterFunc(c.window(sessionID), func() { c.fire(sessionID) })
}

func (c *Coalescer) bufferFor(sessionID string) *sessionBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, ok := c.sessions[sessionID]
	if !ok {
		buf = &sessionBuffer{}
		c.sessions[sessionID] = buf
	}
	return buf
}

func (c *Coalescer) fire(sessionID string) {
	buf := c.bufferFor(sessionID)

	buf.mu.Lock()
	lines := buf.lines
	buf.lines = nil
	buf.timer = nil
	buf.mu.Unlock()

	if len(lines) == 0 {
		return
	}
	c.emit(sessionID, strings.Join(lines, "\n"))
}

// Flush immediately fires sessionID's buffer if non-empty, bypassing the
// timer. The Conductor does not call it on shutdown, so fragments still
// buffered when the process stops are not emitted.
func (c *Coalescer) Flush(sessionID string) {
	buf := c.bufferFor(sessionID)
	buf.mu.Lock()
	if buf.timer != nil {
		buf.timer.Stop()
		buf.timer = nil
	}
	buf.mu.Unlock()
	c.fire(sessionID)
}

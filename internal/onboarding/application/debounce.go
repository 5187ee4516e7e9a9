package application

import (
	"strings"
	"sync"
	"time"
)

// debouncer keeps at most one live timer per key. Every schedule or cancel
// bumps the key's sequence; a fired call is only current while its
// sequence is still the latest.
type debouncer struct {
	mu       sync.Mutex
	delay    time.Duration
	timers   map[string]*time.Timer
	seq      map[string]uint64
	inflight map[string]uint64
	fire     func(key, value string, seq uint64)
	closed   bool
}

func newDebouncer(delay time.Duration, fire func(key, value string, seq uint64)) *debouncer {
	return &debouncer{
		delay:    delay,
		timers:   make(map[string]*time.Timer),
		seq:      make(map[string]uint64),
		inflight: make(map[string]uint64),
		fire:     fire,
	}
}

// schedule replaces any pending timer for key. Blank values only cancel.
func (d *debouncer) schedule(key, value string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked(key)
	d.seq[key]++
	seq := d.seq[key]
	if d.closed || strings.TrimSpace(value) == "" {
		return seq
	}

	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.closed || d.seq[key] != seq {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.inflight[key] = seq
		d.mu.Unlock()
		d.fire(key, value, seq)
	})
	return seq
}

func (d *debouncer) cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked(key)
	if _, ok := d.seq[key]; ok {
		d.seq[key]++
	}
	delete(d.inflight, key)
}

func (d *debouncer) stopLocked(key string) {
	if timer, ok := d.timers[key]; ok {
		timer.Stop()
		delete(d.timers, key)
	}
}

func (d *debouncer) current(key string, seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq[key] == seq
}

func (d *debouncer) finish(key string, seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight[key] == seq {
		delete(d.inflight, key)
	}
}

// pending counts scheduled timers plus fired calls awaiting a response.
func (d *debouncer) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers) + len(d.inflight)
}

func (d *debouncer) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}

// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// AliasMap resolves a raw extracted identity to its canonical alias (e.g. a
// secondary channel's handle to the primary channel's handle), reloading
// from disk whenever the backing file changes.
type AliasMap struct {
	mu      sync.RWMutex
	aliases map[string]string
	path    string

	watcher   *fsnotify.Watcher
	debouncer *debouncer
	done      chan struct{}
}

// NewAliasMap loads path (YAML or JSON map of alias -> canonical identity)
// and starts watching it for changes. An empty path yields a map that
// never resolves anything and never watches.
func NewAliasMap(path string) *AliasMap {
	m := &AliasMap{aliases: make(map[string]string), path: path, done: make(chan struct{})}
	if path == "" {
		return m
	}
	m.reload()
	m.startWatch()
	return m
}

// Canonical returns the alias for identity, or identity unchanged if none
// is configured.
func (m *AliasMap) Canonical(identity string) string {
	if identity == "" {
		return identity
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if canon, ok := m.aliases[identity]; ok {
		return canon
	}
	return identity
}

// Close stops the background watcher, if any.
func (m *AliasMap) Close() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *AliasMap) reload() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		log.Printf("gateway: identity alias map %s: %v", m.path, err)
		return
	}
	var parsed map[string]string
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		log.Printf("gateway: identity alias map %s: parse: %v", m.path, err)
		return
	}
	m.mu.Lock()
	m.aliases = parsed
	m.mu.Unlock()
	log.Printf("gateway: identity alias map reloaded (%d entries)", len(parsed))
}

func (m *AliasMap) startWatch() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("gateway: identity alias watcher: %v", err)
		return
	}
	if err := w.Add(m.path); err != nil {
		log.Printf("gateway: identity alias watcher: %v", err)
		w.Close()
		return
	}
	m.watcher = w
	m.debouncer = newDebouncer(300 * time.Millisecond)

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				m.debouncer.debounce("reload", m.reload)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("gateway: identity alias watcher error: %v", err)
			case <-m.done:
				return
			}
		}
	}()
}

// debouncer is a minimal per-key debounce helper; gateway only ever uses
// one key ("reload") but keeps the shape general to match the rest of the
// watch tooling in this codebase.
type debouncer struct {
	mu       sync.Mutex
	duration time.Duration
	timers   map[string]*time.Timer
}

func newDebouncer(d time.Duration) *debouncer {
	return &debouncer{duration: d, timers: make(map[string]*time.Timer)}
}

func (d *debouncer) debounce(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.duration, fn)
}

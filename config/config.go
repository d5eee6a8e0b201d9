/*
Copyright (C) 2026  txdb contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package config holds the engine's runtime-tunable Settings, generalizing
// the teacher's storage.SettingsT/ChangeSettings (storage/settings.go):
// there, a package-level struct mutated through a scm-callable getter/
// setter with the occasional side effect (start/stop the AI estimator);
// here, a struct loaded from a JSON file and hot-reloaded on change via
// fsnotify, with engine-side effects (rotation threshold, writer
// backpressure) applied by the caller observing Watcher.Changes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/docker/go-units"
	"github.com/fsnotify/fsnotify"
)

// Settings are the engine's runtime-tunable parameters.
type Settings struct {
	// JournalDir is where a local journal.Storage keeps its segments.
	JournalDir string `json:"journal_dir"`
	// RotateThresholdStr is a human-readable size ("64MB", "1GiB"),
	// parsed with github.com/docker/go-units, matching the teacher's
	// preference for human-facing size configuration over raw bytes.
	RotateThresholdStr string `json:"rotate_threshold"`
	// WriterQueueCapacity bounds the async writer's command channel.
	WriterQueueCapacity int `json:"writer_queue_capacity"`
	// Async selects the command engine's execution mode.
	Async bool `json:"async"`
}

// Default mirrors the teacher's Settings var: a ready-to-use zero
// configuration rather than requiring every field to be set explicitly.
var Default = Settings{
	JournalDir:          "./txdb-journal",
	RotateThresholdStr:  "64MB",
	WriterQueueCapacity: 100,
	Async:               false,
}

// RotateThresholdBytes parses RotateThresholdStr with go-units. An empty
// or unparseable string disables rotation (a single ever-growing
// segment), matching journal.NewFileJournal's rotateThreshold<=0 contract.
func (s Settings) RotateThresholdBytes() int64 {
	if s.RotateThresholdStr == "" {
		return 0
	}
	n, err := units.FromHumanSize(s.RotateThresholdStr)
	if err != nil {
		return 0
	}
	return n
}

// Load reads Settings from a JSON file at path.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	s := Default
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return s, nil
}

// Watcher hot-reloads Settings from a file, generalizing the teacher's
// runtime-mutable Settings (there reached via ChangeSettings calls; here
// via editing the file on disk and letting fsnotify pick it up).
type Watcher struct {
	path string
	w    *fsnotify.Watcher

	mu       sync.RWMutex
	current  Settings
	changeCh chan Settings
}

// WatchFile loads path once, then watches it for further writes. Send on
// the returned Watcher's Changes channel after every successful reload;
// callers decide which fields to act on (e.g. re-rotating the journal).
func WatchFile(path string) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watching %s: %w", path, err)
	}

	w := &Watcher{path: path, w: fw, current: initial, changeCh: make(chan Settings, 1)}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s, err := Load(w.path)
			if err != nil {
				continue // transient partial write; keep the last good settings
			}
			w.mu.Lock()
			w.current = s
			w.mu.Unlock()
			// Replace any unread value so the channel holds only the
			// latest one; run is the only sender, so the send after
			// the drain never blocks.
			select {
			case <-w.changeCh:
			default:
			}
			w.changeCh <- s
		case _, ok := <-w.w.Errors:
			if !ok {
				return
			}
		}
	}
}

// Current returns the most recently loaded Settings.
func (w *Watcher) Current() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Changes delivers every successfully reloaded Settings value. Capacity
// 1: a burst of writes coalesces to the latest value, since Current is
// always available as the authoritative source of truth.
func (w *Watcher) Changes() <-chan Settings { return w.changeCh }

// Close stops watching the file.
func (w *Watcher) Close() error {
	return w.w.Close()
}

// communicator - A contact list filtering and device notification core.
// Copyright (C) 2024 communicator contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package devicenotify

import (
	"sync"
	"time"
)

const (
	DefaultWindow     = 60 * time.Second
	DefaultMaxRepeats = 6
)

type rateEntry struct {
	lastShown time.Time
	count     int
}

// RateLimiter suppresses a notification body once it has been shown
// MaxRepeats times without a gap longer than Window.
type RateLimiter struct {
	Window     time.Duration
	MaxRepeats int

	now     func() time.Time
	lock    sync.Mutex
	entries map[string]*rateEntry
}

func NewRateLimiter(window time.Duration, maxRepeats int) *RateLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxRepeats <= 0 {
		maxRepeats = DefaultMaxRepeats
	}
	return &RateLimiter{
		Window:     window,
		MaxRepeats: maxRepeats,
		now:        time.Now,
		entries:    make(map[string]*rateEntry),
	}
}

// SetClock replaces the time source.
func (rl *RateLimiter) SetClock(now func() time.Time) {
	rl.lock.Lock()
	rl.now = now
	rl.lock.Unlock()
}

// Allow reports whether body may be shown now and records the showing if so.
// Suppressed attempts don't move the window.
func (rl *RateLimiter) Allow(body string) bool {
	rl.lock.Lock()
	defer rl.lock.Unlock()
	now := rl.now()
	entry, ok := rl.entries[body]
	if !ok {
		entry = &rateEntry{}
		rl.entries[body] = entry
	}
	sinceLast := now.Sub(entry.lastShown)
	if ok && sinceLast <= rl.Window && entry.count >= rl.MaxRepeats {
		return false
	}
	if sinceLast > rl.Window {
		entry.count = 0
	}
	entry.count++
	entry.lastShown = now
	rl.prune(now)
	return true
}

// prune drops entries that would be reset on their next use anyway.
func (rl *RateLimiter) prune(now time.Time) {
	for body, entry := range rl.entries {
		if now.Sub(entry.lastShown) > rl.Window {
			delete(rl.entries, body)
		}
	}
}

func (rl *RateLimiter) Len() int {
	rl.lock.Lock()
	defer rl.lock.Unlock()
	return len(rl.entries)
}

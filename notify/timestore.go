/*
LICENSE
  Copyright (C) 2025 the Bona Studio project

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const timesFile = "notify_times.json"

// timeStore implements a TimeStore that persists last-sent times to
// a JSON file, keyed by notification key.
type timeStore struct {
	mu   sync.Mutex
	path string
}

// NewTimeStore returns a TimeStore that persists notification times
// under dir.
func NewTimeStore(dir string) TimeStore {
	return &timeStore{path: filepath.Join(dir, timesFile)}
}

// Sendable retrieves the stored notification time for the key and
// returns true either if (1) the specified period has elapsed since
// the last time a message with the given key was sent or (2) a
// message is being sent for the first time.
func (ts *timeStore) Sendable(ctx context.Context, period time.Duration, key string) (bool, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	times, err := ts.load()
	if err != nil {
		return true, err // Unexpected store error; fail open.
	}
	last, ok := times[key]
	if !ok {
		return true, nil // No record of sending this kind of message.
	}
	return time.Since(last) >= period, nil
}

// Sent records the time that a message with the given key was sent.
func (ts *timeStore) Sent(ctx context.Context, key string) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	times, err := ts.load()
	if err != nil {
		return err
	}
	times[key] = time.Now().UTC()

	data, err := json.MarshalIndent(times, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal notification times: %w", err)
	}
	return os.WriteFile(ts.path, data, 0644)
}

func (ts *timeStore) load() (map[string]time.Time, error) {
	data, err := os.ReadFile(ts.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]time.Time{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read notification times: %w", err)
	}
	var times map[string]time.Time
	err = json.Unmarshal(data, &times)
	if err != nil {
		return nil, fmt.Errorf("could not decode notification times: %w", err)
	}
	return times, nil
}

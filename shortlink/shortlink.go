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

// Package shortlink maps short opaque identifiers to dates, for
// shareable card URLs. IDs are six characters from a 62-character
// alphabet; collisions are improbable at this scale but are retried
// anyway so uniqueness actually holds rather than being assumed.
package shortlink

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	idLen    = 6
	maxTries = 5

	tableFile = "shortlinks.json"
)

// ErrNotFound is returned by Resolve for an unknown ID.
var ErrNotFound = errors.New("short link not found")

// Link is one short-link record. Links are immutable and never
// expire.
type Link struct {
	Date    string    `json:"date"`
	Prayer  string    `json:"prayer,omitempty"` // optional prayer-text override
	Created time.Time `json:"created_at"`
}

// Store is a flat-file short-link table.
type Store struct {
	mu    sync.Mutex
	path  string
	newID func() (string, error)
	now   func() time.Time
}

// Option is a functional option supplied to NewStore.
type Option func(*Store)

// WithIDSource overrides the random ID generator. Used in testing to
// force collisions.
func WithIDSource(f func() (string, error)) Option {
	return func(s *Store) { s.newID = f }
}

// WithClock overrides the creation timestamp source.
func WithClock(f func() time.Time) Option {
	return func(s *Store) { s.now = f }
}

// NewStore returns a Store backed by a table file under dir.
func NewStore(dir string, options ...Option) (*Store, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("could not create data dir: %w", err)
	}
	s := &Store{
		path:  filepath.Join(dir, tableFile),
		newID: randomID,
		now:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Create allocates a fresh ID for the given date and optional prayer
// override, retrying on the (astronomically unlikely) ID collision.
func (s *Store) Create(date, prayer string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.load()
	if err != nil {
		return "", err
	}

	for try := 0; try < maxTries; try++ {
		id, err := s.newID()
		if err != nil {
			return "", err
		}
		if _, taken := table[id]; taken {
			continue
		}
		table[id] = Link{Date: date, Prayer: prayer, Created: s.now().UTC()}
		return id, s.save(table)
	}
	return "", fmt.Errorf("could not allocate a unique ID in %d tries", maxTries)
}

// Resolve returns the link for an ID, or ErrNotFound.
func (s *Store) Resolve(id string) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.load()
	if err != nil {
		return Link{}, err
	}
	link, ok := table[id]
	if !ok {
		return Link{}, ErrNotFound
	}
	return link, nil
}

func (s *Store) load() (map[string]Link, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Link{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read short-link table: %w", err)
	}
	var table map[string]Link
	err = json.Unmarshal(data, &table)
	if err != nil {
		return nil, fmt.Errorf("could not decode short-link table: %w", err)
	}
	return table, nil
}

func (s *Store) save(table map[string]Link) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal short-link table: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// randomID draws idLen characters uniformly from the alphabet.
func randomID() (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	id := make([]byte, idLen)
	for i := range id {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("could not draw random ID: %w", err)
		}
		id[i] = alphabet[n.Int64()]
	}
	return string(id), nil
}

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

// Package push stores browser push subscriptions and fans
// notifications out to them.
package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const (
	subsFile     = "subs.json"
	adminSubFile = "admin_sub.json"
)

// ErrNoAdmin is returned when a test send is requested but no admin
// device has been registered.
var ErrNoAdmin = errors.New("관리자 기기가 등록되지 않았습니다.")

// Store is a flat-file store of subscriber records: a deduplicated
// list of reader subscriptions plus a single admin test device.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore returns a Store rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("could not create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Add inserts a subscription unless one with the same endpoint is
// already stored. It reports whether the subscription was added.
func (s *Store) Add(sub webpush.Subscription) (bool, error) {
	if sub.Endpoint == "" {
		return false, errors.New("subscription has no endpoint")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.load()
	if err != nil {
		return false, err
	}
	for _, existing := range subs {
		if existing.Endpoint == sub.Endpoint {
			return false, nil
		}
	}
	subs = append(subs, sub)
	err = s.save(subs)
	if err != nil {
		return false, err
	}
	log.Printf("push: new subscriber added, total %d", len(subs))
	return true, nil
}

// All returns every stored subscription, or an empty list when none
// have been stored yet.
func (s *Store) All() ([]webpush.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]webpush.Subscription, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, subsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read subscriber list: %w", err)
	}
	var subs []webpush.Subscription
	err = json.Unmarshal(data, &subs)
	if err != nil {
		return nil, fmt.Errorf("could not decode subscriber list: %w", err)
	}
	return subs, nil
}

func (s *Store) save(subs []webpush.Subscription) error {
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal subscriber list: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, subsFile), data, 0644)
}

// SetAdmin registers the single admin test device, overwriting any
// previous registration.
func (s *Store) SetAdmin(sub webpush.Subscription) error {
	if sub.Endpoint == "" {
		return errors.New("subscription has no endpoint")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal admin subscription: %w", err)
	}
	err = os.WriteFile(filepath.Join(s.dir, adminSubFile), data, 0644)
	if err != nil {
		return fmt.Errorf("could not write admin subscription: %w", err)
	}
	log.Printf("push: admin device registered")
	return nil
}

// Admin returns the registered admin device, or ErrNoAdmin.
func (s *Store) Admin() (webpush.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sub webpush.Subscription
	data, err := os.ReadFile(filepath.Join(s.dir, adminSubFile))
	if errors.Is(err, os.ErrNotExist) {
		return sub, ErrNoAdmin
	}
	if err != nil {
		return sub, fmt.Errorf("could not read admin subscription: %w", err)
	}
	err = json.Unmarshal(data, &sub)
	if err != nil {
		return sub, fmt.Errorf("could not decode admin subscription: %w", err)
	}
	return sub, nil
}

// Targets resolves the subscriptions a publish should notify: the
// admin device alone in test mode, otherwise the full subscriber
// list.
func (s *Store) Targets(isTest bool) ([]webpush.Subscription, error) {
	if isTest {
		admin, err := s.Admin()
		if err != nil {
			return nil, err
		}
		return []webpush.Subscription{admin}, nil
	}
	return s.All()
}

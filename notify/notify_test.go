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
	"testing"
	"time"
)

const (
	kind    = Kind("publish")
	message = "This is a test."
)

// testStore implements a dummy time store for testing purposes.
// Even numbered attempts are not sendable.
type testStore struct {
	Attempted int
	Delivered int
}

// Sendable alternates between returning true and false.
func (ts *testStore) Sendable(ctx context.Context, period time.Duration, key string) (bool, error) {
	ts.Attempted++
	if ts.Attempted%2 == 0 {
		return false, nil
	}
	return true, nil
}

// Sent just increments the sent counter.
func (ts *testStore) Sent(ctx context.Context, key string) error {
	ts.Delivered++
	return nil
}

// TestStore tests the time store throttling functionality.
// For this test, we supply a test store without any secrets.
func TestStore(t *testing.T) {
	ctx := context.Background()

	n := Notifier{}
	ts := testStore{}
	err := n.Init(WithStore(&ts))
	if err != nil {
		t.Errorf("Init failed with error: %v", err)
	}

	// Even numbered attempts should not be delivered.
	tests1 := []struct {
		attempted int
		delivered int
	}{
		{
			attempted: 1,
			delivered: 1,
		},
		{
			attempted: 2,
			delivered: 1,
		},
		{
			attempted: 3,
			delivered: 2,
		},
	}

	for i, test := range tests1 {
		err = n.Send(ctx, kind, message)
		if err != nil {
			t.Errorf("Send #%d failed with error: %v", i, err)
		}
		if ts.Attempted != test.attempted {
			t.Errorf("Expected attempted to be %d, got %d", test.attempted, ts.Attempted)
		}
		if ts.Delivered != test.delivered {
			t.Errorf("Expected delivered to be %d, got %d", test.delivered, ts.Delivered)
		}
	}

	// Now try with filters.
	tests2 := []struct {
		filter    string
		attempted int
		delivered int
	}{
		{
			filter:    "test",
			attempted: 4,
			delivered: 2,
		},
		{
			filter:    "test",
			attempted: 5,
			delivered: 3,
		},
		{
			filter:    "Error:",
			attempted: 5,
			delivered: 3,
		},
	}
	for i, test := range tests2 {
		// Re-initialize with the filter.
		err = n.Init(WithFilter(test.filter), WithStore(&ts))
		if err != nil {
			t.Errorf("Init failed with error: %v", err)
		}
		err = n.Send(ctx, kind, message)
		if err != nil {
			t.Errorf("Send #%d failed with error: %v", i, err)
		}
		if ts.Attempted != test.attempted {
			t.Errorf("Expected attempted to be %d, got %d", test.attempted, ts.Attempted)
		}
		if ts.Delivered != test.delivered {
			t.Errorf("Expected delivered to be %d, got %d", test.delivered, ts.Delivered)
		}
	}
}

// TestTimeStore tests the file-backed time store.
func TestTimeStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTimeStore(t.TempDir())

	sendable, err := ts.Sendable(ctx, time.Hour, "publish.ops")
	if err != nil {
		t.Errorf("Sendable failed with error: %v", err)
	}
	if !sendable {
		t.Error("Expected first Sendable to be true")
	}

	err = ts.Sent(ctx, "publish.ops")
	if err != nil {
		t.Errorf("Sent failed with error: %v", err)
	}

	sendable, err = ts.Sendable(ctx, time.Hour, "publish.ops")
	if err != nil {
		t.Errorf("Sendable failed with error: %v", err)
	}
	if sendable {
		t.Error("Expected Sendable to be false within the period")
	}

	// A different kind is unaffected.
	sendable, err = ts.Sendable(ctx, time.Hour, "scrape.ops")
	if err != nil {
		t.Errorf("Sendable failed with error: %v", err)
	}
	if !sendable {
		t.Error("Expected Sendable for a different key to be true")
	}

	// A zero period is immediately sendable again.
	sendable, err = ts.Sendable(ctx, 0, "publish.ops")
	if err != nil {
		t.Errorf("Sendable failed with error: %v", err)
	}
	if !sendable {
		t.Error("Expected Sendable with zero period to be true")
	}
}

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

// Package draft persists daily devotional card records as dated JSON
// files. Records are keyed by calendar date (YYYY-MM-DD, computed at
// KST) with at most one record per date; later writes overwrite.
package draft

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// KST is the fixed UTC+9 offset used for all calendar-date
// computations. The source feed and the readership are both Korean,
// so "today" always means today in Korea, regardless of where the
// process runs.
var KST = time.FixedZone("KST", 9*60*60)

// Lifecycle tags of a record.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

var dateRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ErrNotFound is returned by Read when no record exists for a date.
var ErrNotFound = errors.New("draft not found")

// Content is the structured payload of a card.
type Content struct {
	HeadlineRef        string `json:"headline_ref"`
	OneLineMessage     string `json:"one_line_message"`
	MeditationBody     string `json:"meditation_body"`
	PrayerLine         string `json:"prayer_line"`
	ImagePromptScenery string `json:"image_prompt_scenery"`
	GeneratedImageURL  string `json:"generated_image_url,omitempty"`
}

// Record is one dated card record. The Date field always matches the
// storage key.
type Record struct {
	Date           string  `json:"date"`
	Status         string  `json:"status"`
	Content        Content `json:"content"`
	RawTextSummary string  `json:"raw_text_summary"`
}

// Today returns the current calendar date string at KST.
func Today() string {
	return time.Now().In(KST).Format("2006-01-02")
}

// ValidDate reports whether date has the YYYY-MM-DD shape.
func ValidDate(date string) bool {
	return dateRE.MatchString(date)
}

// flatRecord mirrors Record but additionally accepts the legacy
// layout in which the content fields were flattened onto the record
// itself rather than nested under "content".
type flatRecord struct {
	Record
	HeadlineRef        string `json:"headline_ref"`
	OneLineMessage     string `json:"one_line_message"`
	MeditationBody     string `json:"meditation_body"`
	PrayerLine         string `json:"prayer_line"`
	ImagePromptScenery string `json:"image_prompt_scenery"`
	GeneratedImageURL  string `json:"generated_image_url"`
}

// Decode unmarshals a record from JSON, accepting either the
// canonical nested content layout or the legacy flat layout. Flat
// fields are migrated into the nested content; where both layouts
// carry a value the nested one wins.
func Decode(data []byte) (*Record, error) {
	var fr flatRecord
	if err := json.Unmarshal(data, &fr); err != nil {
		return nil, fmt.Errorf("could not decode record: %w", err)
	}
	rec := fr.Record
	merge := func(dst *string, flat string) {
		if *dst == "" && flat != "" {
			*dst = flat
		}
	}
	merge(&rec.Content.HeadlineRef, fr.HeadlineRef)
	merge(&rec.Content.OneLineMessage, fr.OneLineMessage)
	merge(&rec.Content.MeditationBody, fr.MeditationBody)
	merge(&rec.Content.PrayerLine, fr.PrayerLine)
	merge(&rec.Content.ImagePromptScenery, fr.ImagePromptScenery)
	merge(&rec.Content.GeneratedImageURL, fr.GeneratedImageURL)
	return &rec, nil
}

// Field returns a named content field from a record, regardless of
// whether the record was loaded from the nested or flat layout.
// Unknown names yield the empty string.
func Field(rec *Record, name string) string {
	switch name {
	case "headline_ref":
		return rec.Content.HeadlineRef
	case "one_line_message":
		return rec.Content.OneLineMessage
	case "meditation_body":
		return rec.Content.MeditationBody
	case "prayer_line":
		return rec.Content.PrayerLine
	case "image_prompt_scenery":
		return rec.Content.ImagePromptScenery
	case "generated_image_url":
		return rec.Content.GeneratedImageURL
	}
	return ""
}

// Store is a flat-file repository of records, one file per date.
type Store struct {
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

func (s *Store) path(date string) string {
	return filepath.Join(s.dir, "draft_"+date+".json")
}

// Write stores rec for the given date, overwriting any existing
// record. The record's Date field is forced to match the key.
func (s *Store) Write(date string, rec *Record) error {
	if !ValidDate(date) {
		return fmt.Errorf("invalid date: %q", date)
	}
	rec.Date = date
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal record: %w", err)
	}
	err = os.WriteFile(s.path(date), data, 0644)
	if err != nil {
		return fmt.Errorf("could not write record: %w", err)
	}
	return nil
}

// Read returns the record for the given date, or ErrNotFound.
func (s *Store) Read(date string) (*Record, error) {
	data, err := os.ReadFile(s.path(date))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not read record: %w", err)
	}
	return Decode(data)
}

// Exists reports whether a record exists for the given date.
func (s *Store) Exists(date string) bool {
	_, err := os.Stat(s.path(date))
	return err == nil
}

// ListDates returns the sorted set of dates that have a record.
func (s *Store) ListDates() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("could not read data dir: %w", err)
	}
	var dates []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "draft_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, "draft_"), ".json")
		if ValidDate(date) {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

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

// Package bake projects draft records into self-contained static
// HTML artifacts and publishes them to the live serving directory.
// Baking stages a full copy of the site, injects the card content
// into the page template, then merges the staging directory over the
// live one. The merge is a copy-over, not a swap: a reader can
// briefly observe a mix of old and new files, which is accepted for
// an infrequently published single-writer site.
package bake

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bonalab/studio/draft"
)

const (
	templateName   = "card.html"
	indexName      = "index.html"
	defaultBaseURL = "https://uconai.ddns.net/bona"

	descriptionMax = 80 // runes
	maxRangeDays   = 62
)

// Template markers substituted during rendering.
const (
	markerDataJSON    = "{{DATA_JSON}}"
	markerTitle       = "{{TITLE}}"
	markerDescription = "{{DESCRIPTION}}"
	markerCanonical   = "{{CANONICAL_URL}}"
	markerImage       = "{{IMAGE_URL}}"
)

// ErrInFlight is returned when a bake for the same date is already
// running.
var ErrInFlight = errors.New("bake already in flight for this date")

// Baker bakes dated archives and the current index from draft
// records, a page template and the static site assets.
type Baker struct {
	store       *draft.Store
	siteDir     string // template and static assets
	liveDir     string // live web-serving directory
	allowedRoot string // confinement prefix for all destination paths
	baseURL     string // public base URL for canonical links
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]bool // per-date advisory lock
}

// Option is a functional option supplied to New.
type Option func(*Baker)

// WithBaseURL overrides the public base URL used for canonical and
// absolute image links.
func WithBaseURL(u string) Option {
	return func(b *Baker) { b.baseURL = strings.TrimSuffix(u, "/") }
}

// WithClock overrides the time source used to decide what "today"
// is. Used in testing.
func WithClock(f func() time.Time) Option {
	return func(b *Baker) { b.now = f }
}

// New returns a Baker publishing from siteDir to liveDir. Both
// liveDir and all staging paths must reside under allowedRoot; a
// Bake for a destination outside it fails fatally rather than
// scribbling over an arbitrary path.
func New(store *draft.Store, siteDir, liveDir, allowedRoot string, options ...Option) *Baker {
	b := &Baker{
		store:       store,
		siteDir:     siteDir,
		liveDir:     liveDir,
		allowedRoot: allowedRoot,
		baseURL:     defaultBaseURL,
		now:         time.Now,
		inflight:    make(map[string]bool),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// lock acquires the per-date advisory lock, or fails with
// ErrInFlight. The scheduler's pre-bake sweep and a manual publish
// can otherwise attempt the same date concurrently.
func (b *Baker) lock(date string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight[date] {
		return ErrInFlight
	}
	b.inflight[date] = true
	return nil
}

func (b *Baker) unlock(date string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, date)
}

// confine verifies that path resides under the allowed root.
func (b *Baker) confine(path string) error {
	root, err := filepath.Abs(b.allowedRoot)
	if err != nil {
		return errors.Wrap(err, "could not resolve allowed root")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "could not resolve path %s", path)
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return errors.Errorf("destination %s escapes allowed root %s", abs, root)
	}
	return nil
}

// Bake publishes the archive for one date. If a draft record and the
// page template both exist, the rendered card is written as the
// permanent per-date archive, and additionally as the site index
// when the date is today at KST; otherwise the bare static assets
// are published unchanged. Any step failure aborts the bake, removes
// the staging directory and is returned; there is no retry.
func (b *Baker) Bake(date string) error {
	if !draft.ValidDate(date) {
		return errors.Errorf("invalid date: %q", date)
	}
	if err := b.confine(b.liveDir); err != nil {
		return err
	}
	if err := b.lock(date); err != nil {
		return err
	}
	defer b.unlock(date)

	staging := filepath.Join(b.allowedRoot, ".staging-"+date+"-"+uuid.NewString())
	err := b.stage(date, staging)
	if err != nil {
		os.RemoveAll(staging)
		return errors.Wrapf(err, "bake %s failed", date)
	}

	err = copyTree(staging, b.liveDir)
	os.RemoveAll(staging)
	if err != nil {
		return errors.Wrapf(err, "could not publish %s", date)
	}
	os.Chmod(b.liveDir, 0755)

	log.Printf("bake: published %s to %s", date, b.liveDir)
	return nil
}

// stage builds the complete site under the staging directory.
func (b *Baker) stage(date, staging string) error {
	err := copyTree(b.siteDir, staging)
	if err != nil {
		return errors.Wrap(err, "could not stage site assets")
	}

	rec, err := b.store.Read(date)
	if errors.Is(err, draft.ErrNotFound) {
		log.Printf("bake: no draft for %s, publishing bare assets", date)
		return nil
	}
	if err != nil {
		return err
	}

	tmpl, err := os.ReadFile(filepath.Join(b.siteDir, templateName))
	if os.IsNotExist(err) {
		log.Printf("bake: no template, publishing bare assets")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "could not read template")
	}

	html := b.renderCard(tmpl, rec)
	err = os.WriteFile(filepath.Join(staging, date+".html"), html, 0644)
	if err != nil {
		return errors.Wrap(err, "could not write archive")
	}

	// Only today's bake updates the live index; non-today dates are
	// archive-only.
	if date == b.now().In(draft.KST).Format("2006-01-02") {
		err = os.WriteFile(filepath.Join(staging, indexName), html, 0644)
		if err != nil {
			return errors.Wrap(err, "could not write index")
		}
	}
	return nil
}

// renderCard substitutes the card content and SEO fields into the
// page template. It is deterministic: unchanged inputs produce
// byte-identical output.
func (b *Baker) renderCard(tmpl []byte, rec *draft.Record) []byte {
	data, err := json.Marshal(rec.Content)
	if err != nil {
		data = []byte("{}")
	}

	desc := rec.Content.PrayerLine
	if desc == "" {
		desc = truncateRunes(strings.ReplaceAll(rec.Content.MeditationBody, "\n", " "), descriptionMax)
	}

	r := strings.NewReplacer(
		markerDataJSON, string(data),
		markerTitle, rec.Content.OneLineMessage,
		markerDescription, desc,
		markerCanonical, fmt.Sprintf("%s/%s.html", b.baseURL, rec.Date),
		markerImage, b.absoluteImageURL(rec.Content.GeneratedImageURL),
	)
	return []byte(r.Replace(string(tmpl)))
}

// absoluteImageURL resolves the stored image reference to an
// absolute URL: localized uploads are joined onto the public origin,
// external generator URLs pass through.
func (b *Baker) absoluteImageURL(img string) string {
	if img == "" || strings.HasPrefix(img, "http") {
		return img
	}
	u, err := url.Parse(b.baseURL)
	if err != nil {
		return img
	}
	return u.Scheme + "://" + u.Host + img
}

// DeployRange bakes every date from from to to inclusive, pre-baking
// future archives ahead of their publish day.
func (b *Baker) DeployRange(ctx context.Context, from, to string) error {
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return errors.Errorf("invalid from date: %q", from)
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return errors.Errorf("invalid to date: %q", to)
	}
	if end.Before(start) {
		return errors.New("to date precedes from date")
	}
	if end.Sub(start) > maxRangeDays*24*time.Hour {
		return errors.Errorf("range exceeds %d days", maxRangeDays)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format("2006-01-02")
		g.Go(func() error { return b.Bake(date) })
	}
	return g.Wait()
}

// copyTree copies the file tree rooted at src into dst, creating
// directories as needed and overwriting existing files.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	cerr := out.Close()
	if err != nil {
		return err
	}
	return cerr
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

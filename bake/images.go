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

package bake

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bonalab/studio/draft"
)

const (
	imageDirRel       = "uploads/cards"
	imagePublicPrefix = "/studio/uploads/cards/"

	imageFetchTimeout   = 15 * time.Second
	imageOverallTimeout = 20 * time.Second
)

// LocalizeImage downloads a generated image to the site's uploads
// directory and returns the local public path for it. The generator
// hosts are best-effort third parties, so every failure mode falls
// back to returning the original URL unchanged; localization is an
// optimization, never a publish blocker.
func (b *Baker) LocalizeImage(ctx context.Context, rawURL, date string) string {
	if rawURL == "" || !strings.HasPrefix(rawURL, "http") {
		return rawURL
	}
	if !draft.ValidDate(date) {
		return rawURL
	}

	ctx, cancel := context.WithTimeout(ctx, imageOverallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		log.Printf("bake: could not build image request: %v", err)
		return rawURL
	}

	client := &http.Client{Timeout: imageFetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("bake: image download failed: %v", err)
		return rawURL
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("bake: image download returned status %d", resp.StatusCode)
		return rawURL
	}

	dir := filepath.Join(b.siteDir, imageDirRel)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("bake: could not create image dir: %v", err)
		return rawURL
	}

	name := "card_" + date + ".jpg"
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		log.Printf("bake: could not create image file: %v", err)
		return rawURL
	}
	_, err = io.Copy(f, resp.Body)
	cerr := f.Close()
	if err != nil || cerr != nil {
		os.Remove(path)
		log.Printf("bake: could not save image: %v", err)
		return rawURL
	}

	return imagePublicPrefix + name
}

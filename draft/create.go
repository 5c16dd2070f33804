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

package draft

import (
	"context"
	"fmt"
	"log"
)

// Interim and failure texts shown to the editor while a draft is
// being assembled.
const (
	msgLoading     = "묵상 글을 불러오는 중입니다..."
	msgNoGospel    = "복음 내용을 찾을 수 없어 묵상을 작성하지 못했습니다."
	msgGenFailed   = "AI 묵상 생성 실패 (%v)"
	rawSummaryMax  = 100
	minGospelChars = 10
)

// SourceData is the best-effort extraction result for one date.
type SourceData struct {
	Reference string
	Title     string
	Body      string
}

// Fetcher retrieves and extracts the source page for a date. It never
// fails; on error it returns placeholder fields.
type Fetcher interface {
	Fetch(ctx context.Context, date string) SourceData
}

// Generated is the AI-produced portion of a card.
type Generated struct {
	MeditationBody     string
	PrayerLine         string
	ImagePromptScenery string
}

// Generator produces meditation content and an image URL from source
// text.
type Generator interface {
	GenerateText(ctx context.Context, source string) (Generated, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// CreateDaily runs the full scrape-then-generate pipeline for a date
// and persists the resulting record. Extraction and generation
// failures degrade to explanatory placeholder text rather than
// failing the operation; only a persistence failure is returned as an
// error. The (possibly degraded) record is persisted in all cases.
func (s *Store) CreateDaily(ctx context.Context, date string, src Fetcher, gen Generator) (*Record, error) {
	if date == "" {
		date = Today()
	}
	log.Printf("creating new draft for %s", date)

	rec := &Record{
		Date:   date,
		Status: StatusDraft,
		Content: Content{
			MeditationBody: msgLoading,
		},
	}

	data := src.Fetch(ctx, date)
	rec.Content.HeadlineRef = data.Reference
	rec.Content.OneLineMessage = data.Title
	rec.RawTextSummary = truncateRunes(data.Body, rawSummaryMax)

	if len([]rune(data.Body)) > minGospelChars {
		out, err := gen.GenerateText(ctx, data.Body)
		if err != nil {
			log.Printf("draft %s: generation failed: %v", date, err)
			rec.Content.MeditationBody = fmt.Sprintf(msgGenFailed, err)
		} else {
			rec.Content.MeditationBody = out.MeditationBody
			rec.Content.PrayerLine = out.PrayerLine
			rec.Content.ImagePromptScenery = out.ImagePromptScenery
			if out.ImagePromptScenery != "" {
				url, err := gen.GenerateImage(ctx, out.ImagePromptScenery)
				if err != nil {
					log.Printf("draft %s: image generation failed: %v", date, err)
				} else {
					rec.Content.GeneratedImageURL = url
				}
			}
		}
	} else {
		rec.Content.MeditationBody = msgNoGospel
	}

	err := s.Write(date, rec)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// truncateRunes cuts s to at most n runes, never splitting a
// character.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

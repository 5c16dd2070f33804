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

// Package scrape extracts the daily gospel reading from the missa
// source page. The page markup is not guaranteed stable, so every
// field is extracted by a prioritized list of strategies, ordered
// from most to least precise, and the first strategy that yields a
// non-empty result wins. Extraction never fails; on any error a
// clearly marked placeholder result is returned.
package scrape

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultBaseURL = "https://missa.cbck.or.kr/DailyMissa"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	fetchTimeout   = 15 * time.Second
)

// Extraction bounds, in runes.
const (
	bodyCutoff = 2000 // body cut when no closing marker is found
	rawDumpMax = 5000 // last-resort whole-page dump
	blockMax   = 1000 // blocks longer than this are noise
	minBody    = 10   // shorter bodies trigger the next strategy
)

// Section markers on the source page.
const (
	markerHeading = "복음"
	markerIntro   = "전한 거룩한 복음입니다"
)

// Placeholders for fields no strategy could extract.
const (
	placeholderRef   = "오늘의 복음"
	placeholderTitle = "오늘의 말씀"
	errorRef         = "크롤링 오류"
	errorTitle       = "잠시 후 다시 시도"
)

// endMarkers close the gospel body, whichever comes first.
var endMarkers = []string{"주님의 말씀입니다", "주님의 말씀 입니다", "영성체송"}

var (
	refRE    = regexp.MustCompile(`✠\s*([가-힣]+)가\s*전한.*?(\d+[,:\-]\d+[\d,\-]*)`)
	authorRE = regexp.MustCompile(`✠\s*([가-힣]+)가\s*전한`)
	bookRE   = regexp.MustCompile(`✠\s*([가-힣\s]+?)(?:가\s*전한|에서)`)
	verseRE  = regexp.MustCompile(`\d+,[\d,-]+`)
	titleRE  = regexp.MustCompile(`복음\s*<([^>]+)>`)
	wsRE     = regexp.MustCompile(`\s+`)
)

// Result is the best-effort extraction for one date.
type Result struct {
	Date      string `json:"date"`
	Reference string `json:"reference"`
	Title     string `json:"title"`
	Body      string `json:"text"`
}

// Extractor fetches and extracts daily source pages.
type Extractor struct {
	client  *http.Client
	baseURL string
}

// Option is a functional option supplied to New.
type Option func(*Extractor)

// WithBaseURL overrides the source page base URL.
func WithBaseURL(url string) Option {
	return func(e *Extractor) { e.baseURL = url }
}

// WithClient overrides the HTTP client.
func WithClient(c *http.Client) Option {
	return func(e *Extractor) { e.client = c }
}

// New returns an Extractor with the supplied options applied.
func New(options ...Option) *Extractor {
	e := &Extractor{
		client:  &http.Client{Timeout: fetchTimeout},
		baseURL: defaultBaseURL,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Fetch retrieves the source page for a date and extracts its fields.
// It never fails; on any fetch or parse error it returns a
// placeholder result so the pipeline can degrade rather than abort.
func (e *Extractor) Fetch(ctx context.Context, date string) Result {
	url := e.baseURL
	if date != "" {
		url = fmt.Sprintf("%s/%s", e.baseURL, strings.ReplaceAll(date, "-", ""))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Printf("scrape %s: bad request: %v", date, err)
		return errorResult(date)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		log.Printf("scrape %s: fetch failed: %v", date, err)
		return errorResult(date)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("scrape %s: unexpected status %d", date, resp.StatusCode)
		return errorResult(date)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		log.Printf("scrape %s: parse failed: %v", date, err)
		return errorResult(date)
	}

	return Extract(doc, date)
}

// Extract runs the extraction strategies over a parsed document.
func Extract(doc *goquery.Document, date string) Result {
	raw := squash(doc.Find("body").Text())

	r := Result{
		Date:      date,
		Reference: extractReference(doc, raw),
		Title:     extractTitle(doc, raw),
	}
	r.Body = extractBody(doc, raw, r.Title)

	log.Printf("scrape %s: reference=%q title=%q", date, r.Reference, r.Title)
	return r
}

func errorResult(date string) Result {
	return Result{Date: date, Reference: errorRef, Title: errorTitle}
}

// extractReference resolves the scripture citation, e.g. "루카 10,1-9".
func extractReference(doc *goquery.Document, raw string) string {
	// Structural: verse number from the float-right heading, book
	// name from the intro line. Requires at least the verse number.
	if ref := domReference(doc); ref != "" {
		return ref
	}

	// Pattern match over the flattened page text.
	if m := refRE.FindStringSubmatch(raw); m != nil {
		return m[1] + " " + m[2]
	}

	// Book name only.
	if m := authorRE.FindStringSubmatch(raw); m != nil {
		return m[1] + " 복음"
	}

	return placeholderRef
}

func domReference(doc *goquery.Document) string {
	var verse string
	doc.Find("h5.float-right").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := strings.TrimSpace(s.Find("span").Text())
		if verseRE.MatchString(t) {
			verse = t
			return false
		}
		return true
	})
	if verse == "" {
		return ""
	}

	var book string
	doc.Find("div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := strings.TrimSpace(s.Text())
		if !strings.Contains(t, markerIntro) {
			return true
		}
		if m := bookRE.FindStringSubmatch(t); m != nil {
			book = strings.TrimSpace(m[1])
			return false
		}
		return true
	})
	if book == "" {
		return verse
	}
	return book + " " + verse
}

// extractTitle resolves the one-line message, normally bracketed in
// <...> next to the gospel heading.
func extractTitle(doc *goquery.Document, raw string) string {
	var title string
	doc.Find("h4").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) != markerHeading {
			return true
		}
		span := s.Parent().Find("span").First()
		if span.Length() > 0 {
			title = stripBrackets(strings.TrimSpace(span.Text()))
		}
		return false
	})
	if title != "" {
		return title
	}

	if m := titleRE.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}

	return placeholderTitle
}

func stripBrackets(s string) string {
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	return strings.TrimSpace(s)
}

// extractBody resolves the gospel body text. The block-collection
// strategy walks the document between the intro and closing markers;
// failing that the flattened text is sliced by marker offsets;
// failing that the page is dumped wholesale.
func extractBody(doc *goquery.Document, raw, title string) string {
	body := collectBlocks(doc)
	if runeLen(body) >= minBody {
		return body
	}

	body = sliceRaw(raw, title)
	if runeLen(body) >= minBody {
		return body
	}

	return truncateRunes(raw, rawDumpMax)
}

// collectBlocks gathers block-element text from the intro marker to
// the first closing marker, skipping empty and implausibly long
// blocks. Without a closing marker the result is cut at bodyCutoff.
func collectBlocks(doc *goquery.Document) string {
	var parts []string
	collecting := false
	closed := false

	doc.Find("div, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := strings.TrimSpace(s.Text())
		if !collecting {
			if strings.Contains(t, markerIntro) && runeLen(t) < blockMax {
				collecting = true
			}
			return true
		}
		for _, end := range endMarkers {
			if strings.Contains(t, end) {
				closed = true
				return false
			}
		}
		if n := runeLen(t); n > 0 && n < blockMax {
			parts = append(parts, t)
		}
		return true
	})

	body := strings.TrimSpace(strings.Join(parts, "\n"))
	if !closed {
		body = truncateRunes(body, bodyCutoff)
	}
	return body
}

// sliceRaw slices the flattened page text between marker offsets.
// The start is the end of the intro marker or, failing that, the end
// of the title text; the end is the earliest closing marker, or a
// fixed cut when none is found.
func sliceRaw(raw, title string) string {
	start := -1
	if i := strings.Index(raw, markerIntro); i != -1 {
		start = i + len(markerIntro)
	} else if title != "" && title != placeholderTitle {
		if i := strings.Index(raw, title); i != -1 {
			start = i + len(title)
		}
	}
	if start < 0 || start >= len(raw) {
		return ""
	}

	rest := raw[start:]
	end := -1
	for _, marker := range endMarkers {
		if i := strings.Index(rest, marker); i != -1 && (end == -1 || i < end) {
			end = i
		}
	}
	if end != -1 {
		return strings.TrimSpace(rest[:end])
	}
	return strings.TrimSpace(truncateRunes(rest, bodyCutoff))
}

func squash(s string) string {
	return wsRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

func runeLen(s string) int {
	return len([]rune(s))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

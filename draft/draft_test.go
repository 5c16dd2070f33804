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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDate = "2025-06-01"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func testRecord() *Record {
	return &Record{
		Date:   testDate,
		Status: StatusDraft,
		Content: Content{
			HeadlineRef:        "루카 10,1-9",
			OneLineMessage:     "추수할 것은 많은데 일꾼이 적다",
			MeditationBody:     "하나\n둘\n셋\n넷\n다섯\n여섯",
			PrayerLine:         "주님, 오늘도 감사합니다.",
			ImagePromptScenery: "a field at dawn",
			GeneratedImageURL:  "https://example.org/img.jpg",
		},
		RawTextSummary: "그때에 주님께서...",
	}
}

func TestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	want := testRecord()
	require.NoError(t, s.Write(testDate, want))

	got, err := s.Read(testDate)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read("2030-01-01")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestWriteInvalidDate(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Write("20250601", testRecord()))
	assert.Error(t, s.Write("../escape", testRecord()))
}

func TestWriteOverwrites(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write(testDate, testRecord()))

	changed := testRecord()
	changed.Content.PrayerLine = "주님, 자비를 베푸소서."
	require.NoError(t, s.Write(testDate, changed))

	got, err := s.Read(testDate)
	require.NoError(t, err)
	assert.Equal(t, "주님, 자비를 베푸소서.", got.Content.PrayerLine)
}

// Legacy records carry the content fields flattened onto the record.
// Read must migrate them into the nested layout.
func TestReadLegacyFlatRecord(t *testing.T) {
	s := newTestStore(t)
	flat := `{
	  "date": "2025-06-01",
	  "status": "draft",
	  "headline_ref": "마태 5,1-12",
	  "one_line_message": "행복하여라",
	  "meditation_body": "한 줄",
	  "prayer_line": "짧은 기도",
	  "generated_image_url": "/studio/uploads/cards/card_2025-06-01.jpg"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "draft_2025-06-01.json"), []byte(flat), 0644))

	got, err := s.Read(testDate)
	require.NoError(t, err)
	assert.Equal(t, "마태 5,1-12", got.Content.HeadlineRef)
	assert.Equal(t, "행복하여라", got.Content.OneLineMessage)
	assert.Equal(t, "/studio/uploads/cards/card_2025-06-01.jpg", got.Content.GeneratedImageURL)
	assert.Equal(t, "마태 5,1-12", Field(got, "headline_ref"))
}

// Where both layouts carry a value the nested one wins.
func TestDecodeNestedWins(t *testing.T) {
	mixed := `{
	  "date": "2025-06-01",
	  "headline_ref": "flat",
	  "content": {"headline_ref": "nested"}
	}`
	rec, err := Decode([]byte(mixed))
	require.NoError(t, err)
	assert.Equal(t, "nested", rec.Content.HeadlineRef)
}

func TestField(t *testing.T) {
	rec := testRecord()
	tests := []struct {
		name string
		want string
	}{
		{"headline_ref", "루카 10,1-9"},
		{"one_line_message", "추수할 것은 많은데 일꾼이 적다"},
		{"prayer_line", "주님, 오늘도 감사합니다."},
		{"generated_image_url", "https://example.org/img.jpg"},
		{"no_such_field", ""},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, Field(rec, test.name), test.name)
	}
}

func TestExistsAndListDates(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.Exists(testDate))

	require.NoError(t, s.Write("2025-06-02", testRecord()))
	require.NoError(t, s.Write("2025-06-01", testRecord()))
	assert.True(t, s.Exists("2025-06-01"))

	// Unrelated files must not show up as dates.
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "subs.json"), []byte("[]"), 0644))

	dates, err := s.ListDates()
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-01", "2025-06-02"}, dates)
}

// Pipeline stubs for CreateDaily.

type stubFetcher struct {
	data SourceData
}

func (f stubFetcher) Fetch(ctx context.Context, date string) SourceData { return f.data }

type stubGenerator struct {
	out      Generated
	textErr  error
	imageURL string
	imageErr error
}

func (g stubGenerator) GenerateText(ctx context.Context, source string) (Generated, error) {
	return g.out, g.textErr
}

func (g stubGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return g.imageURL, g.imageErr
}

func TestCreateDaily(t *testing.T) {
	s := newTestStore(t)
	src := stubFetcher{data: SourceData{
		Reference: "루카 10,1-9",
		Title:     "추수할 것은 많은데 일꾼이 적다",
		Body:      "오늘의 복음은 사랑에 관한 것입니다. 그때에 주님께서 일흔두 제자를 뽑으시어...",
	}}
	gen := stubGenerator{
		out: Generated{
			MeditationBody:     "하나\n둘\n셋\n넷\n다섯\n여섯",
			PrayerLine:         "주님, 사랑을 가르쳐 주소서.",
			ImagePromptScenery: "wheat field at golden hour",
		},
		imageURL: "https://image.example/prompt/x",
	}

	rec, err := s.CreateDaily(context.Background(), testDate, src, gen)
	require.NoError(t, err)
	assert.Equal(t, testDate, rec.Date)
	assert.Equal(t, StatusDraft, rec.Status)

	lines := strings.Split(rec.Content.MeditationBody, "\n")
	assert.Len(t, lines, 6)
	assert.LessOrEqual(t, len([]rune(rec.Content.PrayerLine)), 40)
	assert.Equal(t, "https://image.example/prompt/x", rec.Content.GeneratedImageURL)

	// Persisted and re-readable at the date key.
	got, err := s.Read(testDate)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestCreateDailyNoGospel(t *testing.T) {
	s := newTestStore(t)
	src := stubFetcher{data: SourceData{Reference: "크롤링 오류", Body: ""}}

	rec, err := s.CreateDaily(context.Background(), testDate, src, stubGenerator{})
	require.NoError(t, err)
	assert.Equal(t, msgNoGospel, rec.Content.MeditationBody)
	assert.True(t, s.Exists(testDate))
}

func TestCreateDailyGenerationError(t *testing.T) {
	s := newTestStore(t)
	src := stubFetcher{data: SourceData{Body: strings.Repeat("가", 50)}}
	gen := stubGenerator{textErr: errors.New("service unavailable")}

	rec, err := s.CreateDaily(context.Background(), testDate, src, gen)
	require.NoError(t, err)
	assert.Contains(t, rec.Content.MeditationBody, "AI 묵상 생성 실패")
	assert.Contains(t, rec.Content.MeditationBody, "service unavailable")
}

func TestCreateDailyImageErrorIgnored(t *testing.T) {
	s := newTestStore(t)
	src := stubFetcher{data: SourceData{Body: strings.Repeat("가", 50)}}
	gen := stubGenerator{
		out:      Generated{MeditationBody: "1\n2\n3\n4\n5\n6", PrayerLine: "기도", ImagePromptScenery: "scenery"},
		imageErr: errors.New("boom"),
	}

	rec, err := s.CreateDaily(context.Background(), testDate, src, gen)
	require.NoError(t, err)
	assert.Empty(t, rec.Content.GeneratedImageURL)
	assert.Equal(t, "기도", rec.Content.PrayerLine)
}

func TestRawTextSummaryTruncated(t *testing.T) {
	s := newTestStore(t)
	long := strings.Repeat("가나다라", 100)
	src := stubFetcher{data: SourceData{Body: long}}
	gen := stubGenerator{out: Generated{MeditationBody: "1\n2\n3\n4\n5\n6"}}

	rec, err := s.CreateDaily(context.Background(), testDate, src, gen)
	require.NoError(t, err)
	assert.Equal(t, 100, len([]rune(rec.RawTextSummary)))
}

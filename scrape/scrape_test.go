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

package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func loadFixture(t *testing.T, name string) *goquery.Document {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return parse(t, string(data))
}

func TestExtractFullPage(t *testing.T) {
	doc := loadFixture(t, "missa.html")
	r := Extract(doc, "2025-06-01")

	assert.Equal(t, "2025-06-01", r.Date)
	assert.Equal(t, "루카 10,1-9", r.Reference)
	assert.Equal(t, "추수할 것은 많은데 일꾼이 적다", r.Title)
	assert.Contains(t, r.Body, "그때에 주님께서 제자 일흔두 명을 뽑으시어")
	assert.NotContains(t, r.Body, "주님의 말씀입니다")
	assert.NotContains(t, r.Body, "영성체송")
}

// The marker phrase alone, with no structural elements, must still
// yield the combined book-and-verse reference.
func TestReferenceFromMarkerPhrase(t *testing.T) {
	doc := parse(t, `<html><body>
	  <div>✠ 루카가 전한 거룩한 복음입니다. 10,1-9</div>
	</body></html>`)
	r := Extract(doc, "")
	assert.Equal(t, "루카 10,1-9", r.Reference)
}

func TestReferenceAuthorOnly(t *testing.T) {
	doc := parse(t, `<html><body>
	  <div>✠ 마태오가 전한 거룩한 복음입니다.</div>
	</body></html>`)
	r := Extract(doc, "")
	assert.Equal(t, "마태오 복음", r.Reference)
}

// A page with no recognizable marker at all falls back to the generic
// placeholders and does not fail.
func TestNoMarkers(t *testing.T) {
	doc := parse(t, `<html><body><div>아무 내용도 없습니다</div></body></html>`)
	r := Extract(doc, "2025-06-01")
	assert.Equal(t, placeholderRef, r.Reference)
	assert.Equal(t, placeholderTitle, r.Title)
}

func TestDOMReferencePreferred(t *testing.T) {
	doc := parse(t, `<html><body>
	  <h5 class="float-right"><span>10,1-9</span></h5>
	  <div>✠ 루카가 전한 거룩한 복음입니다.</div>
	</body></html>`)
	assert.Equal(t, "루카 10,1-9", domReference(doc))
}

func TestDOMReferenceVerseOnly(t *testing.T) {
	doc := parse(t, `<html><body>
	  <h5 class="float-right"><span>5,1-12</span></h5>
	</body></html>`)
	assert.Equal(t, "5,1-12", domReference(doc))
}

func TestTitleStrategies(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "dom sibling span",
			html: `<div><h4>복음</h4><span>&lt;추수할 것은 많은데 일꾼이 적다&gt;</span></div>`,
			want: "추수할 것은 많은데 일꾼이 적다",
		},
		{
			name: "regex fallback",
			html: `<div>복음 &lt;행복하여라&gt;</div>`,
			want: "행복하여라",
		},
		{
			name: "placeholder",
			html: `<div>다른 내용</div>`,
			want: placeholderTitle,
		},
	}
	for _, test := range tests {
		doc := parse(t, "<html><body>"+test.html+"</body></html>")
		raw := squash(doc.Find("body").Text())
		assert.Equal(t, test.want, extractTitle(doc, raw), test.name)
	}
}

func TestBodyStopsAtEarliestEndMarker(t *testing.T) {
	doc := parse(t, `<html><body>
	  <div>✠ 루카가 전한 거룩한 복음입니다. 10,1-9</div>
	  <p>첫째 단락</p>
	  <p>둘째 단락</p>
	  <p>영성체송</p>
	  <p>주님의 말씀입니다.</p>
	</body></html>`)
	r := Extract(doc, "")
	assert.Equal(t, "첫째 단락\n둘째 단락", r.Body)
}

func TestBodySkipsNoiseBlocks(t *testing.T) {
	long := strings.Repeat("가", blockMax+1)
	doc := parse(t, `<html><body>
	  <div>✠ 루카가 전한 거룩한 복음입니다. 10,1-9</div>
	  <p></p>
	  <p>`+long+`</p>
	  <p>정상적인 단락입니다</p>
	  <p>주님의 말씀입니다.</p>
	</body></html>`)
	r := Extract(doc, "")
	assert.Equal(t, "정상적인 단락입니다", r.Body)
}

func TestBodyCutWithoutEndMarker(t *testing.T) {
	var blocks strings.Builder
	para := strings.Repeat("말씀 ", 100) // well under blockMax
	for i := 0; i < 20; i++ {
		blocks.WriteString("<p>" + para + "</p>")
	}
	doc := parse(t, `<html><body>
	  <div>✠ 루카가 전한 거룩한 복음입니다. 10,1-9</div>`+blocks.String()+`
	</body></html>`)
	r := Extract(doc, "")
	assert.LessOrEqual(t, runeLen(r.Body), bodyCutoff)
	assert.GreaterOrEqual(t, runeLen(r.Body), minBody)
}

func TestSliceRawFallsBackToTitleOffset(t *testing.T) {
	raw := "머리말 제목입니다 본문 내용이 여기에 충분히 있습니다 주님의 말씀입니다 꼬리말"
	got := sliceRaw(raw, "제목입니다")
	assert.Equal(t, "본문 내용이 여기에 충분히 있습니다", got)
}

func TestRawDumpLastResort(t *testing.T) {
	filler := strings.Repeat("본문 없는 잡다한 내용 ", 50)
	doc := parse(t, `<html><body><div>`+filler+`</div></body></html>`)
	r := Extract(doc, "")
	assert.GreaterOrEqual(t, runeLen(r.Body), minBody)
	assert.LessOrEqual(t, runeLen(r.Body), rawDumpMax)
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := New(WithBaseURL(srv.URL))
	r := e.Fetch(context.Background(), "2025-06-01")
	assert.Equal(t, errorRef, r.Reference)
	assert.Equal(t, errorTitle, r.Title)
	assert.Empty(t, r.Body)
}

func TestFetchFormatsDateIntoURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`<html><body><div>✠ 루카가 전한 거룩한 복음입니다. 10,1-9</div><p>본문</p><p>주님의 말씀입니다.</p></body></html>`))
	}))
	defer srv.Close()

	e := New(WithBaseURL(srv.URL))
	r := e.Fetch(context.Background(), "2025-06-01")
	assert.Equal(t, "/20250601", gotPath)
	assert.Equal(t, "루카 10,1-9", r.Reference)
}

func TestFetchUnreachable(t *testing.T) {
	e := New(WithBaseURL("http://127.0.0.1:1"))
	r := e.Fetch(context.Background(), "2025-06-01")
	assert.Equal(t, errorRef, r.Reference)
}

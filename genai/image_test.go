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

package genai

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageURL(t *testing.T) {
	got := ImageURL("a shepherd on a hillside")

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "image.pollinations.ai", u.Host)
	assert.True(t, strings.HasPrefix(u.Path, "/prompt/"), got)

	q := u.Query()
	assert.Equal(t, "1024", q.Get("width"))
	assert.Equal(t, "576", q.Get("height"))
	assert.Equal(t, "flux", q.Get("model"))
	assert.Equal(t, "true", q.Get("nologo"))

	prompt, err := url.PathUnescape(strings.TrimPrefix(u.Path, "/prompt/"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(prompt, "a shepherd on a hillside"))
	assert.True(t, strings.HasSuffix(prompt, "oil painting style"))
}

func TestImageURLEmptyPromptFallsBack(t *testing.T) {
	assert.Equal(t, fallbackImageURL, ImageURL(""))
}

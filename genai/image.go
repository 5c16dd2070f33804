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
	"fmt"
	"net/url"
)

const (
	imageEndpoint = "https://image.pollinations.ai/prompt/%s?width=1024&height=576&model=flux&nologo=true"

	// Fixed style modifiers appended to every prompt.
	imageStyleSuffix = ", detailed, masterpiece, religious art, golden light, oil painting style"

	// Generic stock-photo search, used when no usable prompt exists.
	fallbackImageURL = "https://source.unsplash.com/random/1024x576/?religious,art"
)

// ImageURL maps a scenery prompt to a generated-image URL. This is a
// pure URL construction; whether the URL resolves to a usable image
// is not verified and the caller treats it as optimistically valid.
func ImageURL(prompt string) string {
	if prompt == "" {
		return fallbackImageURL
	}
	safe := url.PathEscape(prompt + imageStyleSuffix)
	return fmt.Sprintf(imageEndpoint, safe)
}

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

// Package genai produces the AI-generated portion of a card: a
// six-line meditation poem, a short prayer and an image prompt, via
// an OpenAI-compatible chat service, plus a generated-image URL.
//
// The chat service's output contract is strict: the meditation must
// be exactly six non-empty lines and the prayer at most forty
// characters. Responses are validated and regenerated up to a bound,
// after which a deterministic repair is applied instead of failing
// the pipeline.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	baseURL     = "https://api.deepseek.com"
	model       = "deepseek-chat"
	temperature = 0.7

	maxAttempts     = 3
	meditationLines = 6
	prayerMaxRunes  = 40
)

const systemPrompt = "You are a Catholic meditation poet. You create JSON content " +
	"with exactly 6 lines of meditation and a prayer under 40 characters. " +
	"No markdown backticks, just raw JSON."

const userPromptFormat = `다음 가톨릭 복음 말씀을 읽고 묵상 자료를 작성하라.

[입력 텍스트]
%s

[지시사항]
1. meditation_body: 복음 내용을 묵상하여 '정확히 6행의 시(Poem)'로 작성하라.
   - 반드시 \n으로 구분된 행이 정확히 6개여야 함.
   - 빈 줄을 포함하지 말고, 의미 있는 텍스트가 담긴 6개의 행을 작성하라.
   - 각 행은 간결하고 시적이어야 함.

2. prayer_line: 복음의 핵심 메시지를 담은 '한 문장의 짧은 기도'를 작성하라.
   - 공백 포함 총 40자 이내로 작성 (절대 엄수).
   - 간결하고 명료한 한 문장으로 작성.

3. image_prompt_scenery: 이 복음의 분위기를 잘 나타내는 성화 스타일의 영어 프롬프트.

[응답 포맷]
JSON 형식으로만 출력:
{
    "meditation_body": "...",
    "prayer_line": "...",
    "image_prompt_scenery": "..."
}`

// unconfigured placeholder, returned without a network call when no
// credential is available.
const msgNoAPIKey = "DeepSeek API 키가 설정되지 않았습니다. (시크릿 설정 확인 필요)"

// Content is the generated payload, as returned by the chat service.
type Content struct {
	MeditationBody     string `json:"meditation_body"`
	PrayerLine         string `json:"prayer_line"`
	ImagePromptScenery string `json:"image_prompt_scenery"`
}

// ChatClient is the subset of the chat API used by the Generator.
// *openai.Client satisfies it.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Generator generates card content. A Generator with no client is
// valid and produces a placeholder explaining the missing credential.
type Generator struct {
	client ChatClient
}

// New returns a Generator using the DeepSeek chat service. An empty
// apiKey yields an unconfigured Generator that never touches the
// network.
func New(apiKey string) *Generator {
	if apiKey == "" {
		log.Printf("genai: no API key configured, generation disabled")
		return &Generator{}
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Generator{client: openai.NewClientWithConfig(cfg)}
}

// NewWithClient returns a Generator using the supplied client.
func NewWithClient(client ChatClient) *Generator {
	return &Generator{client: client}
}

// Generate produces validated content from the gospel source text.
// Contract violations are retried up to maxAttempts; on the final
// attempt an invalid result is repaired rather than rejected. Only a
// transport or parse failure on the final attempt is returned as an
// error.
func (g *Generator) Generate(ctx context.Context, source string) (Content, error) {
	if g.client == nil {
		return Content{MeditationBody: msgNoAPIKey}, nil
	}

	for attempt := 1; ; attempt++ {
		log.Printf("genai: generation attempt %d/%d", attempt, maxAttempts)

		c, err := g.attempt(ctx, source)
		if err != nil {
			log.Printf("genai: attempt %d failed: %v", attempt, err)
			if attempt == maxAttempts {
				return Content{}, err
			}
			continue
		}

		valid, verr := Normalize(c)
		if verr == nil {
			return valid, nil
		}
		log.Printf("genai: attempt %d invalid: %v", attempt, verr)
		if attempt == maxAttempts {
			return Repair(c), nil
		}
	}
}

// attempt performs one request and parses the response.
func (g *Generator) attempt(ctx context.Context, source string) (Content, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(userPromptFormat, source)},
		},
	})
	if err != nil {
		return Content{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Content{}, fmt.Errorf("chat completion returned no choices")
	}

	var c Content
	raw := stripFences(resp.Choices[0].Message.Content)
	err = json.Unmarshal([]byte(raw), &c)
	if err != nil {
		return Content{}, fmt.Errorf("could not parse response JSON: %w", err)
	}
	return c, nil
}

// stripFences removes markdown code-fence wrapping that chat models
// add despite instructions.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// splitLines splits a meditation body into trimmed non-empty lines.
func splitLines(body string) []string {
	var lines []string
	for _, l := range strings.Split(body, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Normalize validates c against the output contract and returns the
// canonical form: exactly six non-empty lines joined by newlines and
// a prayer of at most forty characters. It is pure, so the retry
// orchestration above stays independently testable.
func Normalize(c Content) (Content, error) {
	lines := splitLines(c.MeditationBody)
	if len(lines) != meditationLines {
		return Content{}, fmt.Errorf("meditation lines: expected %d, got %d", meditationLines, len(lines))
	}
	if n := len([]rune(c.PrayerLine)); n > prayerMaxRunes {
		return Content{}, fmt.Errorf("prayer length: expected <= %d, got %d", prayerMaxRunes, n)
	}
	c.MeditationBody = strings.Join(lines, "\n")
	return c, nil
}

// Repair deterministically coerces an invalid result after retries
// are exhausted: surplus lines are dropped and an over-long prayer is
// truncated with an ellipsis. A shorter-than-six meditation has no
// defined repair and is left as-is.
func Repair(c Content) Content {
	lines := splitLines(c.MeditationBody)
	if len(lines) > meditationLines {
		lines = lines[:meditationLines]
	}
	c.MeditationBody = strings.Join(lines, "\n")

	if r := []rune(c.PrayerLine); len(r) > prayerMaxRunes {
		c.PrayerLine = string(r[:prayerMaxRunes-3]) + "..."
	}
	return c
}

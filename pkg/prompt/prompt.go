// Package prompt builds the messages sent to the translation agent.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/translator/pkg/scheduler"
)

const (
	// InputMarker ends the preamble. Output containing it is an echo of the
	// initial prompt.
	InputMarker = "Input JSON:"

	// NextMarker prefixes every follow-up batch.
	NextMarker = "Next batch (JSON Array):"

	// DefaultLanguage is the target language when none is configured.
	DefaultLanguage = "Chinese"
)

const preambleTemplate = `You are a professional translator. I will provide a JSON array of objects.
Each object has an "id" and "src" (source text).
Translate the "src" into %s.
RETURN A VALID JSON ARRAY of objects.
Each item MUST have:
  - "id": (Keep exactly the same as input)
  - "trans": (The translation)

Do not add any explanations.
` + InputMarker

// DefaultPreamble returns the instruction text for the target language.
func DefaultPreamble(language string) string {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	return fmt.Sprintf(preambleTemplate, language)
}

// Entry is one element of the payload array.
type Entry struct {
	ID  int    `json:"id"`
	Src string `json:"src"`
}

// Payload renders the batch as a JSON array of {id, src}. Ids are absolute
// Task indices.
func Payload(batch scheduler.Batch) (string, error) {
	entries := make([]Entry, len(batch))
	for i, item := range batch {
		entries[i] = Entry{ID: item.Index, Src: item.Block.SourceText}
	}

	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		return "", fmt.Errorf("prompt: encode payload: %w", err)
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

// Initial is the first prompt of a Task: the full preamble then the payload.
func Initial(preamble string, batch scheduler.Batch) (string, error) {
	payload, err := Payload(batch)
	if err != nil {
		return "", err
	}
	return preamble + "\n" + payload, nil
}

// Next is every later prompt. It relies on the agent remembering the
// preamble from earlier in the conversation.
func Next(batch scheduler.Batch) (string, error) {
	payload, err := Payload(batch)
	if err != nil {
		return "", err
	}
	return NextMarker + "\n" + payload, nil
}

// Markers returns the fragments that identify our own prompts in the agent's
// output. A custom preamble contributes its last non-empty line.
func Markers(preamble string) []string {
	markers := []string{InputMarker, NextMarker}
	lines := strings.Split(strings.TrimSpace(preamble), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		last := strings.TrimSpace(lines[i])
		if last == "" {
			continue
		}
		if last != InputMarker && len([]rune(last)) >= 8 {
			markers = append(markers, last)
		}
		break
	}
	return markers
}

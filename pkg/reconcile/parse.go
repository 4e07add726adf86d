package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned when a response cannot be read as a JSON array.
var ErrMalformed = errors.New("reconcile: malformed response")

// Record is one {id, trans} element of a response.
type Record struct {
	ID    int
	Trans string
}

// Extract isolates the JSON payload in a response that may be wrapped in
// prose or markdown fencing. A ```json fence wins over a bare ``` fence; in
// either case, and when there is no fence, the result is narrowed to the
// span from the first '[' to the last ']' when both exist.
func Extract(raw string) string {
	s := raw
	if _, after, ok := strings.Cut(s, "```json"); ok {
		s, _, _ = strings.Cut(after, "```")
	} else if _, after, ok := strings.Cut(s, "```"); ok {
		s, _, _ = strings.Cut(after, "```")
	}

	open := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if open != -1 && end != -1 && open < end {
		s = s[open : end+1]
	}
	return strings.TrimSpace(s)
}

// Parse extracts and decodes the records of a response. Ids may be JSON
// numbers or numeric strings. Elements that are not objects, lack a usable
// id, or carry an empty or non-string "trans" are skipped; the caller treats
// their blocks as missing. A payload that is not a JSON array is malformed.
func Parse(raw string) ([]Record, error) {
	payload := Extract(raw)

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	records := make([]Record, 0, len(elems))
	for _, elem := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(elem, &obj); err != nil || obj == nil {
			continue
		}
		id, ok := parseID(obj["id"])
		if !ok {
			continue
		}
		var trans string
		if err := json.Unmarshal(obj["trans"], &trans); err != nil || trans == "" {
			continue
		}
		records = append(records, Record{ID: id, Trans: trans})
	}
	return records, nil
}

func parseID(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}

	var n json.Number
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		n = json.Number(strings.TrimSpace(s))
	} else if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}

	if i, err := strconv.Atoi(n.String()); err == nil {
		return i, true
	}
	// Some models write 3.0 for 3.
	f, err := n.Float64()
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// Index maps ids to translations. A later duplicate id replaces an earlier
// one.
func Index(records []Record) map[int]string {
	m := make(map[int]string, len(records))
	for _, r := range records {
		m[r.ID] = r.Trans
	}
	return m
}

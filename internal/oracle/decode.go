package oracle

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/feerecon/internal/model"
)

// ErrMalformedResponse means the oracle's reply could not be decoded into
// one amount per request.
var ErrMalformedResponse = eris.New("oracle: malformed response")

// DecodeAmounts parses the model's reply into exactly n amounts. The reply
// must be a JSON array whose elements are numbers or null; null marks a
// single failed entry. Anything else fails the whole batch. A bare number
// is accepted when n is 1.
func DecodeAmounts(text string, n int) ([]model.Amount, error) {
	body := cleanArray(text)
	if body == "" {
		return nil, eris.Wrap(ErrMalformedResponse, "empty reply")
	}

	if !strings.HasPrefix(body, "[") {
		if n != 1 {
			return nil, eris.Wrapf(ErrMalformedResponse, "expected array of %d, got %q", n, truncate(body))
		}
		d, err := decimal.NewFromString(body)
		if err != nil {
			return nil, eris.Wrapf(ErrMalformedResponse, "not a number: %q", truncate(body))
		}
		return []model.Amount{model.AmountOf(d.InexactFloat64())}, nil
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var raw []json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "decode %q: %v", truncate(body), err)
	}
	if len(raw) != n {
		return nil, eris.Wrapf(ErrMalformedResponse, "expected %d amounts, got %d", n, len(raw))
	}

	out := make([]model.Amount, n)
	for i, elem := range raw {
		elem = bytes.TrimSpace(elem)
		if string(elem) == "null" {
			out[i] = model.AmountFailed()
			continue
		}
		if len(elem) == 0 || !(elem[0] == '-' || (elem[0] >= '0' && elem[0] <= '9')) {
			return nil, eris.Wrapf(ErrMalformedResponse, "element %d is not a number: %s", i, truncate(string(elem)))
		}
		d, err := decimal.NewFromString(string(elem))
		if err != nil {
			return nil, eris.Wrapf(ErrMalformedResponse, "element %d: %v", i, err)
		}
		out[i] = model.AmountOf(d.InexactFloat64())
	}
	return out, nil
}

// cleanArray strips markdown fences and surrounding prose, keeping the
// outermost [...] when present.
func cleanArray(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func truncate(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Package normalize converts arbitrary provider payloads into the canonical
// option schema. Every entry point is total: unknown shapes degrade through
// an ordered fallback chain and never produce an error.
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/tripwise/server/internal/agent/model"
)

// MaxOptions caps every normalized list.
const MaxOptions = 10

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

// root unwraps the common {"data": {...}} envelope one level.
func root(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	if inner, ok := asMap(payload["data"]); ok {
		return inner
	}
	return payload
}

// str probes keys in order and returns the first non-empty string value.
func str(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// num probes keys in order and returns the first numeric value. JSON
// numbers decode as float64; numeric strings are not coerced here.
func num(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if f, ok := m[key].(float64); ok {
			return f, true
		}
	}
	return 0, false
}

// listUnder returns the first non-empty list found under the given keys.
func listUnder(m map[string]any, keys ...string) []any {
	for _, key := range keys {
		if l, ok := asList(m[key]); ok && len(l) > 0 {
			return l
		}
	}
	return nil
}

// firstObjectList scans all values for the first non-empty list whose head
// is an object. Last structural resort before the raw-snippet fallback.
func firstObjectList(m map[string]any) []any {
	for _, v := range m {
		if l, ok := asList(v); ok && len(l) > 0 {
			if _, isObj := asMap(l[0]); isObj {
				return l
			}
		}
	}
	return nil
}

// ObjectList exposes the raw provider list entries so callers can revisit
// fields the option schema drops, such as detail-lookup ids.
func ObjectList(payload map[string]any, keys ...string) ([]map[string]any, bool) {
	if payload == nil {
		return nil, false
	}
	obj := root(payload)
	list := listUnder(obj, keys...)
	if list == nil {
		list = listUnder(payload, keys...)
	}
	if list == nil {
		list = firstObjectList(obj)
	}
	if list == nil {
		return nil, false
	}
	out := make([]map[string]any, 0, len(list))
	for _, raw := range list {
		if item, ok := asMap(raw); ok {
			out = append(out, item)
		}
	}
	return out, len(out) > 0
}

// moneyFromAny builds a Money from the shapes providers use for prices:
// bare numbers, {"units": n, "nanos": n, "currencyCode": c} and
// {"amount": n, "currency": c}.
func moneyFromAny(v any) *model.Money {
	switch p := v.(type) {
	case float64:
		amount := p
		return &model.Money{Amount: &amount}
	case map[string]any:
		m := &model.Money{Currency: str(p, "currency", "currencyCode")}
		if units, ok := num(p, "units", "amount", "value"); ok {
			amount := units
			if nanos, ok := num(p, "nanos"); ok {
				amount += nanos / 1e9
			}
			m.Amount = &amount
		}
		if m.Amount == nil && m.Currency == "" {
			return nil
		}
		return m
	}
	return nil
}

// Snippet renders a truncated JSON view of a payload so the user still sees
// something when no structured list could be extracted.
func Snippet(payload map[string]any, limit int) string {
	var target any = payload
	if payload != nil {
		if inner, ok := payload["data"]; ok {
			target = inner
		}
	}
	b, err := json.Marshal(target)
	if err != nil {
		return ""
	}
	s := string(b)
	if limit > 0 && len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

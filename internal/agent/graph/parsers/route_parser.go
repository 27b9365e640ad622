package parsers

import (
	"encoding/json"
	"strings"

	"github.com/tripwise/server/internal/agent/model"
	logx "github.com/tripwise/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxErrSnippet = 200       // limit error snippet size
)

// keyword vocabularies for the fallback classifier
var (
	flightWords     = []string{"flight", "fly", "airline", "airport"}
	hotelWords      = []string{"hotel", "stay", "accommodation", "lodge"}
	attractionWords = []string{"attraction", "things to do", "places to visit", "sightseeing"}
)

type rawRoute struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Details    map[string]any `json:"details"`
	Reasoning  string         `json:"reasoning"`
}

func detailString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func detailInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		n := 0
		for _, c := range strings.TrimSpace(v) {
			if c < '0' || c > '9' {
				return 0
			}
			n = n*10 + int(c-'0')
		}
		return n
	}
	return 0
}

// ParseRouteResponse turns a classifier completion into a routing
// decision. It never fails: anything unusable falls back to keyword
// matching against the user query, and the returned decision always
// carries a valid intent and agent.
func ParseRouteResponse(content, userQuery string) (dec model.RouteDecision) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "route_parser").Msgf("panic recovered: %v", r)
			dec = KeywordRoute(userQuery)
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "route_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}

	block, ok := firstJSONObject(content)
	if !ok {
		logx.Warn().
			Str("component", "route_parser").
			Str("snippet", safeSnippet(content)).
			Msg("no json object in classifier output")
		return KeywordRoute(userQuery)
	}

	var raw rawRoute
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		logx.Warn().
			Str("component", "route_parser").
			Err(err).
			Str("snippet", safeSnippet(block)).
			Msg("classifier output not valid json")
		return KeywordRoute(userQuery)
	}

	intent := strings.ToLower(strings.TrimSpace(raw.Intent))
	if !model.ValidIntent(intent) {
		logx.Warn().
			Str("component", "route_parser").
			Str("intent", intent).
			Msg("unknown intent from classifier")
		return KeywordRoute(userQuery)
	}

	conf := raw.Confidence
	if conf < 0 || conf > 1 {
		conf = 0.5
	}

	dec = model.RouteDecision{
		Intent:     intent,
		Agent:      model.AgentForIntent(intent),
		Confidence: conf,
		Reasoning:  strings.TrimSpace(raw.Reasoning),
	}
	if raw.Details != nil {
		dec.Details = model.RouteDetails{
			Origin:      detailString(raw.Details, "origin"),
			Destination: detailString(raw.Details, "destination"),
			Dates:       detailString(raw.Details, "dates"),
			Passengers:  detailInt(raw.Details, "passengers"),
			Notes:       detailString(raw.Details, "notes"),
		}
	}
	return dec
}

// KeywordRoute classifies by vocabulary when the model output is
// unusable. The fallback range is the four single intents; flight wins
// when both flight and hotel words appear, and the flight handler's own
// hotel enrichment covers the stay.
func KeywordRoute(userQuery string) model.RouteDecision {
	q := strings.ToLower(userQuery)

	intent := model.IntentGeneral
	switch {
	case containsAny(q, flightWords):
		intent = model.IntentFlight
	case containsAny(q, hotelWords):
		intent = model.IntentHotel
	case containsAny(q, attractionWords):
		intent = model.IntentAttraction
	}

	return model.RouteDecision{
		Intent:     intent,
		Agent:      model.AgentForIntent(intent),
		Confidence: 0.3,
		Reasoning:  "keyword fallback",
		Fallback:   true,
	}
}

// firstJSONObject extracts the first balanced {...} block, skipping
// braces inside string literals.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}

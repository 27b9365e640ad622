package model

// Intent values the router may produce.
const (
	IntentFlight     = "flight"
	IntentHotel      = "hotel"
	IntentAttraction = "attraction"
	IntentGeneral    = "general"
	IntentBoth       = "both"
)

// RouteDetails holds slot values extracted by the classification oracle.
type RouteDetails struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Dates       string `json:"dates"`
	Passengers  int    `json:"passengers"`
	Notes       string `json:"notes"`
}

// RouteDecision is the outcome of one routing step.
type RouteDecision struct {
	Intent     string       `json:"intent"`
	Agent      string       `json:"agent"`
	Confidence float64      `json:"confidence"`
	Details    RouteDetails `json:"details"`
	Reasoning  string       `json:"reasoning"`
	// Fallback marks decisions produced by keyword matching rather than
	// the oracle.
	Fallback bool `json:"fallback"`
	// Cancelled marks a routing step that observed the interruption flag.
	Cancelled bool `json:"cancelled"`
	// Handoff marks a decision consumed from a prior handler's nextAgent
	// request rather than a fresh classification.
	Handoff bool `json:"handoff"`
}

// AgentForIntent maps an intent to the specialist that owns it. "both"
// starts with flights; the flight handler chains hotels afterwards.
func AgentForIntent(intent string) string {
	switch intent {
	case IntentFlight, IntentBoth:
		return AgentFlight
	case IntentHotel:
		return AgentHotel
	case IntentAttraction:
		return AgentAttractions
	default:
		return AgentResearch
	}
}

// ValidIntent reports whether the oracle returned a known intent value.
func ValidIntent(intent string) bool {
	switch intent {
	case IntentFlight, IntentHotel, IntentAttraction, IntentGeneral, IntentBoth:
		return true
	}
	return false
}

package model

// ================ Config ================

// RouterModelConfig configures the classification oracle.
type RouterModelConfig struct {
	Model       string  `envconfig:"ROUTER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"ROUTER_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"ROUTER_TEMPERATURE" default:"0.0"`
}

// ConversationConfig governs thread persistence and oracle context depth.
type ConversationConfig struct {
	TTL string `envconfig:"CONVERSATION_TTL" default:"24h"`
	// HistoryTurns is how many prior turns accompany the query when the
	// oracle is consulted.
	HistoryTurns int `envconfig:"CONVERSATION_HISTORY_TURNS" default:"2"`
}

// RouteDefaults are the last-resort parameters when neither the text nor
// prior turns yield a usable value. Every use is reported as an assumption.
type RouteDefaults struct {
	Origin        string `envconfig:"DEFAULT_ORIGIN" default:"BOM"`
	Destination   string `envconfig:"DEFAULT_DESTINATION" default:"DEL"`
	HotelLocation string `envconfig:"DEFAULT_HOTEL_LOCATION" default:"Mumbai"`
	// LeadDays is how far out a missing travel date defaults to.
	LeadDays int `envconfig:"DEFAULT_LEAD_DAYS" default:"21"`
	// HotelNights is the paired check-out offset for defaulted stays.
	HotelNights int `envconfig:"DEFAULT_HOTEL_NIGHTS" default:"2"`
}

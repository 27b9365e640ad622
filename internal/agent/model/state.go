package model

import (
	"time"

	"github.com/cloudwego/eino/schema"
)

// Status tracks the lifecycle of one in-flight query.
type Status string

const (
	StatusProcessing  Status = "processing"
	StatusRouted      Status = "routed"
	StatusInterrupted Status = "interrupted"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

// Agent identifiers used for routing and audit trails.
const (
	AgentCoordinator = "coordinator"
	AgentFlight      = "flight_agent"
	AgentHotel       = "hotel_agent"
	AgentAttractions = "attractions_agent"
	AgentResearch    = "research_agent"
)

// AgentAction is one entry of the per-query audit trail.
type AgentAction struct {
	Agent     string    `json:"agent"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolCallRecord captures a completed provider call for auditing.
type ToolCallRecord struct {
	Tool      string    `json:"tool"`
	Agent     string    `json:"agent"`
	Timestamp time.Time `json:"timestamp"`
}

// FlightContext keeps the last flight search so a later turn can reuse the
// route without re-extracting it from text.
type FlightContext struct {
	Origin      string         `json:"origin"`
	Destination string         `json:"destination"`
	DepartDate  string         `json:"depart_date"`
	Results     map[string]any `json:"results,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// HotelContext keeps the last hotel search parameters and raw results.
type HotelContext struct {
	Location      string         `json:"location"`
	ArrivalDate   string         `json:"arrival_date"`
	DepartureDate string         `json:"departure_date"`
	ResultsCount  int            `json:"results_count"`
	Results       map[string]any `json:"results,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// CoordinatorContext records the last routing decision for continuity and
// debugging.
type CoordinatorContext struct {
	LastRouting string       `json:"last_routing"`
	Details     RouteDetails `json:"extracted_details"`
	Error       string       `json:"error,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ConversationState is the single mutable document for one thread. It is
// owned by the orchestrator: exactly one pipeline mutates it at a time, and
// it is checkpointed to the state repository after every step.
type ConversationState struct {
	Messages []*schema.Message `json:"messages"`

	CurrentAgent   string   `json:"current_agent"`
	NextAgent      string   `json:"next_agent"`
	PreviousAgents []string `json:"previous_agents"`

	UserQuery string `json:"user_query"`
	QueryID   string `json:"query_id"`
	ThreadID  string `json:"thread_id"`

	// Cancellation triple. IsInterrupted may only become true after a
	// checkpoint observed ShouldInterrupt.
	ShouldInterrupt bool       `json:"should_interrupt"`
	IsInterrupted   bool       `json:"is_interrupted"`
	InterruptReason string     `json:"interrupt_reason"`
	InterruptedAt   *time.Time `json:"interrupted_at,omitempty"`

	// PartialResults maps a domain ("flights", "hotels", ...) to whatever
	// payload existed when an interruption was observed. Write-once per
	// domain per interruption.
	PartialResults map[string]any `json:"partial_results"`

	FlightContext      *FlightContext      `json:"flight_context,omitempty"`
	HotelContext       *HotelContext       `json:"hotel_context,omitempty"`
	CoordinatorContext *CoordinatorContext `json:"coordinator_context,omitempty"`

	Status Status `json:"status"`

	DetectedIntents    []string         `json:"detected_intents"`
	AgentActions       []AgentAction    `json:"agent_actions"`
	ActiveToolCalls    []string         `json:"active_tool_calls"`
	CompletedToolCalls []ToolCallRecord `json:"completed_tool_calls"`

	NeedsContinuation bool `json:"needs_continuation"`
}

// NewConversationState initialises state for a fresh query on a thread.
func NewConversationState(queryID, threadID, query string) *ConversationState {
	return &ConversationState{
		Messages:           []*schema.Message{schema.UserMessage(query)},
		CurrentAgent:       AgentCoordinator,
		PreviousAgents:     []string{},
		UserQuery:          query,
		QueryID:            queryID,
		ThreadID:           threadID,
		PartialResults:     map[string]any{},
		Status:             StatusProcessing,
		DetectedIntents:    []string{},
		AgentActions:       []AgentAction{},
		ActiveToolCalls:    []string{},
		CompletedToolCalls: []ToolCallRecord{},
	}
}

// BeginTurn rebinds a revived thread state to a new query. All per-query
// fields are reset; per-domain contexts and messages carry over.
func (s *ConversationState) BeginTurn(queryID, query string) {
	s.QueryID = queryID
	s.UserQuery = query
	s.NextAgent = ""
	s.ShouldInterrupt = false
	s.IsInterrupted = false
	s.InterruptReason = ""
	s.InterruptedAt = nil
	s.Status = StatusProcessing
	s.NeedsContinuation = false
	s.ActiveToolCalls = []string{}
	// Partials belong to the interruption that produced them; a new turn
	// starts with a clean slate so a fresh cancellation can preserve again.
	s.PartialResults = map[string]any{}
	s.Messages = append(s.Messages, schema.UserMessage(query))
}

// AppendAssistant appends a role-tagged assistant entry to the message log.
func (s *ConversationState) AppendAssistant(content string) {
	s.Messages = append(s.Messages, schema.AssistantMessage(content, nil))
}

// RecordAgent logs an agent activation with the given action label.
func (s *ConversationState) RecordAgent(agent, action string) {
	s.CurrentAgent = agent
	s.PreviousAgents = append(s.PreviousAgents, agent)
	s.AgentActions = append(s.AgentActions, AgentAction{
		Agent:     agent,
		Action:    action,
		Timestamp: time.Now().UTC(),
	})
}

// MarkInterrupted records the observed effect of a cancellation checkpoint.
// The effect is permanent for the step.
func (s *ConversationState) MarkInterrupted(reason string) {
	if reason == "" {
		reason = "user cancellation"
	}
	now := time.Now().UTC()
	s.IsInterrupted = true
	s.InterruptReason = reason
	s.InterruptedAt = &now
	s.Status = StatusInterrupted
}

// PreservePartial stores partial data for a domain. The first write for a
// domain wins; later writes for the same interruption are dropped.
func (s *ConversationState) PreservePartial(domain string, payload any) {
	if s.PartialResults == nil {
		s.PartialResults = map[string]any{}
	}
	if _, exists := s.PartialResults[domain]; exists {
		return
	}
	s.PartialResults[domain] = payload
}

// RecordToolCall moves a tool from the active list to the completed log.
func (s *ConversationState) RecordToolCall(tool, agent string) {
	for i, name := range s.ActiveToolCalls {
		if name == tool {
			s.ActiveToolCalls = append(s.ActiveToolCalls[:i], s.ActiveToolCalls[i+1:]...)
			break
		}
	}
	s.CompletedToolCalls = append(s.CompletedToolCalls, ToolCallRecord{
		Tool:      tool,
		Agent:     agent,
		Timestamp: time.Now().UTC(),
	})
}

// UserTexts returns the contents of all user messages in order, including
// the current query. Handlers aggregate extraction over this.
func (s *ConversationState) UserTexts() []string {
	texts := make([]string, 0, len(s.Messages)+1)
	for _, m := range s.Messages {
		if m != nil && m.Role == schema.User && m.Content != "" {
			texts = append(texts, m.Content)
		}
	}
	if s.UserQuery != "" && (len(texts) == 0 || texts[len(texts)-1] != s.UserQuery) {
		texts = append(texts, s.UserQuery)
	}
	return texts
}

// LastTurns returns the trailing message window covering the last n user
// turns, aligned so the window opens on a user message. n <= 0 returns the
// whole log.
func (s *ConversationState) LastTurns(n int) []*schema.Message {
	if n <= 0 {
		return s.Messages
	}
	seen := 0
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i] != nil && s.Messages[i].Role == schema.User {
			seen++
			if seen == n {
				return s.Messages[i:]
			}
		}
	}
	return s.Messages
}

// QueryInput is the public input for one pipeline run.
type QueryInput struct {
	QueryID  string `json:"query_id"`
	ThreadID string `json:"thread_id"`
	Query    string `json:"query"`
}

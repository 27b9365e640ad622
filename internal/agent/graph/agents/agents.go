// Package agents implements the specialist handlers behind the routing
// step. Each handler owns one domain, polls the cancellation registry at
// its checkpoints, and returns a user-facing summary with an appended
// machine-readable card block.
package agents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tripwise/server/internal/agent/model"
	errx "github.com/tripwise/server/internal/core/error"
	"github.com/tripwise/server/internal/interrupt"
	"github.com/tripwise/server/internal/travel"
)

// Deps are the shared services injected into every handler.
type Deps struct {
	Travel     *travel.Client
	Interrupts *interrupt.Registry
	Extractor  *Extractor
}

func NewDeps(client *travel.Client, registry *interrupt.Registry, defaults model.RouteDefaults) *Deps {
	return &Deps{
		Travel:     client,
		Interrupts: registry,
		Extractor:  NewExtractor(defaults),
	}
}

// checkpoint polls the registry and applies the interruption to state on
// the first observation. It reports whether the handler must stop.
func (d *Deps) checkpoint(state *model.ConversationState) bool {
	if state.IsInterrupted {
		return true
	}
	if d.Interrupts == nil {
		return false
	}
	cancelled, reason := d.Interrupts.ShouldInterrupt(state.QueryID)
	if !cancelled {
		return false
	}
	state.ShouldInterrupt = true
	state.MarkInterrupted(reason)
	return true
}

// cardJSON renders the compact card block appended to summaries.
func cardJSON(block model.CardBlock) string {
	if block.Items == nil {
		block.Items = []model.Option{}
	}
	b, err := json.Marshal(block)
	if err != nil {
		return ""
	}
	return string(b)
}

// withCards appends the card block to a prose summary.
func withCards(summary string, block model.CardBlock) string {
	card := cardJSON(block)
	if card == "" {
		return summary
	}
	return summary + "\n\n" + card
}

// searchFailure renders a provider failure with the upstream status code
// and safe message so the user sees why the call was rejected.
func searchFailure(err error) string {
	msg := errx.ProviderErrorMessage
	var ae *errx.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}
	if code := errx.StatusOf(err); code != 0 {
		return fmt.Sprintf("search failed (code %d): %s", code, msg)
	}
	return "search failed: " + msg
}

// assumptionLines formats defaulted-parameter notes for the summary.
func assumptionLines(assumptions []string) string {
	if len(assumptions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nNote: ")
	b.WriteString(strings.Join(assumptions, "; "))
	b.WriteString(".")
	return b.String()
}

// interruptionSummary is the message body for a handler stopped at a
// checkpoint. Partial results, if any, were already preserved on state.
func interruptionSummary(state *model.ConversationState) string {
	reason := state.InterruptReason
	if reason == "" {
		reason = "user cancellation"
	}
	if len(state.PartialResults) > 0 {
		return "Search interrupted (" + reason + "). Partial results were preserved and will be kept for this conversation."
	}
	return "Search interrupted (" + reason + ") before any results were retrieved."
}

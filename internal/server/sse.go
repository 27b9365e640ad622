package server

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tripwise/server/internal/agent/stream"
)

// writeSSE writes a single event in SSE wire format. The event name doubles
// as the JSON type field so plain EventSource clients and raw readers both
// work.
func writeSSE(w io.Writer, ev stream.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}

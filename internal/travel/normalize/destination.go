package normalize

// Destination identifies a searchable location returned by destination
// lookup. SearchType defaults to CITY when the payload omits it.
type Destination struct {
	ID         string
	SearchType string
	Name       string
}

// FirstDestination picks the first usable entry from a destination-lookup
// payload. The list may sit at the top level or under data.
func FirstDestination(payload map[string]any) (Destination, bool) {
	if payload == nil {
		return Destination{}, false
	}
	var list []any
	if l, ok := asList(payload["data"]); ok {
		list = l
	} else if l := listUnder(root(payload), "data", "results", "items"); l != nil {
		list = l
	} else if l := firstObjectList(root(payload)); l != nil {
		list = l
	}
	for _, raw := range list {
		item, ok := asMap(raw)
		if !ok {
			continue
		}
		id := str(item, "dest_id", "id", "destination_id")
		if id == "" {
			continue
		}
		st := str(item, "search_type", "type", "dest_type")
		if st == "" {
			st = "CITY"
		}
		return Destination{
			ID:         id,
			SearchType: st,
			Name:       str(item, "name", "label", "city_name"),
		}, true
	}
	return Destination{}, false
}

package normalize

// WebResult is one normalized web-search hit.
type WebResult struct {
	Title   string
	URL     string
	Snippet string
	Source  string
}

// WebResults normalizes a web-search payload to at most max hits.
func WebResults(payload map[string]any, max int) []WebResult {
	if payload == nil || max <= 0 {
		return nil
	}
	obj := root(payload)
	list := listUnder(obj, "results", "organic_results", "items")
	if list == nil {
		list = firstObjectList(obj)
	}
	var out []WebResult
	for _, raw := range list {
		if len(out) >= max {
			break
		}
		item, ok := asMap(raw)
		if !ok {
			continue
		}
		r := WebResult{
			Title:   str(item, "title"),
			URL:     str(item, "url", "link"),
			Snippet: str(item, "snippet", "description"),
			Source:  str(item, "source", "domain"),
		}
		if r.Title == "" && r.Snippet == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

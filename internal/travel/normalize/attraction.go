package normalize

import "github.com/tripwise/server/internal/agent/model"

// Attractions normalizes an attraction-search payload. The list usually
// lives under data.products but older payload shapes are tolerated.
func Attractions(payload map[string]any, location string) []model.Option {
	if payload == nil {
		return nil
	}
	obj := root(payload)
	list := listUnder(obj, "products", "results", "attractions", "items")
	if list == nil {
		list = firstObjectList(obj)
	}
	var out []model.Option
	for i, raw := range list {
		if i >= MaxOptions {
			break
		}
		item, ok := asMap(raw)
		if !ok {
			continue
		}
		o := model.Option{
			Name:     str(item, "name", "title"),
			Location: location,
			Currency: str(item, "currency"),
		}
		if o.Name == "" {
			o.Name = "Attraction"
		}
		if rs, ok := asMap(item["reviewsStats"]); ok {
			if combined, ok := asMap(rs["combinedNumericStats"]); ok {
				if avg, ok := num(combined, "average"); ok {
					o.Rating = floatPtr(avg)
				}
				if total, ok := num(combined, "total"); ok {
					o.Reviews = intPtr(int(total))
				}
			}
		}
		if o.Rating == nil {
			if r, ok := num(item, "rating", "averageRating"); ok {
				o.Rating = floatPtr(r)
			}
		}
		if rp, ok := asMap(item["representativePrice"]); ok {
			o.Price = moneyFromAny(rp["publicAmount"])
			if o.Price != nil && o.Price.Currency == "" {
				o.Price.Currency = str(rp, "currency")
			}
		}
		if o.Price == nil {
			o.Price = moneyFromAny(item["price"])
		}
		if o.Price != nil && o.Currency == "" {
			o.Currency = o.Price.Currency
		}
		if pr, ok := asMap(item["primaryPhoto"]); ok {
			o.ImageURL = str(pr, "small", "url")
		}
		if o.ImageURL == "" {
			o.ImageURL = str(item, "imageUrl", "photoUrl")
		}
		o.Description = str(item, "shortDescription", "description")
		out = append(out, o)
	}
	return out
}

// AttractionID extracts the detail-lookup slug from one list entry.
func AttractionID(item map[string]any) string {
	return str(item, "slug", "id", "productSlug")
}

// AttractionDescription pulls the prose description and typical duration
// from a detail payload. Either return value may be empty.
func AttractionDescription(payload map[string]any) (description, duration string) {
	if payload == nil {
		return "", ""
	}
	obj := root(payload)
	description = str(obj, "description", "shortDescription")
	if description == "" {
		if info, ok := asMap(obj["additionalInfo"]); ok {
			description = str(info, "description")
		}
	}
	duration = str(obj, "typicalDuration", "duration")
	return description, duration
}

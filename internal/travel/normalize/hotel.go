package normalize

import "github.com/tripwise/server/internal/agent/model"

var hotelListKeys = []string{"hotels", "results", "properties", "items"}

// HotelList extracts the raw hotel list so callers can detect an empty
// result set before normalization (the relaxed-date retry relies on it).
func HotelList(payload map[string]any) ([]any, bool) {
	if payload == nil {
		return nil, false
	}
	obj := root(payload)
	if l := listUnder(obj, hotelListKeys...); l != nil {
		return l, true
	}
	if l := listUnder(payload, hotelListKeys...); l != nil {
		return l, true
	}
	if l := firstObjectList(obj); l != nil {
		return l, true
	}
	return nil, false
}

// Hotels normalizes a hotel-search payload into display options.
func Hotels(payload map[string]any) []model.Option {
	list, ok := HotelList(payload)
	if !ok {
		return nil
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
		out = append(out, hotelOption(item))
	}
	return out
}

func hotelOption(item map[string]any) model.Option {
	// Most of the interesting fields live under a nested property object.
	prop, ok := asMap(item["property"])
	if !ok {
		prop = item
	}
	o := model.Option{
		Name:     str(prop, "name", "hotelName", "title"),
		Location: str(prop, "wishlistName", "city", "location", "address"),
		Currency: str(prop, "currency", "currencyCode"),
	}
	if o.Name == "" {
		o.Name = str(item, "name", "hotelName", "title")
	}
	if r, ok := num(prop, "reviewScore", "rating", "reviewScoreValue"); ok {
		o.Rating = floatPtr(r)
	}
	if n, ok := num(prop, "reviewCount", "reviews", "reviewsCount"); ok {
		o.Reviews = intPtr(int(n))
	}
	if pb, ok := asMap(prop["priceBreakdown"]); ok {
		o.Price = moneyFromAny(pb["grossPrice"])
	}
	if o.Price == nil {
		o.Price = moneyFromAny(prop["price"])
	}
	if o.Price == nil {
		o.Price = moneyFromAny(item["price"])
	}
	if o.Price != nil && o.Currency == "" {
		o.Currency = o.Price.Currency
	}
	if photos, ok := asList(prop["photoUrls"]); ok && len(photos) > 0 {
		if u, ok := photos[0].(string); ok {
			o.ImageURL = u
		}
	}
	if o.ImageURL == "" {
		if photos, ok := asList(prop["photos"]); ok && len(photos) > 0 {
			if ph, ok := asMap(photos[0]); ok {
				o.ImageURL = str(ph, "url", "urlMax", "thumbnail")
			}
		}
	}
	if o.ImageURL == "" {
		o.ImageURL = str(prop, "photoUrl", "imageUrl", "mainPhotoUrl")
	}
	// accessibilityLabel often carries a prose summary worth keeping.
	o.Description = str(item, "accessibilityLabel")
	if o.Description == "" {
		o.Description = str(prop, "accessibilityLabel", "description")
	}
	return o
}

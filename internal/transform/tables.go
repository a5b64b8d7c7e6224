package transform

// DefaultCategory is used when no type tag maps to a category.
const DefaultCategory = "Restaurant"

var categoryLabels = map[string]string{
	"restaurant":        "Restaurant",
	"food":              "Food",
	"cafe":              "Cafe",
	"bar":               "Bar",
	"meal_delivery":     "Delivery",
	"meal_takeaway":     "Takeaway",
	"bakery":            "Bakery",
	"point_of_interest": "Point of Interest",
}

var cuisineLabels = map[string]string{
	"american_restaurant":      "American",
	"chinese_restaurant":       "Chinese",
	"italian_restaurant":       "Italian",
	"japanese_restaurant":      "Japanese",
	"mexican_restaurant":       "Mexican",
	"indian_restaurant":        "Indian",
	"thai_restaurant":          "Thai",
	"french_restaurant":        "French",
	"greek_restaurant":         "Greek",
	"mediterranean_restaurant": "Mediterranean",
	"seafood_restaurant":       "Seafood",
	"steakhouse":               "Steakhouse",
	"pizza_restaurant":         "Pizza",
	"sushi_restaurant":         "Sushi",
	"barbecue_restaurant":      "BBQ",
	"fast_food_restaurant":     "Fast Food",
	"sandwich_shop":            "Sandwiches",
	"cafe":                     "Cafe",
	"bakery":                   "Bakery",
	"vegetarian_restaurant":    "Vegetarian",
}

// Categories maps type tags to category labels in tag order, without
// duplicates. It never returns an empty slice.
func Categories(types []string) []string {
	out := lookup(categoryLabels, types)
	if len(out) == 0 {
		return []string{DefaultCategory}
	}
	return out
}

// Cuisines maps type tags to cuisine labels. The result may be empty.
func Cuisines(types []string) []string {
	return lookup(cuisineLabels, types)
}

func lookup(table map[string]string, types []string) []string {
	out := make([]string, 0, len(types))
	seen := make(map[string]struct{}, len(types))
	for _, t := range types {
		label, ok := table[t]
		if !ok {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}

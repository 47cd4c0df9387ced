package posts

// Categories a post can be filed under.
const (
	CategoryAgriculture   = "Agriculture"
	CategoryBusiness      = "Business"
	CategoryEducation     = "Education"
	CategoryEntertainment = "Entertainment"
	CategoryArt           = "Art"
	CategoryInvestment    = "Investment"
	CategoryUncategorized = "Uncategorized"
	CategoryWeather       = "Weather"
)

// Categories lists every supported category in display order.
var Categories = []string{
	CategoryAgriculture,
	CategoryBusiness,
	CategoryEducation,
	CategoryEntertainment,
	CategoryArt,
	CategoryInvestment,
	CategoryUncategorized,
	CategoryWeather,
}

var knownCategories = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Categories))
	for _, c := range Categories {
		m[c] = struct{}{}
	}
	return m
}()

// IsCategory reports whether c is one of Categories. Matching is case-sensitive.
func IsCategory(c string) bool {
	_, ok := knownCategories[c]
	return ok
}

package queryparse

// StructuredQuery is the normalized, typed representation of a free-text
// search request. It is immutable after construction and passed by value to
// the ranking engine. Every field except RawText is optional: the parser
// degrades rather than failing, so an unintelligible query produces an
// all-nil structure with the raw text preserved verbatim.
type StructuredQuery struct {
	RawText string `json:"raw_query"`

	Brand           string  `json:"brand,omitempty"`
	BrandConfidence float64 `json:"brand_confidence,omitempty"`
	Model           string  `json:"model,omitempty"`
	PriceMax        *int    `json:"price_max,omitempty"`
	MileageMax      *int    `json:"mileage_max,omitempty"`
	Fuel            string  `json:"fuel,omitempty"`
	PaintCondition  string  `json:"paint_condition,omitempty"`
	City            string  `json:"city,omitempty"`

	Keywords   []string `json:"keywords,omitempty"`
	Exclusions []string `json:"exclusions,omitempty"`
}

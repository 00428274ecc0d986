// Package listing defines the shared vocabulary of the ingestion and search
// pipelines: the normalized scraped record, the enriched payload stored in
// the vector index, and the enumerated fuel / paint-condition values that the
// signal extractor, query parser, and ranker all agree on.
package listing

import "time"

// Fuel type values. The extractor and the query parser both normalize free
// text onto these, so a query-side "бензин" matches an ingest-side "petrol".
const (
	FuelPetrol   = "petrol"
	FuelDiesel   = "diesel"
	FuelHybrid   = "hybrid"
	FuelElectric = "electric"
)

// Paint / accident condition values.
const (
	PaintOriginal  = "original"
	PaintRepainted = "repainted"
)

// Provenance values for IndexPayload.CreatedAtSource.
const (
	CreatedAtFromSource   = "source"
	CreatedAtFromIngested = "ingested"
)

// Record is the normalized item every scraping adapter produces, regardless
// of where it came from. SourceURL is the unique key; CreatedAt is zero when
// the scraper could not recover a publish time.
type Record struct {
	Source    string    `json:"source"`
	SourceURL string    `json:"source_url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Text returns the combined title+content used for classification and
// signal extraction.
func (r Record) Text() string {
	if r.Title == "" {
		return r.Content
	}
	return r.Title + " " + r.Content
}

// IndexPayload is the metadata stored alongside each vector in the index and
// handed back with every search hit. Numeric fields are pointers so "field
// absent" is a typed state rather than a zero that looks like data.
type IndexPayload struct {
	Brand           string  `json:"brand,omitempty"`
	BrandConfidence float64 `json:"brand_confidence,omitempty"`
	Model           string  `json:"model,omitempty"`
	Title           string  `json:"title,omitempty"`
	Year            *int    `json:"year,omitempty"`
	Mileage         *int    `json:"mileage,omitempty"`
	Price           *int    `json:"price,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	Fuel            string  `json:"fuel,omitempty"`
	Region          string  `json:"region,omitempty"`
	PaintCondition  string  `json:"paint_condition,omitempty"`
	Source          string  `json:"source,omitempty"`
	SourceURL       string  `json:"source_url,omitempty"`
	SaleIntent      bool    `json:"sale_intent"`
	QualityScore    float64 `json:"quality_score"`

	// CreatedAt is a Unix timestamp (seconds). The ingestion pipeline always
	// sets it: either the scraper's publish time or the ingest time, with
	// CreatedAtSource recording which. Zero means a payload that predates
	// this contract; the ranker treats it as "no recency signal".
	CreatedAt       int64  `json:"created_at_ts,omitempty"`
	CreatedAtSource string `json:"created_at_source,omitempty"`
}

// IntPtr is a small helper for building optional numeric payload fields.
func IntPtr(v int) *int { return &v }

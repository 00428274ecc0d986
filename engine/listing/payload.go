package listing

// Payload map keys as stored in the vector index.
const (
	keyBrand           = "brand"
	keyBrandConfidence = "brand_confidence"
	keyModel           = "model"
	keyTitle           = "title"
	keyYear            = "year"
	keyMileage         = "mileage"
	keyPrice           = "price"
	keyCurrency        = "currency"
	keyFuel            = "fuel"
	keyRegion          = "region"
	keyPaintCondition  = "paint_condition"
	keySource          = "source"
	keySourceURL       = "source_url"
	keySaleIntent      = "sale_intent"
	keyQualityScore    = "quality_score"
	keyCreatedAt       = "created_at_ts"
	keyCreatedAtSource = "created_at_source"
)

// Indexed fields referenced outside the payload codec: the dedup and
// re-ingest key, and the keyword-filterable attributes.
const (
	KeySourceURL      = keySourceURL
	KeyFuel           = keyFuel
	KeyPaintCondition = keyPaintCondition
)

// ToMap flattens the payload for the vector store. Absent optional fields
// produce no key at all, so the index never stores sentinel zeros.
func (p IndexPayload) ToMap() map[string]any {
	m := make(map[string]any, 16)
	putStr := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	putStr(keyBrand, p.Brand)
	putStr(keyModel, p.Model)
	putStr(keyTitle, p.Title)
	putStr(keyCurrency, p.Currency)
	putStr(keyFuel, p.Fuel)
	putStr(keyRegion, p.Region)
	putStr(keyPaintCondition, p.PaintCondition)
	putStr(keySource, p.Source)
	putStr(keySourceURL, p.SourceURL)
	putStr(keyCreatedAtSource, p.CreatedAtSource)
	if p.BrandConfidence != 0 {
		m[keyBrandConfidence] = p.BrandConfidence
	}
	if p.Year != nil {
		m[keyYear] = *p.Year
	}
	if p.Mileage != nil {
		m[keyMileage] = *p.Mileage
	}
	if p.Price != nil {
		m[keyPrice] = *p.Price
	}
	m[keySaleIntent] = p.SaleIntent
	m[keyQualityScore] = p.QualityScore
	if p.CreatedAt != 0 {
		m[keyCreatedAt] = p.CreatedAt
	}
	return m
}

// PayloadFromMap rebuilds an IndexPayload from a stored payload map. Missing
// or mistyped keys degrade to absent fields; nothing here can fail.
func PayloadFromMap(m map[string]any) IndexPayload {
	var p IndexPayload
	p.Brand = asString(m[keyBrand])
	p.BrandConfidence = asFloat(m[keyBrandConfidence])
	p.Model = asString(m[keyModel])
	p.Title = asString(m[keyTitle])
	p.Currency = asString(m[keyCurrency])
	p.Fuel = asString(m[keyFuel])
	p.Region = asString(m[keyRegion])
	p.PaintCondition = asString(m[keyPaintCondition])
	p.Source = asString(m[keySource])
	p.SourceURL = asString(m[keySourceURL])
	p.CreatedAtSource = asString(m[keyCreatedAtSource])
	p.Year = asIntPtr(m[keyYear])
	p.Mileage = asIntPtr(m[keyMileage])
	p.Price = asIntPtr(m[keyPrice])
	p.SaleIntent = asBool(m[keySaleIntent])
	p.QualityScore = asFloat(m[keyQualityScore])
	p.CreatedAt = int64(asFloat(m[keyCreatedAt]))
	if v, ok := m[keyCreatedAt].(int64); ok {
		p.CreatedAt = v
	}
	return p
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	}
	return 0
}

func asIntPtr(v any) *int {
	switch t := v.(type) {
	case int:
		return IntPtr(t)
	case int64:
		return IntPtr(int(t))
	case float64:
		return IntPtr(int(t))
	}
	return nil
}

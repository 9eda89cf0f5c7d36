package catalog

// PriceTable resolves unit prices by medicine name at preview-build time.
// Names absent from the table fall back to the default price.
type PriceTable struct {
	prices       map[string]float64
	defaultPrice float64
}

// NewPriceTable creates a price table with the given default.
func NewPriceTable(prices map[string]float64, defaultPrice float64) *PriceTable {
	cp := make(map[string]float64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &PriceTable{prices: cp, defaultPrice: defaultPrice}
}

// DefaultPriceTable returns the standard retail price list.
func DefaultPriceTable() *PriceTable {
	return NewPriceTable(map[string]float64{
		"Paracetamol":  0.15,
		"Metformin":    0.20,
		"Atorvastatin": 0.85,
		"Lisinopril":   0.55,
		"Amlodipine":   0.65,
		"Omeprazole":   0.40,
		"Amoxicillin":  0.35,
		"Ibuprofen":    0.20,
		"Aspirin":      0.10,
	}, 0.50)
}

// Price returns the unit price for a medicine name.
func (t *PriceTable) Price(name string) float64 {
	if p, ok := t.prices[name]; ok {
		return p
	}
	return t.defaultPrice
}

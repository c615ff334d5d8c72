package catalog

const StatusActive = "ACTIVE"

// Product as the pricing path sees it. PriceMinor may be unset for
// catalog entries that were never priced; Stock nil means unlimited.
type Product struct {
	ID         string
	Name       string
	Slug       string
	Status     string
	Currency   string
	PriceMinor *int64
	Stock      *int64
	Variants   []Variant
}

// Variant is a sized/colored SKU of a product. A price override beats
// the base product price; a nil override inherits it.
type Variant struct {
	ID                 string
	ProductID          string
	Label              string
	PriceOverrideMinor *int64
	Stock              *int64
}

func (p Product) variantByID(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

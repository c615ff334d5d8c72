package catalog

import (
	"context"
	"fmt"
)

// LineRequest is one requested cart line. Any client-supplied price is
// already gone by the time it reaches here: pricing is recomputed from
// the catalog, which is the single place price tampering is neutralized.
type LineRequest struct {
	ProductID string         `json:"product_id"`
	VariantID *string        `json:"variant_id,omitempty"`
	Quantity  int            `json:"quantity"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PricedLine is a line with the authoritative price and name snapshot
// resolved. Metadata passes through untouched.
type PricedLine struct {
	ProductID      string
	VariantID      *string
	NameSnapshot   string
	Quantity       int
	UnitPriceMinor int64
	Currency       string
	Metadata       map[string]any
}

// Quote is the server-side truth for a cart. Shipping and tax are out
// of scope here, so total equals subtotal.
type Quote struct {
	Lines         []PricedLine
	Currency      string
	SubtotalMinor int64
	TotalMinor    int64
}

const (
	ReasonInvalidQuantity   = "invalid_quantity"
	ReasonNotFound          = "not_found"
	ReasonVariantNotFound   = "variant_not_found"
	ReasonPriceNotSet       = "price_not_set"
	ReasonCurrencyMismatch  = "currency_mismatch"
	ReasonOutOfStock        = "out_of_stock"
	ReasonInsufficientStock = "insufficient_stock"
)

// LineError reports why a single line was rejected. Available is set
// for stock failures so the client can adjust the cart.
type LineError struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Reason    string `json:"reason"`
	Available *int64 `json:"available,omitempty"`
}

// ValidationError rejects the whole request when any line fails; a cart
// is priced all-or-nothing.
type ValidationError struct {
	Lines []LineError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog: %d cart line(s) failed validation", len(e.Lines))
}

// StockOnly reports whether every failure is a stock shortage, which
// the HTTP edge maps to Conflict rather than BadRequest.
func (e *ValidationError) StockOnly() bool {
	for _, l := range e.Lines {
		if l.Reason != ReasonOutOfStock && l.Reason != ReasonInsufficientStock {
			return false
		}
	}
	return len(e.Lines) > 0
}

// Source is the catalog read dependency of the pricer.
type Source interface {
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]Product, error)
}

// Pricer resolves authoritative prices and availability for cart lines.
type Pricer struct {
	Catalog Source
}

// Price validates and prices all lines. The returned error is a
// *ValidationError when any line was rejected.
func (p *Pricer) Price(ctx context.Context, lines []LineRequest) (*Quote, error) {
	ids := make([]string, 0, len(lines))
	seen := map[string]bool{}
	for _, l := range lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}

	products, err := p.Catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var (
		verr  ValidationError
		quote Quote
	)
	for _, l := range lines {
		if l.Quantity <= 0 {
			verr.Lines = append(verr.Lines, LineError{ProductID: l.ProductID, Reason: ReasonInvalidQuantity})
			continue
		}

		product, ok := products[l.ProductID]
		if !ok || product.Status != StatusActive {
			verr.Lines = append(verr.Lines, LineError{ProductID: l.ProductID, Reason: ReasonNotFound})
			continue
		}

		// Multi-currency carts are not supported in one checkout.
		if quote.Currency == "" {
			quote.Currency = product.Currency
		}
		if product.Currency != quote.Currency {
			verr.Lines = append(verr.Lines, LineError{ProductID: l.ProductID, Reason: ReasonCurrencyMismatch})
			continue
		}

		price := product.PriceMinor
		stock := product.Stock
		name := product.Name
		var variantID string
		if l.VariantID != nil {
			variant, ok := product.variantByID(*l.VariantID)
			if !ok {
				verr.Lines = append(verr.Lines, LineError{ProductID: l.ProductID, VariantID: *l.VariantID, Reason: ReasonVariantNotFound})
				continue
			}
			variantID = variant.ID
			if variant.PriceOverrideMinor != nil {
				price = variant.PriceOverrideMinor
			}
			stock = variant.Stock
			if variant.Label != "" {
				name = fmt.Sprintf("%s (%s)", product.Name, variant.Label)
			}
		}

		if price == nil {
			verr.Lines = append(verr.Lines, LineError{ProductID: l.ProductID, VariantID: variantID, Reason: ReasonPriceNotSet})
			continue
		}

		if ok, reason := checkStock(stock, l.Quantity); !ok {
			verr.Lines = append(verr.Lines, LineError{ProductID: l.ProductID, VariantID: variantID, Reason: reason, Available: stock})
			continue
		}

		quote.Lines = append(quote.Lines, PricedLine{
			ProductID:      l.ProductID,
			VariantID:      l.VariantID,
			NameSnapshot:   name,
			Quantity:       l.Quantity,
			UnitPriceMinor: *price,
			Currency:       product.Currency,
			Metadata:       l.Metadata,
		})
		quote.SubtotalMinor += *price * int64(l.Quantity)
	}

	if len(verr.Lines) > 0 {
		return nil, &verr
	}
	quote.TotalMinor = quote.SubtotalMinor
	return &quote, nil
}

// checkStock: nil means unlimited inventory.
func checkStock(stock *int64, quantity int) (bool, string) {
	if stock == nil {
		return true, ""
	}
	if *stock < int64(quantity) {
		if *stock == 0 {
			return false, ReasonOutOfStock
		}
		return false, ReasonInsufficientStock
	}
	return true, ""
}

package subscription

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/dmitrymomot/seatshare/pkg/pricing"
)

// TermOption is a purchasable term length of a product.
type TermOption struct {
	DiscountPercent int `yaml:"discount_percent" json:"discount_percent"`
}

// Product is a catalog entry users can subscribe to.
type Product struct {
	ID             string             `yaml:"id" json:"id"`
	Name           string             `yaml:"name" json:"name"`
	Category       string             `yaml:"category" json:"category"`
	BasePriceCents int64              `yaml:"base_price_cents" json:"base_price_cents"` // per month
	Currency       string             `yaml:"currency" json:"currency"`
	Terms          map[int]TermOption `yaml:"terms" json:"terms"` // keyed by months
	Purchasable    bool               `yaml:"purchasable" json:"purchasable"`
}

// Term returns the option for termMonths.
func (p Product) Term(termMonths int) (TermOption, error) {
	opt, ok := p.Terms[termMonths]
	if !ok {
		return TermOption{}, ErrTermNotOffered
	}
	return opt, nil
}

// TermLengths lists the offered term lengths in ascending order.
func (p Product) TermLengths() []int {
	return slices.Sorted(maps.Keys(p.Terms))
}

// Quote prices termMonths of the product.
func (p Product) Quote(termMonths int) (pricing.TermPrice, error) {
	opt, err := p.Term(termMonths)
	if err != nil {
		return pricing.TermPrice{}, err
	}
	return pricing.ComputeTermPricing(p.BasePriceCents, termMonths, opt.DiscountPercent)
}

// Snapshot freezes the terms for a purchase of termMonths.
func (p Product) Snapshot(termMonths int) (Snapshot, error) {
	opt, err := p.Term(termMonths)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		BasePriceCents:  p.BasePriceCents,
		Currency:        p.Currency,
		TermMonths:      termMonths,
		DiscountPercent: opt.DiscountPercent,
	}, nil
}

func (p Product) validate() error {
	switch {
	case p.ID == "":
		return errors.New("id is required")
	case p.BasePriceCents < 0:
		return fmt.Errorf("product %s has negative base price", p.ID)
	case len(p.Terms) == 0:
		return fmt.Errorf("product %s offers no terms", p.ID)
	}
	if _, err := pricing.ParseCurrency(p.Currency); err != nil {
		return fmt.Errorf("product %s: %w", p.ID, err)
	}
	for months, opt := range p.Terms {
		if _, err := pricing.ComputeTermPricing(p.BasePriceCents, months, opt.DiscountPercent); err != nil {
			return fmt.Errorf("product %s term %d: %w", p.ID, months, err)
		}
	}
	return nil
}

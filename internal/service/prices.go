package service

import "matchday/internal/model"

// PriceCatalog maps plans to processor price ids and back.
type PriceCatalog struct {
	Monthly string
	Yearly  string
}

// Configured reports whether both plans have a price.
func (c PriceCatalog) Configured() bool {
	return c.Monthly != "" && c.Yearly != ""
}

// PriceFor returns the price id for plan, or "" if the plan is unknown or unpriced.
func (c PriceCatalog) PriceFor(plan model.Plan) string {
	switch plan {
	case model.PlanMonthly:
		return c.Monthly
	case model.PlanYearly:
		return c.Yearly
	}
	return ""
}

// PlanFor returns the plan sold at priceID, or nil for prices outside the catalog.
func (c PriceCatalog) PlanFor(priceID string) *model.Plan {
	var p model.Plan
	switch {
	case priceID == "":
		return nil
	case priceID == c.Monthly:
		p = model.PlanMonthly
	case priceID == c.Yearly:
		p = model.PlanYearly
	default:
		return nil
	}
	return &p
}

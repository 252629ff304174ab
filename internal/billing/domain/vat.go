package billing

import "math"

// ExclTaxes converts an amount including VAT to its pre-tax value.
func ExclTaxes(inclTaxes, vat float64) float64 {
	return inclTaxes / (1 + vat/100)
}

// InclTaxes applies VAT to a pre-tax amount.
func InclTaxes(exclTaxes, vat float64) float64 {
	return exclTaxes * (1 + vat/100)
}

// Round2 rounds an amount to cents. Only presentation code should call it.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}

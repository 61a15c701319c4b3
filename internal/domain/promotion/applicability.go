package promotion

// AppliesTo reports whether a product is in scope for the promotion.
//
// Exclusions win over inclusions: a product listed both ways is out of
// scope. Empty inclusion lists mean no restriction, so every non-excluded
// product qualifies.
func (p *Promotion) AppliesTo(productID, categoryCode string) bool {
	if productID == "" {
		return false
	}

	for _, excluded := range p.ExcludedProducts {
		if excluded == productID {
			return false
		}
	}
	if categoryMatches(p.ExcludedCategories, categoryCode) {
		return false
	}

	if len(p.ApplicableProducts) == 0 && len(p.ApplicableCategories) == 0 {
		return true
	}

	for _, included := range p.ApplicableProducts {
		if included == productID {
			return true
		}
	}
	return categoryMatches(p.ApplicableCategories, categoryCode)
}

// categoryMatches reports whether any resolved ref matches the given code.
// Refs without a resolved code never match.
func categoryMatches(refs []CategoryRef, categoryCode string) bool {
	if categoryCode == "" {
		return false
	}
	for _, ref := range refs {
		if ref.Code != "" && ref.Code == categoryCode {
			return true
		}
	}
	return false
}

package core

import "fmt"

// MaxRiskAversion bounds Seller.RiskAversion. Together with the eaf discount
// rate limit in PricingConfig.Validate it keeps every net price positive.
const MaxRiskAversion = 2.0

// ValidateSeller checks one seller's parameters.
func ValidateSeller(s Seller) error {
	if s.Name == "" {
		return fmt.Errorf("seller name is required")
	}
	if err := ValidatePoint(s.Location); err != nil {
		return fmt.Errorf("seller %q: %w", s.Name, err)
	}
	if s.BaseCost <= 0 {
		return fmt.Errorf("seller %q: base_cost must be positive, got %v", s.Name, s.BaseCost)
	}
	if s.MSRP < 0 {
		return fmt.Errorf("seller %q: msrp must be non-negative, got %v", s.Name, s.MSRP)
	}
	if !(s.RiskAversion >= 0 && s.RiskAversion <= MaxRiskAversion) {
		return fmt.Errorf("seller %q: risk_aversion must be in [0, %v], got %v", s.Name, MaxRiskAversion, s.RiskAversion)
	}
	return nil
}

// ValidateSellers checks every seller and rejects duplicate names, which
// would make rankings ambiguous.
func ValidateSellers(sellers []Seller) error {
	seen := make(map[string]struct{}, len(sellers))
	for i, s := range sellers {
		if s.Name == "" {
			return fmt.Errorf("seller %d: name is required", i)
		}
		if err := ValidateSeller(s); err != nil {
			return err
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("seller %q: duplicate name", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

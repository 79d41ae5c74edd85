package rules

import "github.com/opensurvey/kestrel/internal/domain"

// BuiltinRules returns the default flag rules loaded when a tenant has
// none configured. Tenants override them through the flag rule API.
func BuiltinRules() []*domain.FlagRule {
	return []*domain.FlagRule{
		{
			ID:          "builtin-borderline",
			Name:        "borderline confidence",
			Description: "Confidence close to the classification threshold; worth a manual look.",
			Version:     "1",
			Expression:  "confidence >= 0.6 && confidence <= 0.75",
			Flag:        "manual_review",
			Enabled:     true,
		},
		{
			ID:          "builtin-geo-velocity",
			Name:        "geo and velocity combination",
			Description: "Inconsistent location combined with elevated submission velocity.",
			Version:     "1",
			Expression:  "!geo_consistent && velocity_risk > 0.3",
			Flag:        "geo_velocity_combo",
			Enabled:     true,
		},
		{
			ID:          "builtin-duplicate-burst",
			Name:        "duplicate response burst",
			Description: "Three or more near-identical responses against the same questions.",
			Version:     "1",
			Expression:  "duplicate_count >= 3",
			Flag:        "duplicate_burst",
			Enabled:     true,
		},
	}
}

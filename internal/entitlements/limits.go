// Package entitlements maps subscription tiers to feature limits. The
// billing provider is the source of truth; a local cache row per business is
// kept up to date by the Stripe webhook. Zero means unlimited.
package entitlements

const (
	TierFree     = "free"
	TierPro      = "pro"
	TierBusiness = "business"
)

type Limits struct {
	Tier                   string `json:"tier"`
	MaxProfessionals       int    `json:"max_professionals"`
	MaxServices            int    `json:"max_services"`
	MaxMonthlyAppointments int    `json:"max_monthly_appointments"`
}

func LimitsForTier(tier string) Limits {
	switch tier {
	case TierPro:
		return Limits{
			Tier:             TierPro,
			MaxProfessionals: 3,
		}
	case TierBusiness:
		return Limits{
			Tier: TierBusiness,
		}
	default:
		return Limits{
			Tier:                   TierFree,
			MaxProfessionals:       1,
			MaxServices:            5,
			MaxMonthlyAppointments: 50,
		}
	}
}

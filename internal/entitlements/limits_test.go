package entitlements

import "testing"

func TestLimitsForTier(t *testing.T) {
	free := LimitsForTier("unknown")
	if free.Tier != TierFree || free.MaxProfessionals != 1 || free.MaxServices != 5 || free.MaxMonthlyAppointments != 50 {
		t.Fatalf("unexpected free limits: %+v", free)
	}

	pro := LimitsForTier(TierPro)
	if pro.MaxProfessionals != 3 {
		t.Fatalf("pro should cap professionals at 3, got %d", pro.MaxProfessionals)
	}
	if pro.MaxServices != 0 || pro.MaxMonthlyAppointments != 0 {
		t.Fatalf("pro services and monthly appointments should be unlimited: %+v", pro)
	}

	business := LimitsForTier(TierBusiness)
	if business.MaxProfessionals != 0 || business.MaxServices != 0 || business.MaxMonthlyAppointments != 0 {
		t.Fatalf("business tier should be unlimited: %+v", business)
	}
}

package ethics_test

import (
	"testing"

	"github.com/uprootiny/arbitragefx-sub000/internal/ethics"
)

func aligned() ethics.SymbolInput {
	return ethics.SymbolInput{
		Now:              100000,
		TotalExposure:    100,
		Equity:           10000,
		TradesToday:      1,
		LastLossTs:       0,
		ConsecutiveLosses: 0,
		CandleCount:      20,
		LastTs:           99000,
		Spread:           0.001,
		HasPendingOrder:  false,
		RegimeMultiplier: 1.0,
	}
}

func baseConfig() ethics.Config {
	return ethics.Config{
		MaxPositionPct:  0.5,
		MaxTradesPerDay: 20,
		CooldownMs:      10000,
		DataStaleMs:     60000,
		MaxSpreadPct:    0.01,
	}
}

func TestAlignedStatePasses(t *testing.T) {
	if v := ethics.Check(aligned(), baseConfig()); v != nil {
		t.Fatalf("expected no violation, got %+v", v)
	}
}

func TestGreedOverExtension(t *testing.T) {
	in := aligned()
	in.TotalExposure = 9000
	v := ethics.Check(in, baseConfig())
	if v == nil || v.Code != ethics.GreedOverExtension {
		t.Fatalf("expected GreedOverExtension, got %+v", v)
	}
}

func TestAversionRevengeRequiresRecentLoss(t *testing.T) {
	cfg := baseConfig()
	in := aligned()
	in.LastLossTs = 95000 // 5s before now, cooldown is 10s
	v := ethics.Check(in, cfg)
	if v == nil || v.Code != ethics.AversionRevenge {
		t.Fatalf("expected AversionRevenge, got %+v", v)
	}

	// zero last_loss_ts must never trip the guard even if ms_since_loss is small
	in2 := aligned()
	in2.LastLossTs = 0
	in2.Now = 5000
	if v := ethics.Check(in2, cfg); v != nil {
		t.Fatalf("expected no violation with LastLossTs=0, got %+v", v)
	}
}

func TestAversionCascadeHardcodedAtThree(t *testing.T) {
	in := aligned()
	in.ConsecutiveLosses = 3
	v := ethics.Check(in, baseConfig())
	if v == nil || v.Code != ethics.AversionCascade {
		t.Fatalf("expected AversionCascade, got %+v", v)
	}
}

func TestDelusionInsufficientData(t *testing.T) {
	in := aligned()
	in.CandleCount = 5
	v := ethics.Check(in, baseConfig())
	if v == nil || v.Code != ethics.DelusionInsufficient {
		t.Fatalf("expected DelusionInsufficient, got %+v", v)
	}
}

func TestGuardOrderingGreedBeforeDelusion(t *testing.T) {
	in := aligned()
	in.TotalExposure = 9000 // trips greed
	in.CandleCount = 1      // would also trip delusion
	v := ethics.Check(in, baseConfig())
	if v == nil || v.Poison != ethics.PoisonGreed {
		t.Fatalf("expected greed to be checked first, got %+v", v)
	}
}

func TestRegimeReflexiveBlocksEvenWhenOtherwiseAligned(t *testing.T) {
	in := aligned()
	in.RegimeMultiplier = 0
	v := ethics.Check(in, baseConfig())
	if v == nil || v.Code != ethics.RegimeReflexive {
		t.Fatalf("expected RegimeReflexive, got %+v", v)
	}
}

func TestPendingOrderCollision(t *testing.T) {
	in := aligned()
	in.HasPendingOrder = true
	v := ethics.Check(in, baseConfig())
	if v == nil || v.Code != ethics.OperationalPendingOrder {
		t.Fatalf("expected OperationalPendingOrder, got %+v", v)
	}
}

package validation

import (
	"fmt"
)

// Check names. Verdicts carry these so a downstream block can be explained.
const (
	CheckLiquidityLock       = "liquidity_lock"
	CheckContractSanity      = "contract_sanity"
	CheckHolderConcentration = "holder_concentration"
	CheckSourceVerification  = "source_verification"
)

// CheckFunc inspects fetched venue facts. A nil return passes; a non-nil
// return fails the named check with a reason.
type CheckFunc func(f *AssetFacts) error

// Thresholds tune the battery.
type Thresholds struct {
	MinLiquidityUSD float64
	MaxHolderShare  float64
}

// battery returns the full ordered check set.
func battery(t Thresholds) map[string]CheckFunc {
	return map[string]CheckFunc{
		CheckLiquidityLock: func(f *AssetFacts) error {
			if !f.LiquidityLocked {
				return fmt.Errorf("liquidity not locked")
			}
			if t.MinLiquidityUSD > 0 && f.LiquidityUSD < t.MinLiquidityUSD {
				return fmt.Errorf("liquidity %.0f below floor %.0f", f.LiquidityUSD, t.MinLiquidityUSD)
			}
			return nil
		},
		CheckContractSanity: func(f *AssetFacts) error {
			if f.MintAuthority {
				return fmt.Errorf("mint authority still enabled")
			}
			if f.FreezeAuthority {
				return fmt.Errorf("freeze authority still enabled")
			}
			if !f.ContractValidated {
				return fmt.Errorf("contract not validated")
			}
			return nil
		},
		CheckHolderConcentration: func(f *AssetFacts) error {
			if f.TopHolderShare > t.MaxHolderShare {
				return fmt.Errorf("top holder owns %.1f%%, cap %.1f%%",
					f.TopHolderShare*100, t.MaxHolderShare*100)
			}
			return nil
		},
		CheckSourceVerification: func(f *AssetFacts) error {
			if !f.DeployerVerified {
				return fmt.Errorf("deployer not verified")
			}
			return nil
		},
	}
}

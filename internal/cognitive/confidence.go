package cognitive

import (
	"math"
	"time"

	"github.com/ledgerline/invoice-cli/internal/model"
)

const (
	unprovenDiscount = 0.8  // rule has never been through human review
	baseWeight       = 0.6  // weight of the rule's own confidence
	memoryWeight     = 0.4  // weight of the reinforcement history
	dailyDecay       = 0.99 // per-day multiplier since last use
	confidenceFloor  = 0.1
)

// Calculate blends a rule's base confidence with its reinforcement history.
// Without history the rule is unproven and gets a flat discount; with history
// the acceptance rate is Laplace-smoothed and the blend decays per day of
// disuse, floored at 0.1.
func Calculate(base float64, resolution *model.ResolutionMemory, now time.Time) float64 {
	if resolution == nil || resolution.TotalApplications == 0 {
		return base * unprovenDiscount
	}

	memory := float64(resolution.AcceptedCount+1) / float64(resolution.TotalApplications+2)

	decay := 1.0
	if resolution.LastUsedAt != nil {
		days := math.Floor(now.Sub(*resolution.LastUsedAt).Hours() / 24)
		if days > 0 {
			decay = math.Pow(dailyDecay, days)
		}
	}

	return math.Max(confidenceFloor, (baseWeight*base+memoryWeight*memory)*decay)
}

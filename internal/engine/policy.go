package engine

import "math"

// Balance policy. Every chance, clamp, and reward band the engine
// applies lives here; story content never overrides these.
const (
	// Effective success chance is clamped so no roll is ever a
	// certainty in either direction.
	minEffectiveChance = 5.0
	maxEffectiveChance = 95.0

	// defaultBaseChance applies when an outcome node declares no base
	// success chance.
	defaultBaseChance = 70.0

	// Cash-out banks current coins at a reduced XP fraction.
	cashOutXPFraction = 0.75

	// baseXP(level) = level*xpPerLevel + xpFloor
	xpPerLevel = 6
	xpFloor    = 50
)

// Policy for incrementally generated stories. Generated text never
// carries numbers; all of these are applied by the engine when it
// builds or splices graph layers.
const (
	genFirstRollChance  = 70.0
	genSecondRollChance = 65.0

	// Terminal coin bands by how many of the two rolls succeeded.
	genCoinsTwoWinsMin = 350
	genCoinsTwoWinsMax = 600
	genCoinsOneWinMin  = 120
	genCoinsOneWinMax  = 280
	genCoinsNoWinMin   = -260
	genCoinsNoWinMax   = -80

	genXPTwoWins = 1.5
	genXPOneWin  = 1.1
	genXPNoWin   = 0.8
)

// BaseXP is the XP a player's level is worth for one playthrough before
// the terminal multiplier.
func BaseXP(level int) int {
	return level*xpPerLevel + xpFloor
}

// EffectiveChance derives the success chance for one roll: a higher
// risk multiplier lowers it, and the result stays inside the clamp
// band.
func EffectiveChance(base, riskMultiplier float64) float64 {
	if base <= 0 {
		base = defaultBaseChance
	}
	if riskMultiplier <= 0 {
		riskMultiplier = 1.0
	}
	eff := base / riskMultiplier
	if eff < minEffectiveChance {
		return minEffectiveChance
	}
	if eff > maxEffectiveChance {
		return maxEffectiveChance
	}
	return eff
}

// generatedTerminalPolicy computes the numbers for a generated ending
// from the two roll results alone.
func (e *Engine) generatedTerminalPolicy(firstSuccess, secondSuccess bool) (coins int, positive bool, xpMult float64) {
	switch {
	case firstSuccess && secondSuccess:
		return e.randRange(genCoinsTwoWinsMin, genCoinsTwoWinsMax), true, genXPTwoWins
	case firstSuccess || secondSuccess:
		return e.randRange(genCoinsOneWinMin, genCoinsOneWinMax), true, genXPOneWin
	default:
		return e.randRange(genCoinsNoWinMin, genCoinsNoWinMax), false, genXPNoWin
	}
}

func roundXP(base int, mult float64) int {
	return int(math.Round(float64(base) * mult))
}

package sim

import (
	"math/rand"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
)

// Actions the possessing team can take on a tick.
const (
	actionPass         = "PASS"
	actionRun          = "RUN"
	actionKick         = "KICK"
	actionScoreAttempt = "SCORE_ATTEMPT"
)

// Bernoulli probability bounds. Success chances stay inside these so no
// attribute value makes an outcome certain either way.
const (
	probFloor = 0.25
	probCeil  = 0.90
)

// attributeChance maps a rating in [1,40] onto [probFloor, probCeil]
// linearly. Monotone by construction: a better rating is never worse.
func attributeChance(attr int) float64 {
	clamped := models.ClampAttribute(attr)
	return probFloor + (probCeil-probFloor)*float64(clamped-models.AttributeMin)/float64(models.AttributeMax-models.AttributeMin)
}

// fatigueFactor shrinks a success chance as in-match stamina drains.
// Fresh legs keep the full chance; empty legs halve it.
func fatigueFactor(stamina float64) float64 {
	if stamina < 0 {
		stamina = 0
	}
	if stamina > maxMatchStamina {
		stamina = maxMatchStamina
	}
	return 0.5 + 0.5*stamina/maxMatchStamina
}

// actionWeights builds the selection weights for the ball carrier at the
// given field position. A stronger arm shifts weight toward PASS; deep
// field position shifts weight toward SCORE_ATTEMPT.
func actionWeights(carrier *models.Player, fieldPos int) ([]string, []float64) {
	passWeight := 10.0 + 2.0*float64(carrier.Throwing)
	runWeight := 12.0 + 1.5*float64(carrier.Speed) + 0.5*float64(carrier.Agility)
	kickWeight := 4.0 + 0.8*float64(carrier.Kicking)

	scoreWeight := 0.5
	if fieldPos >= 60 {
		scoreWeight = 1.0 + float64(fieldPos-60)*0.45
	}
	if fieldPos >= 85 {
		scoreWeight *= 2.0
	}

	return []string{actionPass, actionRun, actionKick, actionScoreAttempt},
		[]float64{passWeight, runWeight, kickWeight, scoreWeight}
}

// weightedSelect picks one item proportionally to its weight.
func weightedSelect(rng *rand.Rand, items []string, weights []float64) string {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return items[len(items)-1]
	}

	roll := rng.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		roll -= w
		if roll < 0 {
			return items[i]
		}
	}
	return items[len(items)-1]
}

// bernoulli runs one success trial.
func bernoulli(rng *rand.Rand, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return rng.Float64() < p
}

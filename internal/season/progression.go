package season

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/pkg/config"
)

// Dice draws a uniform sample from [0,1). The daily sweeps take it injected
// so tests can force or forbid every trial.
type Dice func() float64

// NewDice returns a seeded uniform source.
func NewDice(seed int64) Dice {
	rng := rand.New(rand.NewSource(seed))
	return rng.Float64
}

// SystemDice seeds from the wall clock, for production sweeps.
func SystemDice() Dice {
	return NewDice(time.Now().UnixNano())
}

// progressionChance is the per-attribute improvement probability. Youth
// helps, the tail of a career hurts hard, and potential widens or narrows
// everything proportionally.
func progressionChance(base float64, age int, potential float64) float64 {
	var ageFactor float64
	switch {
	case age < 24:
		ageFactor = 1.4
	case age <= 30:
		ageFactor = 1.0
	default:
		ageFactor = 0.25
	}
	chance := base * ageFactor * (0.5 + potential/5)
	if chance < 0 {
		return 0
	}
	if chance > 1 {
		return 1
	}
	return chance
}

// RunDailyProgression rolls one improvement trial per attribute for every
// active player and persists the winners. Returns players improved and
// total attributes raised.
func RunDailyProgression(ctx context.Context, st *store.Store, cfg *config.Config, dice Dice, log *logrus.Logger) (int, int, error) {
	players, err := st.Players().ListActive(ctx)
	if err != nil {
		return 0, 0, err
	}

	improved, raised := 0, 0
	var firstErr error
	for i := range players {
		p := &players[i]
		chance := progressionChance(cfg.ProgressionBaseRate, p.Age, p.PotentialStars)

		gained := 0
		attrs := p.AttributeMap()
		for _, name := range models.AttributeNames {
			v := attrs[name]
			if *v >= models.AttributeMax {
				continue
			}
			if dice() < chance {
				*v++
				gained++
			}
		}
		if gained == 0 {
			continue
		}
		if err := st.Players().Save(ctx, p); err != nil {
			log.WithError(err).WithField("player_id", p.ID).Error("Could not persist progression")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		improved++
		raised += gained
	}
	return improved, raised, firstErr
}

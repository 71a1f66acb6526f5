package season

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/pkg/config"
)

// declineChance grows linearly past the prime years and saturates, so even
// the oldest active player keeps one in five sweeps clean.
func declineChance(age int) float64 {
	chance := 0.05 * float64(age-30)
	if chance < 0 {
		return 0
	}
	if chance > 0.8 {
		return 0.8
	}
	return chance
}

// retirementChance starts at one in ten the first eligible year and climbs
// with each season past the threshold.
func retirementChance(age, retirementStart int) float64 {
	chance := 0.10 + 0.05*float64(age-retirementStart)
	if chance < 0 {
		return 0
	}
	if chance > 0.9 {
		return 0.9
	}
	return chance
}

// AgingOutcome totals one offseason sweep.
type AgingOutcome struct {
	Aged     int `json:"aged"`
	Declined int `json:"declined"`
	Retired  int `json:"retired"`
}

// RunOffseasonAging ages every active player by one year, then applies the
// late-career dice: physical decline from the decline threshold, voluntary
// retirement from the retirement threshold, and an unconditional exit at
// the mandatory age.
func RunOffseasonAging(ctx context.Context, st *store.Store, cfg *config.Config, dice Dice, log *logrus.Logger) (AgingOutcome, error) {
	var out AgingOutcome

	players, err := st.Players().ListActive(ctx)
	if err != nil {
		return out, err
	}

	var firstErr error
	for i := range players {
		p := &players[i]
		p.Age++
		out.Aged++

		switch {
		case p.Age >= cfg.MandatoryRetireAge:
			p.IsRetired = true
		case p.Age >= cfg.RetirementStart && dice() < retirementChance(p.Age, cfg.RetirementStart):
			p.IsRetired = true
		}

		if !p.IsRetired && p.Age >= cfg.AgeDeclineStart && dice() < declineChance(p.Age) {
			name := models.PhysicalAttributeNames[int(dice()*float64(len(models.PhysicalAttributeNames)))%len(models.PhysicalAttributeNames)]
			v := p.AttributeMap()[name]
			if *v > models.AttributeMin {
				*v--
				out.Declined++
			}
		}

		if err := st.Players().Save(ctx, p); err != nil {
			log.WithError(err).WithField("player_id", p.ID).Error("Could not persist aging result")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if p.IsRetired {
			out.Retired++
			log.WithFields(logrus.Fields{
				"player_id": p.ID,
				"player":    p.Name,
				"age":       p.Age,
			}).Info("Player retired")
		}
	}
	return out, firstErr
}

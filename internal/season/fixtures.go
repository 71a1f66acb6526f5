// Package season drives the league calendar: the minute-cadence scheduler,
// daily fixture slates, standings rebuilds, player progression and the
// offseason aging sweep.
package season

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/clock"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
	"github.com/jimmy058910/replitballgame-sub015/pkg/config"
)

// RoundRobinPairs returns one rotation round of league ties for the team
// list, circle method: the first seat is pinned, every other seat rotates
// one step per round. Odd-sized lists carry a hidden bye seat, so one team
// rests. Home advantage alternates with the rotation.
func RoundRobinPairs(teamIDs []uint, round int) [][2]uint {
	ids := append([]uint(nil), teamIDs...)
	if len(ids) < 2 {
		return nil
	}
	if len(ids)%2 == 1 {
		ids = append(ids, 0)
	}
	n := len(ids)
	r := round % (n - 1)
	if r < 0 {
		r += n - 1
	}

	rot := make([]uint, n-1)
	for i := 0; i < n-1; i++ {
		rot[(i+r)%(n-1)] = ids[i+1]
	}

	pairs := make([][2]uint, 0, n/2)
	add := func(a, b uint, flip bool) {
		if a == 0 || b == 0 {
			return
		}
		if flip {
			a, b = b, a
		}
		pairs = append(pairs, [2]uint{a, b})
	}
	add(ids[0], rot[0], r%2 == 1)
	for i := 1; i < n/2; i++ {
		add(rot[i], rot[n-1-i], (r+i)%2 == 1)
	}
	return pairs
}

// GenerateDailyFixtures schedules the day's league slate: one rotation
// round per subdivision, kicking off at the configured evening hour of the
// effective date. Subdivisions that already have league games for the day
// are left alone, so the generator can be retried safely.
func GenerateDailyFixtures(ctx context.Context, st *store.Store, cfg *config.Config, log *logrus.Logger, seasonID uint, gameDay int, effectiveDate time.Time) (int, error) {
	keys, err := st.Teams().ListSubdivisions(ctx)
	if err != nil {
		return 0, err
	}

	loc := clock.Location()
	local := effectiveDate.In(loc)
	kickoff := time.Date(local.Year(), local.Month(), local.Day(), cfg.LeagueMatchHour, 0, 0, 0, loc).UTC()

	created := 0
	var firstErr error
	for _, key := range keys {
		n, err := generateSubdivisionFixtures(ctx, st, seasonID, gameDay, kickoff, key)
		created += n
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"division":    key.Division,
				"subdivision": key.Subdivision,
			}).Error("League fixture generation failed for subdivision")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return created, firstErr
}

func generateSubdivisionFixtures(ctx context.Context, st *store.Store, seasonID uint, gameDay int, kickoff time.Time, key store.SubdivisionKey) (int, error) {
	teams, err := st.Teams().ListByDivision(ctx, key.Division, key.Subdivision)
	if err != nil {
		return 0, err
	}
	if len(teams) < 2 {
		return 0, nil
	}
	ids := make([]uint, len(teams))
	for i := range teams {
		ids[i] = teams[i].ID
	}

	exists, err := st.Games().ExistsLeagueForDay(ctx, seasonID, gameDay, ids)
	if err != nil || exists {
		return 0, err
	}

	sid := seasonID
	pairs := RoundRobinPairs(ids, gameDay-1)
	games := make([]*models.Game, 0, len(pairs))
	for _, p := range pairs {
		games = append(games, &models.Game{
			HomeTeamID: p[0],
			AwayTeamID: p[1],
			MatchType:  models.MatchTypeLeague,
			Status:     models.GameStatusScheduled,
			GameDate:   kickoff,
			SeasonID:   &sid,
			GameDay:    gameDay,
		})
	}
	if err := st.Games().CreateBatch(ctx, games); err != nil {
		return 0, err
	}
	return len(games), nil
}

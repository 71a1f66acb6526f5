package season

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/internal/store"
)

// RebuildStandings replays every completed league game of the season into
// fresh win/loss/draw counters and overwrites team rows that drifted from
// the replay. One transaction per subdivision; a failing subdivision does
// not stop the others. Returns the number of corrected rows.
func RebuildStandings(ctx context.Context, st *store.Store, log *logrus.Logger, seasonID uint) (int, error) {
	keys, err := st.Teams().ListSubdivisions(ctx)
	if err != nil {
		return 0, err
	}

	corrected := 0
	var firstErr error
	for _, key := range keys {
		n, err := rebuildSubdivision(ctx, st, log, seasonID, key)
		corrected += n
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"division":    key.Division,
				"subdivision": key.Subdivision,
			}).Error("Standings rebuild failed for subdivision")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return corrected, firstErr
}

func rebuildSubdivision(ctx context.Context, st *store.Store, log *logrus.Logger, seasonID uint, key store.SubdivisionKey) (int, error) {
	corrected := 0
	err := st.WithTx(ctx, func(tx *store.Store) error {
		teams, err := tx.Teams().ListByDivision(ctx, key.Division, key.Subdivision)
		if err != nil {
			return err
		}
		if len(teams) == 0 {
			return nil
		}
		ids := make([]uint, len(teams))
		want := make(map[uint]models.TeamRecord, len(teams))
		for i := range teams {
			ids[i] = teams[i].ID
			want[teams[i].ID] = models.TeamRecord{}
		}

		games, err := tx.Games().ListCompletedLeagueForTeams(ctx, seasonID, ids)
		if err != nil {
			return err
		}
		for i := range games {
			g := &games[i]
			if rec, ok := want[g.HomeTeamID]; ok {
				want[g.HomeTeamID] = rec.WithResult(g.HomeScore, g.AwayScore)
			}
			if rec, ok := want[g.AwayTeamID]; ok {
				want[g.AwayTeamID] = rec.WithResult(g.AwayScore, g.HomeScore)
			}
		}

		for i := range teams {
			team := &teams[i]
			replayed := want[team.ID]
			if team.Record() == replayed {
				continue
			}
			log.WithFields(logrus.Fields{
				"team_id":     team.ID,
				"team":        team.Name,
				"stored":      team.Record(),
				"replayed":    replayed,
				"division":    key.Division,
				"subdivision": key.Subdivision,
			}).Warn("Standings drift corrected from game replay")
			if err := tx.Teams().SetRecord(ctx, team.ID, replayed); err != nil {
				return err
			}
			corrected++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return corrected, nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
)

type GameRepo struct {
	s *Store
}

func (r *GameRepo) Get(ctx context.Context, id uint) (*models.Game, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var game models.Game
	if err := r.s.db.WithContext(ctx).First(&game, id).Error; err != nil {
		return nil, Classify(err)
	}
	return &game, nil
}

// GetWithTeams loads a game with both team rows attached.
func (r *GameRepo) GetWithTeams(ctx context.Context, id uint) (*models.Game, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var game models.Game
	err := r.s.db.WithContext(ctx).
		Preload("HomeTeam").
		Preload("AwayTeam").
		First(&game, id).Error
	if err != nil {
		return nil, Classify(err)
	}
	return &game, nil
}

func (r *GameRepo) Create(ctx context.Context, game *models.Game) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Create(game).Error)
}

func (r *GameRepo) CreateBatch(ctx context.Context, games []*models.Game) error {
	if len(games) == 0 {
		return nil
	}
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Create(&games).Error)
}

// CASStatus moves a game between lifecycle states only when the stored
// status still matches from. This is what keeps completions idempotent: the
// second writer gets ErrConflict instead of resurrecting a finished game.
func (r *GameRepo) CASStatus(ctx context.Context, id uint, from, to string) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	res := r.s.db.WithContext(ctx).Model(&models.Game{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: game %d not in status %s", ErrConflict, id, from)
	}
	return nil
}

// FinalizeScore completes an in-progress game with its final score in one
// guarded statement.
func (r *GameRepo) FinalizeScore(ctx context.Context, id uint, home, away, gameTime int, recovered bool) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	res := r.s.db.WithContext(ctx).Model(&models.Game{}).
		Where("id = ? AND status = ?", id, models.GameStatusInProgress).
		Updates(map[string]interface{}{
			"status":     models.GameStatusCompleted,
			"home_score": home,
			"away_score": away,
			"game_time":  gameTime,
			"recovered":  recovered,
		})
	if res.Error != nil {
		return Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: game %d not in progress", ErrConflict, id)
	}
	return nil
}

// SaveCheckpoint persists the simulator resume blob. Checkpoints only ever
// move forward; a stale worker writing an older tick loses the guard.
func (r *GameRepo) SaveCheckpoint(ctx context.Context, id uint, tick, home, away int, blob []byte) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	res := r.s.db.WithContext(ctx).Model(&models.Game{}).
		Where("id = ? AND status = ? AND checkpoint_tick < ?", id, models.GameStatusInProgress, tick).
		Updates(map[string]interface{}{
			"checkpoint":      datatypes.JSON(blob),
			"checkpoint_tick": tick,
			"home_score":      home,
			"away_score":      away,
			"game_time":       tick,
		})
	if res.Error != nil {
		return Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: game %d checkpoint at tick %d rejected", ErrConflict, id, tick)
	}
	return nil
}

// ListDueScheduled returns games whose start time has arrived.
func (r *GameRepo) ListDueScheduled(ctx context.Context, now time.Time) ([]models.Game, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var games []models.Game
	err := r.s.db.WithContext(ctx).
		Where("status = ? AND game_date <= ?", models.GameStatusScheduled, now).
		Order("game_date ASC, id ASC").
		Find(&games).Error
	if err != nil {
		return nil, Classify(err)
	}
	return games, nil
}

// ListInProgress returns every game currently marked running.
func (r *GameRepo) ListInProgress(ctx context.Context) ([]models.Game, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var games []models.Game
	err := r.s.db.WithContext(ctx).
		Where("status = ?", models.GameStatusInProgress).
		Order("id ASC").
		Find(&games).Error
	if err != nil {
		return nil, Classify(err)
	}
	return games, nil
}

// ListCompletedLeagueForTeams returns the finished league games between the
// given teams for one season. The standings rebuild replays these.
func (r *GameRepo) ListCompletedLeagueForTeams(ctx context.Context, seasonID uint, teamIDs []uint) ([]models.Game, error) {
	if len(teamIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var games []models.Game
	err := r.s.db.WithContext(ctx).
		Where("season_id = ? AND match_type = ? AND status = ?",
			seasonID, models.MatchTypeLeague, models.GameStatusCompleted).
		Where("home_team_id IN ? AND away_team_id IN ?", teamIDs, teamIDs).
		Order("id ASC").
		Find(&games).Error
	if err != nil {
		return nil, Classify(err)
	}
	return games, nil
}

// ListByTournament returns a tournament's games ordered by round then id.
func (r *GameRepo) ListByTournament(ctx context.Context, tournamentID uint) ([]models.Game, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var games []models.Game
	err := r.s.db.WithContext(ctx).
		Where("tournament_id = ?", tournamentID).
		Order("tournament_round ASC, id ASC").
		Find(&games).Error
	if err != nil {
		return nil, Classify(err)
	}
	return games, nil
}

// ListByTournamentRound returns one round of a tournament bracket.
func (r *GameRepo) ListByTournamentRound(ctx context.Context, tournamentID uint, round int) ([]models.Game, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var games []models.Game
	err := r.s.db.WithContext(ctx).
		Where("tournament_id = ? AND tournament_round = ?", tournamentID, round).
		Order("id ASC").
		Find(&games).Error
	if err != nil {
		return nil, Classify(err)
	}
	return games, nil
}

// ExistsLeagueForDay reports whether a subdivision already has league games
// scheduled for the given season day.
func (r *GameRepo) ExistsLeagueForDay(ctx context.Context, seasonID uint, gameDay int, teamIDs []uint) (bool, error) {
	if len(teamIDs) == 0 {
		return false, nil
	}
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var count int64
	err := r.s.db.WithContext(ctx).Model(&models.Game{}).
		Where("season_id = ? AND game_day = ? AND match_type = ? AND home_team_id IN ?",
			seasonID, gameDay, models.MatchTypeLeague, teamIDs).
		Count(&count).Error
	if err != nil {
		return false, Classify(err)
	}
	return count > 0, nil
}

// SetWinner records which team advances from a tournament game. Written at
// most once; later writes are ignored so a replayed bracket walk cannot
// flip a decided tie-break.
func (r *GameRepo) SetWinner(ctx context.Context, id uint, teamID uint) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Model(&models.Game{}).
		Where("id = ? AND winner_team_id IS NULL", id).
		Update("winner_team_id", teamID).Error)
}

// ClearCheckpoint drops the resume blob once a game is finished.
func (r *GameRepo) ClearCheckpoint(ctx context.Context, id uint) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Model(&models.Game{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"checkpoint": gorm.Expr("NULL"),
		}).Error)
}

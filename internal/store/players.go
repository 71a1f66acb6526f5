package store

import (
	"context"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
)

type PlayerRepo struct {
	s *Store
}

func (r *PlayerRepo) Get(ctx context.Context, id uint) (*models.Player, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var player models.Player
	if err := r.s.db.WithContext(ctx).First(&player, id).Error; err != nil {
		return nil, Classify(err)
	}
	return &player, nil
}

func (r *PlayerRepo) Create(ctx context.Context, player *models.Player) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Create(player).Error)
}

func (r *PlayerRepo) Save(ctx context.Context, player *models.Player) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Save(player).Error)
}

// ListActiveByTeam returns a team's non-retired roster, strongest first so
// the simulator fields the front of the slice.
func (r *PlayerRepo) ListActiveByTeam(ctx context.Context, teamID uint) ([]models.Player, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var players []models.Player
	err := r.s.db.WithContext(ctx).
		Where("team_id = ? AND is_retired = ?", teamID, false).
		Order("(speed + power + agility + throwing + catching + kicking + stamina + leadership) DESC, id ASC").
		Find(&players).Error
	if err != nil {
		return nil, Classify(err)
	}
	return players, nil
}

// ListActive returns every non-retired player. The daily progression and
// offseason aging sweeps walk this set.
func (r *PlayerRepo) ListActive(ctx context.Context) ([]models.Player, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var players []models.Player
	err := r.s.db.WithContext(ctx).
		Where("is_retired = ?", false).
		Order("id ASC").
		Find(&players).Error
	if err != nil {
		return nil, Classify(err)
	}
	return players, nil
}

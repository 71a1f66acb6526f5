package store

import (
	"context"
	"fmt"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
)

type SeasonRepo struct {
	s *Store
}

// Active returns the single active season.
func (r *SeasonRepo) Active(ctx context.Context) (*models.Season, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var season models.Season
	if err := r.s.db.WithContext(ctx).Where("is_active = ?", true).First(&season).Error; err != nil {
		return nil, Classify(err)
	}
	return &season, nil
}

func (r *SeasonRepo) Get(ctx context.Context, id uint) (*models.Season, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var season models.Season
	if err := r.s.db.WithContext(ctx).First(&season, id).Error; err != nil {
		return nil, Classify(err)
	}
	return &season, nil
}

func (r *SeasonRepo) Create(ctx context.Context, season *models.Season) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Create(season).Error)
}

// CASDay advances the season day and phase only if the stored day still
// matches fromDay. A lost race returns ErrConflict and means another
// scheduler instance already rolled the day over.
func (r *SeasonRepo) CASDay(ctx context.Context, id uint, fromDay, toDay int, phase string) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	res := r.s.db.WithContext(ctx).Model(&models.Season{}).
		Where("id = ? AND current_day = ?", id, fromDay).
		Updates(map[string]interface{}{
			"current_day": toDay,
			"phase":       phase,
		})
	if res.Error != nil {
		return Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: season %d day already advanced past %d", ErrConflict, id, fromDay)
	}
	return nil
}

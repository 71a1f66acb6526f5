package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
)

type MarkerRepo struct {
	s *Store
}

// Claim records that a daily step ran for the given effective date. The
// unique (step, marker_date) index makes the insert race-safe: the claim
// that loses inserts nothing and returns false, and the step is skipped.
func (r *MarkerRepo) Claim(ctx context.Context, step, markerDate string, seasonID uint) (bool, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	marker := models.StepMarker{
		Step:       step,
		MarkerDate: markerDate,
		SeasonID:   seasonID,
	}
	res := r.s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&marker)
	if res.Error != nil {
		return false, Classify(res.Error)
	}
	return res.RowsAffected > 0, nil
}

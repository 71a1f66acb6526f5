package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
)

type TeamRepo struct {
	s *Store
}

func (r *TeamRepo) Get(ctx context.Context, id uint) (*models.Team, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var team models.Team
	if err := r.s.db.WithContext(ctx).First(&team, id).Error; err != nil {
		return nil, Classify(err)
	}
	return &team, nil
}

func (r *TeamRepo) Create(ctx context.Context, team *models.Team) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Create(team).Error)
}

func (r *TeamRepo) Save(ctx context.Context, team *models.Team) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Save(team).Error)
}

// CASRecord replaces a team's standings counters only when the stored record
// still equals expected. Losing the race returns ErrConflict; callers re-read
// and retry under store.RetryConflict.
func (r *TeamRepo) CASRecord(ctx context.Context, id uint, expected, next models.TeamRecord) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	res := r.s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ? AND wins = ? AND losses = ? AND draws = ? AND points = ?",
			id, expected.Wins, expected.Losses, expected.Draws, expected.Points).
		Updates(map[string]interface{}{
			"wins":          next.Wins,
			"losses":        next.Losses,
			"draws":         next.Draws,
			"points":        next.Points,
			"goals_for":     next.GoalsFor,
			"goals_against": next.GoalsAgainst,
		})
	if res.Error != nil {
		return Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: team %d record changed underneath update", ErrConflict, id)
	}
	return nil
}

// SetRecord overwrites the standings counters unconditionally. Only the
// standings rebuild uses it, inside its per-subdivision transaction.
func (r *TeamRepo) SetRecord(ctx context.Context, id uint, rec models.TeamRecord) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"wins":          rec.Wins,
			"losses":        rec.Losses,
			"draws":         rec.Draws,
			"points":        rec.Points,
			"goals_for":     rec.GoalsFor,
			"goals_against": rec.GoalsAgainst,
		}).Error)
}

// ChargeEntryFee debits credits and gems in one guarded statement. Zero rows
// means the balance moved below the fee since eligibility was checked.
func (r *TeamRepo) ChargeEntryFee(ctx context.Context, id uint, credits int64, gems int) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	res := r.s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ? AND credits >= ? AND gems >= ?", id, credits, gems).
		Updates(map[string]interface{}{
			"credits": gorm.Expr("credits - ?", credits),
			"gems":    gorm.Expr("gems - ?", gems),
		})
	if res.Error != nil {
		return Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: team %d balance below entry fee", ErrConflict, id)
	}
	return nil
}

// RefundEntryFee returns a captured fee, used when a tournament is cancelled.
func (r *TeamRepo) RefundEntryFee(ctx context.Context, id uint, credits int64, gems int) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	res := r.s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"credits": gorm.Expr("credits + ?", credits),
			"gems":    gorm.Expr("gems + ?", gems),
		})
	if res.Error != nil {
		return Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: team %d", ErrNotFound, id)
	}
	return nil
}

func (r *TeamRepo) AddCredits(ctx context.Context, id uint, credits int64) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	res := r.s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ?", id).
		Update("credits", gorm.Expr("credits + ?", credits))
	if res.Error != nil {
		return Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: team %d", ErrNotFound, id)
	}
	return nil
}

// ListByDivision returns all teams of one division/subdivision.
func (r *TeamRepo) ListByDivision(ctx context.Context, division int, subdivision string) ([]models.Team, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var teams []models.Team
	err := r.s.db.WithContext(ctx).
		Where("division = ? AND subdivision = ?", division, subdivision).
		Order("id ASC").
		Find(&teams).Error
	if err != nil {
		return nil, Classify(err)
	}
	return teams, nil
}

// Standings returns a division/subdivision ordered by points desc, goal
// difference desc, wins desc, losses asc, name asc.
func (r *TeamRepo) Standings(ctx context.Context, division int, subdivision string) ([]models.Team, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var teams []models.Team
	err := r.s.db.WithContext(ctx).
		Where("division = ? AND subdivision = ?", division, subdivision).
		Order("points DESC, (goals_for - goals_against) DESC, wins DESC, losses ASC, name ASC").
		Find(&teams).Error
	if err != nil {
		return nil, Classify(err)
	}
	return teams, nil
}

// ListAIFillPool returns AI-controlled teams that are not already entered
// into the given tournament. A nil division draws from every division, which
// is what the cross-division classic needs.
func (r *TeamRepo) ListAIFillPool(ctx context.Context, division *int, tournamentID uint, limit int) ([]models.Team, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var teams []models.Team
	q := r.s.db.WithContext(ctx).
		Where("is_ai = ?", true).
		Where("id NOT IN (?)", r.s.db.Model(&models.TournamentEntry{}).
			Select("team_id").Where("tournament_id = ?", tournamentID)).
		Order("id ASC").
		Limit(limit)
	if division != nil {
		q = q.Where("division = ?", *division)
	}
	if err := q.Find(&teams).Error; err != nil {
		return nil, Classify(err)
	}
	return teams, nil
}

// SubdivisionKey identifies one standings table.
type SubdivisionKey struct {
	Division    int    `json:"division"`
	Subdivision string `json:"subdivision"`
}

// ListSubdivisions returns every distinct division/subdivision pair.
func (r *TeamRepo) ListSubdivisions(ctx context.Context) ([]SubdivisionKey, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var keys []SubdivisionKey
	err := r.s.db.WithContext(ctx).Model(&models.Team{}).
		Distinct("division", "subdivision").
		Order("division ASC, subdivision ASC").
		Find(&keys).Error
	if err != nil {
		return nil, Classify(err)
	}
	return keys, nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
)

type TournamentRepo struct {
	s *Store
}

func (r *TournamentRepo) Get(ctx context.Context, id uint) (*models.Tournament, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var t models.Tournament
	if err := r.s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, Classify(err)
	}
	return &t, nil
}

// GetWithEntries loads a tournament with entries and their teams.
func (r *TournamentRepo) GetWithEntries(ctx context.Context, id uint) (*models.Tournament, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var t models.Tournament
	err := r.s.db.WithContext(ctx).
		Preload("Entries").
		Preload("Entries.Team").
		First(&t, id).Error
	if err != nil {
		return nil, Classify(err)
	}
	return &t, nil
}

func (r *TournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Create(t).Error)
}

// ExistsForDay reports whether a tournament of the given type (and division,
// when set) was already created for the season day. Creation steps are also
// marker-guarded; this is the cheap existence probe behind them.
func (r *TournamentRepo) ExistsForDay(ctx context.Context, seasonID uint, tournamentType string, division *int, gameDay int) (bool, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	q := r.s.db.WithContext(ctx).Model(&models.Tournament{}).
		Where("season_id = ? AND type = ? AND game_day = ?", seasonID, tournamentType, gameDay)
	if division != nil {
		q = q.Where("division = ?", *division)
	} else {
		q = q.Where("division IS NULL")
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, Classify(err)
	}
	return count > 0, nil
}

// CASStatus moves a tournament between lifecycle states with a guard on the
// previous state.
func (r *TournamentRepo) CASStatus(ctx context.Context, id uint, from, to string) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	res := r.s.db.WithContext(ctx).Model(&models.Tournament{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: tournament %d not in status %s", ErrConflict, id, from)
	}
	return nil
}

func (r *TournamentRepo) SetCurrentRound(ctx context.Context, id uint, round int) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Model(&models.Tournament{}).
		Where("id = ?", id).
		Update("current_round", round).Error)
}

// SetPrizeBreakdown records the payout audit blob at completion.
func (r *TournamentRepo) SetPrizeBreakdown(ctx context.Context, id uint, blob []byte) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Model(&models.Tournament{}).
		Where("id = ?", id).
		Update("prize_breakdown", datatypes.JSON(blob)).Error)
}

// ListOpenPastDeadline returns tournaments whose registration closed but
// which have not been started or cancelled yet.
func (r *TournamentRepo) ListOpenPastDeadline(ctx context.Context, now time.Time) ([]models.Tournament, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var ts []models.Tournament
	err := r.s.db.WithContext(ctx).
		Where("status = ? AND registration_deadline <= ?", models.TournamentStatusRegistrationOpen, now).
		Order("registration_deadline ASC, id ASC").
		Find(&ts).Error
	if err != nil {
		return nil, Classify(err)
	}
	return ts, nil
}

// CreateEntry inserts a registration. A second entry for the same team hits
// the unique index and surfaces as ErrConflict.
func (r *TournamentRepo) CreateEntry(ctx context.Context, entry *models.TournamentEntry) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Create(entry).Error)
}

func (r *TournamentRepo) CountEntries(ctx context.Context, tournamentID uint) (int, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var count int64
	err := r.s.db.WithContext(ctx).Model(&models.TournamentEntry{}).
		Where("tournament_id = ?", tournamentID).
		Count(&count).Error
	if err != nil {
		return 0, Classify(err)
	}
	return int(count), nil
}

func (r *TournamentRepo) HasEntry(ctx context.Context, tournamentID, teamID uint) (bool, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var count int64
	err := r.s.db.WithContext(ctx).Model(&models.TournamentEntry{}).
		Where("tournament_id = ? AND team_id = ?", tournamentID, teamID).
		Count(&count).Error
	if err != nil {
		return false, Classify(err)
	}
	return count > 0, nil
}

// ListEntries returns a tournament's entries with team rows, seed order
// first when seeds are assigned.
func (r *TournamentRepo) ListEntries(ctx context.Context, tournamentID uint) ([]models.TournamentEntry, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var entries []models.TournamentEntry
	err := r.s.db.WithContext(ctx).
		Preload("Team").
		Where("tournament_id = ?", tournamentID).
		Order("seed ASC NULLS LAST, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, Classify(err)
	}
	return entries, nil
}

func (r *TournamentRepo) SaveEntry(ctx context.Context, entry *models.TournamentEntry) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Save(entry).Error)
}

// SetEntryResult writes the final rank and prize for one entry.
func (r *TournamentRepo) SetEntryResult(ctx context.Context, entryID uint, rank int, prize int64) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	return Classify(r.s.db.WithContext(ctx).Model(&models.TournamentEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{
			"final_rank":    rank,
			"prize_credits": prize,
		}).Error)
}

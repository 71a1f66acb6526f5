// Package tournament owns registration, bracket generation, advancement and
// payout for the two cup competitions. Brackets are never held in memory:
// every advancement walks the persisted seeds and games, so a restarted
// process reaches the same conclusions.
package tournament

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/jimmy058910/replitballgame-sub015/internal/clock"
	"github.com/jimmy058910/replitballgame-sub015/internal/models"
	"github.com/jimmy058910/replitballgame-sub015/pkg/config"
)

// Prize money scaling. Daily cup pools grow toward division 1; the classic
// pool is flat because every division shares one field.
const (
	dailyCupPrizePerLevel = 5000
	classicPrizePool      = 600000
	classicFeeCredits     = 10000
	classicFeeGems        = 20
)

// Params captures the per-type tournament shape the creation steps persist.
type Params struct {
	Name                 string
	Type                 string
	Division             *int
	MaxParticipants      int
	EntryFeeCredits      int64
	EntryFeeGems         int
	RequiresEntryItem    bool
	PrizePoolCredits     int64
	RegistrationDeadline time.Time
	StartTime            time.Time
}

// DailyCupParams resolves one division's cup for the effective local date.
// Free to enter but costs one entry item; the pool scales with division
// strength.
func DailyCupParams(cfg *config.Config, division int, effectiveDate time.Time) Params {
	d := division
	return Params{
		Name:                 fmt.Sprintf("Division %d Daily Cup", division),
		Type:                 models.TournamentTypeDailyCup,
		Division:             &d,
		MaxParticipants:      cfg.DailyCupSize,
		RequiresEntryItem:    true,
		PrizePoolCredits:     int64(dailyCupPrizePerLevel * (9 - division)),
		RegistrationDeadline: atLocalHour(effectiveDate, cfg.DailyCupDeadlineHour),
		StartTime:            atLocalHour(effectiveDate, cfg.DailyCupStartHour),
	}
}

// ClassicParams resolves the mid-season classic: one cross-division field
// with a cash-and-gems entry fee and no item requirement.
func ClassicParams(cfg *config.Config, effectiveDate time.Time) Params {
	return Params{
		Name:                 "Mid-Season Classic",
		Type:                 models.TournamentTypeMidSeasonClassic,
		MaxParticipants:      cfg.MidSeasonCupSize,
		EntryFeeCredits:      classicFeeCredits,
		EntryFeeGems:         classicFeeGems,
		PrizePoolCredits:     classicPrizePool,
		RegistrationDeadline: atLocalHour(effectiveDate, cfg.DailyCupDeadlineHour),
		StartTime:            atLocalHour(effectiveDate, cfg.DailyCupStartHour),
	}
}

// Model builds the persistable row from the resolved parameters.
func (p Params) Model(seasonID uint, gameDay int) *models.Tournament {
	return &models.Tournament{
		Name:                 p.Name,
		Type:                 p.Type,
		Division:             p.Division,
		Status:               models.TournamentStatusRegistrationOpen,
		MaxParticipants:      p.MaxParticipants,
		EntryFeeCredits:      p.EntryFeeCredits,
		EntryFeeGems:         p.EntryFeeGems,
		RequiresEntryItem:    p.RequiresEntryItem,
		PrizePoolCredits:     p.PrizePoolCredits,
		RegistrationDeadline: p.RegistrationDeadline.UTC(),
		StartTime:            p.StartTime.UTC(),
		SeasonID:             seasonID,
		GameDay:              gameDay,
	}
}

// Rounds is the single-elimination round count for a field size.
func Rounds(size int) int {
	if size < 2 {
		return 0
	}
	return bits.Len(uint(size - 1))
}

// atLocalHour pins a wall-clock hour of the effective game date in the
// league's time zone.
func atLocalHour(effectiveDate time.Time, hour int) time.Time {
	loc := clock.Location()
	local := effectiveDate.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
}

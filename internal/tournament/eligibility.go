package tournament

import (
	"fmt"
	"time"

	"github.com/jimmy058910/replitballgame-sub015/internal/models"
)

// Machine-readable rejection reasons. The API layer maps these onto HTTP
// status codes, so the strings are part of the external contract.
const (
	ReasonWrongDivision       = "WRONG_DIVISION"
	ReasonInsufficientCredits = "INSUFFICIENT_CREDITS"
	ReasonInsufficientGems    = "INSUFFICIENT_GEMS"
	ReasonRegistrationClosed  = "REGISTRATION_CLOSED"
	ReasonAlreadyEntered      = "ALREADY_ENTERED"
	ReasonMissingEntryItem    = "MISSING_ENTRY_ITEM"
	ReasonTournamentFull      = "TOURNAMENT_FULL"
)

// NotEligibleError is the typed rejection for a registration attempt. It is
// a value, not a panic: callers branch on Reason.
type NotEligibleError struct {
	Reason  string
	Message string
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("not eligible: %s (%s)", e.Reason, e.Message)
}

func notEligible(reason, format string, args ...interface{}) *NotEligibleError {
	return &NotEligibleError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// EntryContext gathers the facts the eligibility check reads. The caller
// loads them; the check itself touches nothing.
type EntryContext struct {
	Team       *models.Team
	Tournament *models.Tournament
	Now        time.Time
	AlreadyIn  bool
	EntryCount int
	EntryItems int
}

// CheckEligibility returns nil when the team may enter, or the first
// violated rule. Pure by contract: the transaction that captures fees and
// the entry recheck the racy parts with guarded writes.
func CheckEligibility(ec EntryContext) *NotEligibleError {
	t := ec.Tournament
	team := ec.Team

	if t.Division != nil && team.Division != *t.Division {
		return notEligible(ReasonWrongDivision, "team is in division %d, cup is for division %d", team.Division, *t.Division)
	}
	if team.Credits < t.EntryFeeCredits {
		return notEligible(ReasonInsufficientCredits, "need %d credits, have %d", t.EntryFeeCredits, team.Credits)
	}
	if team.Gems < t.EntryFeeGems {
		return notEligible(ReasonInsufficientGems, "need %d gems, have %d", t.EntryFeeGems, team.Gems)
	}
	if !t.RegistrationOpen(ec.Now) {
		return notEligible(ReasonRegistrationClosed, "registration closed at %s", t.RegistrationDeadline.UTC().Format(time.RFC3339))
	}
	if ec.AlreadyIn {
		return notEligible(ReasonAlreadyEntered, "team %d is already registered", team.ID)
	}
	if t.RequiresEntryItem && ec.EntryItems < 1 {
		return notEligible(ReasonMissingEntryItem, "requires one tournament entry item")
	}
	if ec.EntryCount >= t.MaxParticipants {
		return notEligible(ReasonTournamentFull, "field of %d is full", t.MaxParticipants)
	}
	return nil
}

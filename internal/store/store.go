// Package store is the persistence gateway. Every scheduler, simulator and
// API write goes through it: single-statement operations carry their own
// timeout, multi-entity writes run under WithTx, and contended updates use
// compare-and-set so concurrent completions never double-apply.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CASAttempts bounds compare-and-set retry loops.
const CASAttempts = 3

type Store struct {
	db        *gorm.DB
	log       *logrus.Logger
	opTimeout time.Duration
}

func New(db *gorm.DB, log *logrus.Logger, opTimeout time.Duration) *Store {
	return &Store{db: db, log: log, opTimeout: opTimeout}
}

// WithTx runs fn inside one transaction. The Store handed to fn routes all
// repo calls through that transaction; the per-operation timeout is
// suspended because the caller's context already bounds the whole unit.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(txdb *gorm.DB) error {
		return fn(&Store{db: txdb, log: s.log})
	})
	return Classify(err)
}

// opCtx bounds a single statement. Inside WithTx s.opTimeout is zero and the
// parent context is used as-is.
func (s *Store) opCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, s.opTimeout)
}

// RetryTransient re-runs fn on transient failures with exponential backoff.
func RetryTransient(ctx context.Context, log *logrus.Entry, attempts int, fn func() error) error {
	backoff := 100 * time.Millisecond
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Transient store failure, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// RetryConflict re-runs fn while it loses a compare-and-set race. fn must
// re-read its expected state on every attempt.
func RetryConflict(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= CASAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return err
}

// Seasons gives access to season rows.
func (s *Store) Seasons() *SeasonRepo { return &SeasonRepo{s} }

// Teams gives access to team rows.
func (s *Store) Teams() *TeamRepo { return &TeamRepo{s} }

// Players gives access to player rows.
func (s *Store) Players() *PlayerRepo { return &PlayerRepo{s} }

// Games gives access to game rows.
func (s *Store) Games() *GameRepo { return &GameRepo{s} }

// Tournaments gives access to tournament and entry rows.
func (s *Store) Tournaments() *TournamentRepo { return &TournamentRepo{s} }

// Inventory gives access to team inventory rows.
func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{s} }

// Markers gives access to scheduler step markers.
func (s *Store) Markers() *MarkerRepo { return &MarkerRepo{s} }

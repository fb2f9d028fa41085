package pinboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrNotFound indicates the pinboard does not exist or is not owned by
	// the requesting account.
	ErrNotFound = errors.New("pinboard: not found")
	// ErrSlugTaken indicates the requested slug is already assigned.
	ErrSlugTaken = errors.New("pinboard: slug already taken")
	// ErrNotRemoved indicates a restore was requested for a pinboard that is
	// not in the removed state.
	ErrNotRemoved = errors.New("pinboard: not removed")
	// ErrRestoreWindowClosed indicates the restore deadline has passed.
	ErrRestoreWindowClosed = errors.New("pinboard: restore window closed")
)

// ServiceError wraps a pinboard operation failure with a dotted code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "pinboard.service.new"
	opCreate        = "pinboard.create"
	opBootstrap     = "pinboard.bootstrap"
	opGet           = "pinboard.get"
	opList          = "pinboard.list"
	opRemove        = "pinboard.remove"
	opRestore       = "pinboard.restore"
	opSuspend       = "pinboard.suspend"
	opUnsuspend     = "pinboard.unsuspend"
	opSetExempt     = "pinboard.set_exempt"
	opApplySnapshot = "pinboard.apply_snapshot"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

const defaultTrialPeriod = 14 * 24 * time.Hour

// far-future deadline assigned by administrative bootstrap
const bootstrapPaidPeriod = 100 * 365 * 24 * time.Hour

// IDProvider issues identifiers for new pinboard rows.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig bundles the dependencies of the pinboard service.
type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDProvider  IDProvider
	Logger      *zap.Logger
	TrialPeriod time.Duration
}

// Service owns pinboard lifecycle transitions and lookups.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  IDProvider
	logger      *zap.Logger
	trialPeriod time.Duration
}

// NewService constructs the pinboard service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	trialPeriod := cfg.TrialPeriod
	if trialPeriod <= 0 {
		trialPeriod = defaultTrialPeriod
	}

	return &Service{
		db:          cfg.Database,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		logger:      logger,
		trialPeriod: trialPeriod,
	}, nil
}

// CreateParams describes a pinboard created from a completed checkout.
type CreateParams struct {
	Owner    OwnerID
	Slug     Slug
	Title    string
	Snapshot SubscriptionSnapshot
}

// Create provisions a pinboard after checkout completion. The subscription
// snapshot from the checkout event decides whether the board starts in trial
// or active; absent a snapshot the board starts a fresh trial.
func (s *Service) Create(ctx context.Context, params CreateParams) (Pinboard, error) {
	title := params.Title
	if title == "" {
		return Pinboard{}, newServiceError(opCreate, "missing_title", ErrInvalidTitle)
	}

	now := s.clock().UTC()
	pinboardID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Pinboard{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	board := Pinboard{
		PinboardID: pinboardID,
		OwnerID:    params.Owner.String(),
		Slug:       params.Slug.String(),
		Title:      title,
		Status:     StatusTrial,
	}
	board, _ = resolveSnapshot(board, params.Snapshot)
	if board.Status == StatusTrial && board.TrialEndsAtSeconds == nil {
		board.TrialEndsAtSeconds = pointerTo(now.Add(s.trialPeriod).Unix())
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Pinboard
		err := tx.Where("slug = ?", board.Slug).Take(&existing).Error
		if err == nil {
			return newServiceError(opCreate, "slug_taken", ErrSlugTaken)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opCreate, "slug_select_failed", err)
		}
		if err := tx.Create(&board).Error; err != nil {
			return newServiceError(opCreate, "insert_failed", err)
		}
		return nil
	})
	if err != nil {
		s.logError(opCreate, "transaction_failed", err, zap.String("slug", board.Slug))
		return Pinboard{}, err
	}

	return board, nil
}

// Bootstrap provisions a pinboard administratively, without billing
// references and with a far-future paid period.
func (s *Service) Bootstrap(ctx context.Context, owner OwnerID, slug Slug, title string) (Pinboard, error) {
	if title == "" {
		return Pinboard{}, newServiceError(opBootstrap, "missing_title", ErrInvalidTitle)
	}

	now := s.clock().UTC()
	pinboardID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opBootstrap, "id_generation_failed", err)
		return Pinboard{}, newServiceError(opBootstrap, "id_generation_failed", err)
	}

	board := Pinboard{
		PinboardID:       pinboardID,
		OwnerID:          owner.String(),
		Slug:             slug.String(),
		Title:            title,
		Status:           StatusActive,
		PaidUntilSeconds: pointerTo(now.Add(bootstrapPaidPeriod).Unix()),
	}
	if err := s.db.WithContext(ctx).Create(&board).Error; err != nil {
		s.logError(opBootstrap, "insert_failed", err, zap.String("slug", board.Slug))
		return Pinboard{}, newServiceError(opBootstrap, "insert_failed", err)
	}
	return board, nil
}

// GetBySlug loads a pinboard by its public slug.
func (s *Service) GetBySlug(ctx context.Context, slug Slug) (Pinboard, error) {
	var board Pinboard
	err := s.db.WithContext(ctx).Where("slug = ?", slug.String()).Take(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Pinboard{}, newServiceError(opGet, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opGet, "select_failed", err, zap.String("slug", slug.String()))
		return Pinboard{}, newServiceError(opGet, "select_failed", err)
	}
	return board, nil
}

// GetOwned loads a pinboard by identifier, scoped to the owning account.
// A pinboard owned by someone else is reported as not found.
func (s *Service) GetOwned(ctx context.Context, owner OwnerID, pinboardID string) (Pinboard, error) {
	var board Pinboard
	err := s.db.WithContext(ctx).
		Where("pinboard_id = ? AND owner_id = ?", pinboardID, owner.String()).
		Take(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Pinboard{}, newServiceError(opGet, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opGet, "select_failed", err, zap.String("pinboard_id", pinboardID))
		return Pinboard{}, newServiceError(opGet, "select_failed", err)
	}
	return board, nil
}

// ListOwned returns the account's pinboards, newest first.
func (s *Service) ListOwned(ctx context.Context, owner OwnerID) ([]Pinboard, error) {
	var boards []Pinboard
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", owner.String()).
		Order("created_at DESC").
		Find(&boards).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.String("owner_id", owner.String()))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return boards, nil
}

// Remove soft-deletes a pinboard and opens its restore window. Removing a
// pinboard that is already removed leaves the original window untouched.
func (s *Service) Remove(ctx context.Context, owner OwnerID, pinboardID string) (Pinboard, error) {
	var board Pinboard
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.takeOwnedForUpdate(tx, owner, pinboardID, &board); err != nil {
			return newServiceError(opRemove, "not_found", err)
		}
		if board.Status == StatusRemoved {
			return nil
		}
		now := s.clock().UTC()
		board.Status = StatusRemoved
		board.RemovedAtSeconds = pointerTo(now.Unix())
		board.RestoreUntilSeconds = pointerTo(now.Add(RestoreWindow).Unix())
		if err := tx.Save(&board).Error; err != nil {
			return newServiceError(opRemove, "save_failed", err)
		}
		return nil
	})
	if err != nil {
		s.logError(opRemove, "transaction_failed", err, zap.String("pinboard_id", pinboardID))
		return Pinboard{}, err
	}
	return board, nil
}

// Restore brings a removed pinboard back before its restore deadline. The
// restored board always re-enters trial; prior billing state is not revived.
func (s *Service) Restore(ctx context.Context, owner OwnerID, pinboardID string) (Pinboard, error) {
	var board Pinboard
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.takeOwnedForUpdate(tx, owner, pinboardID, &board); err != nil {
			return newServiceError(opRestore, "not_found", err)
		}
		if board.Status != StatusRemoved {
			return newServiceError(opRestore, "not_removed", ErrNotRemoved)
		}
		now := s.clock().UTC()
		if board.RestoreUntilSeconds == nil || now.Unix() > *board.RestoreUntilSeconds {
			return newServiceError(opRestore, "window_closed", ErrRestoreWindowClosed)
		}
		board.Status = StatusTrial
		board.RemovedAtSeconds = nil
		board.RestoreUntilSeconds = nil
		if err := tx.Save(&board).Error; err != nil {
			return newServiceError(opRestore, "save_failed", err)
		}
		return nil
	})
	if err != nil {
		s.logError(opRestore, "transaction_failed", err, zap.String("pinboard_id", pinboardID))
		return Pinboard{}, err
	}
	return board, nil
}

// Suspend applies an operator lock. Suspended boards are not owner-restorable.
func (s *Service) Suspend(ctx context.Context, pinboardID string) (Pinboard, error) {
	return s.setStatus(ctx, opSuspend, pinboardID, StatusSuspended)
}

// Unsuspend lifts an operator lock; the board re-enters trial and expiry is
// again derived from its deadlines.
func (s *Service) Unsuspend(ctx context.Context, pinboardID string) (Pinboard, error) {
	return s.setStatus(ctx, opUnsuspend, pinboardID, StatusTrial)
}

// SetOwnerExempt toggles the billing exemption flag for a pinboard.
func (s *Service) SetOwnerExempt(ctx context.Context, pinboardID string, exempt bool) (Pinboard, error) {
	var board Pinboard
	err := s.db.WithContext(ctx).Where("pinboard_id = ?", pinboardID).Take(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Pinboard{}, newServiceError(opSetExempt, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opSetExempt, "select_failed", err, zap.String("pinboard_id", pinboardID))
		return Pinboard{}, newServiceError(opSetExempt, "select_failed", err)
	}
	board.OwnerExempt = exempt
	if err := s.db.WithContext(ctx).Save(&board).Error; err != nil {
		s.logError(opSetExempt, "save_failed", err, zap.String("pinboard_id", pinboardID))
		return Pinboard{}, newServiceError(opSetExempt, "save_failed", err)
	}
	return board, nil
}

// ApplySubscriptionSnapshot folds a webhook subscription snapshot into the
// pinboard addressed by slug. Duplicate or stale deliveries leave the row
// unchanged.
func (s *Service) ApplySubscriptionSnapshot(ctx context.Context, slug Slug, snapshot SubscriptionSnapshot) (Pinboard, error) {
	var board Pinboard
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("slug = ?", slug.String()).
			Take(&board).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opApplySnapshot, "not_found", ErrNotFound)
		}
		if err != nil {
			return newServiceError(opApplySnapshot, "select_failed", err)
		}

		updated, changed := resolveSnapshot(board, snapshot)
		if !changed {
			return nil
		}
		if err := tx.Save(&updated).Error; err != nil {
			return newServiceError(opApplySnapshot, "save_failed", err)
		}
		board = updated
		return nil
	})
	if err != nil {
		s.logError(opApplySnapshot, "transaction_failed", err, zap.String("slug", slug.String()))
		return Pinboard{}, err
	}
	return board, nil
}

func (s *Service) setStatus(ctx context.Context, operation, pinboardID string, status Status) (Pinboard, error) {
	var board Pinboard
	err := s.db.WithContext(ctx).Where("pinboard_id = ?", pinboardID).Take(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Pinboard{}, newServiceError(operation, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "select_failed", err, zap.String("pinboard_id", pinboardID))
		return Pinboard{}, newServiceError(operation, "select_failed", err)
	}
	board.Status = status
	if err := s.db.WithContext(ctx).Save(&board).Error; err != nil {
		s.logError(operation, "save_failed", err, zap.String("pinboard_id", pinboardID))
		return Pinboard{}, newServiceError(operation, "save_failed", err)
	}
	return board, nil
}

func (s *Service) takeOwnedForUpdate(tx *gorm.DB, owner OwnerID, pinboardID string, board *Pinboard) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("pinboard_id = ? AND owner_id = ?", pinboardID, owner.String()).
		Take(board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("pinboard service error", attrs...)
}

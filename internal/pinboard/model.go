package pinboard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status enumerates the stored lifecycle states of a pinboard. The expired
// state is never stored; it is derived from the deadline timestamps at read
// time (see EffectiveStatus).
type Status string

const (
	// StatusTrial marks a pinboard inside its evaluation window.
	StatusTrial Status = "trial"
	// StatusActive marks a pinboard backed by a confirmed subscription.
	StatusActive Status = "active"
	// StatusExpired is a derived state for lapsed trial or paid periods.
	StatusExpired Status = "expired"
	// StatusRemoved marks an owner-initiated soft delete.
	StatusRemoved Status = "removed"
	// StatusSuspended marks an operator-initiated lock.
	StatusSuspended Status = "suspended"
)

const (
	maxIdentifierLength = 190
	maxSlugLength       = 63
	// RestoreWindow is how long a removed pinboard stays restorable.
	RestoreWindow = 30 * 24 * time.Hour
)

var (
	// ErrInvalidSlug indicates the slug is empty, too long, or carries
	// characters outside [a-z0-9-].
	ErrInvalidSlug = errors.New("pinboard: invalid slug")
	// ErrInvalidOwnerID indicates an empty or oversized owner identifier.
	ErrInvalidOwnerID = errors.New("pinboard: invalid owner id")
	// ErrInvalidTitle indicates an empty title.
	ErrInvalidTitle = errors.New("pinboard: invalid title")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Slug represents a validated pinboard slug. Slugs are globally unique and
// immutable once assigned.
type Slug string

// NewSlug validates raw input and returns a Slug.
func NewSlug(rawInput string) (Slug, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSlug)
	}
	if len(trimmed) > maxSlugLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugPattern.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlug, trimmed)
	}
	return Slug(trimmed), nil
}

// String returns the underlying slug value.
func (s Slug) String() string {
	return string(s)
}

// OwnerID represents a validated account identifier.
type OwnerID string

// NewOwnerID validates raw input and returns an OwnerID.
func NewOwnerID(rawInput string) (OwnerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOwnerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwnerID, maxIdentifierLength)
	}
	return OwnerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id OwnerID) String() string {
	return string(id)
}

// Pinboard models the persisted pinboard row. Deadline columns are unix
// seconds; nil means the deadline does not apply in the current state.
type Pinboard struct {
	PinboardID            string    `gorm:"column:pinboard_id;primaryKey;size:190;not null"`
	OwnerID               string    `gorm:"column:owner_id;size:190;not null;index:idx_pinboards_owner"`
	Slug                  string    `gorm:"column:slug;size:63;not null;uniqueIndex:idx_pinboards_slug"`
	Title                 string    `gorm:"column:title;size:320;not null"`
	Status                Status    `gorm:"column:status;size:32;not null"`
	TrialEndsAtSeconds    *int64    `gorm:"column:trial_ends_at_s"`
	PaidUntilSeconds      *int64    `gorm:"column:paid_until_s"`
	RemovedAtSeconds      *int64    `gorm:"column:removed_at_s"`
	RestoreUntilSeconds   *int64    `gorm:"column:restore_until_s"`
	BillingCustomerID     string    `gorm:"column:billing_customer_id;size:190;not null;default:''"`
	BillingSubscriptionID string    `gorm:"column:billing_subscription_id;size:190;not null;default:''"`
	SubscriptionStatus    string    `gorm:"column:subscription_status;size:64;not null;default:''"`
	OwnerExempt           bool      `gorm:"column:owner_exempt;not null;default:false"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Pinboard) TableName() string {
	return "pinboards"
}

// SubscriptionSnapshot carries the subscription state extracted from one
// payment-processor webhook event. The processor may deliver snapshots more
// than once and out of order; applying one must be safe regardless.
type SubscriptionSnapshot struct {
	CustomerID              string
	SubscriptionID          string
	ProcessorStatus         string
	TrialEndsAtSeconds      int64
	CurrentPeriodEndSeconds int64
}

// VisibilityReason names why a pinboard is not publicly servable.
type VisibilityReason string

const (
	// ReasonExpired means the trial or paid period lapsed without renewal.
	ReasonExpired VisibilityReason = "expired"
	// ReasonRemoved means the owner soft-deleted the pinboard.
	ReasonRemoved VisibilityReason = "removed"
	// ReasonSuspended means an operator locked the pinboard.
	ReasonSuspended VisibilityReason = "suspended"
)

// Visibility reports whether a pinboard may be served publicly and, when it
// may not, which lifecycle message applies.
type Visibility struct {
	Visible bool
	Reason  VisibilityReason
}

// EffectiveStatus derives the lifecycle status at the given instant. Stored
// trial and active states degrade to expired once their deadline passes;
// there is no stored transition and no background sweep, so two reads at
// different times can legitimately observe different statuses.
func EffectiveStatus(board Pinboard, now time.Time) Status {
	switch board.Status {
	case StatusRemoved, StatusSuspended:
		return board.Status
	case StatusTrial:
		if board.OwnerExempt || deadlineInFuture(board.TrialEndsAtSeconds, now) {
			return StatusTrial
		}
		return StatusExpired
	case StatusActive:
		if board.OwnerExempt || deadlineInFuture(board.PaidUntilSeconds, now) {
			return StatusActive
		}
		return StatusExpired
	default:
		return StatusExpired
	}
}

// Evaluate computes the public visibility of a pinboard at the given instant.
// It is a pure function over the row; callers evaluate it on every public
// request rather than caching the answer.
func Evaluate(board Pinboard, now time.Time) Visibility {
	switch EffectiveStatus(board, now) {
	case StatusTrial, StatusActive:
		return Visibility{Visible: true}
	case StatusRemoved:
		return Visibility{Visible: false, Reason: ReasonRemoved}
	case StatusSuspended:
		return Visibility{Visible: false, Reason: ReasonSuspended}
	default:
		return Visibility{Visible: false, Reason: ReasonExpired}
	}
}

func deadlineInFuture(deadlineSeconds *int64, now time.Time) bool {
	if deadlineSeconds == nil {
		return false
	}
	return *deadlineSeconds > now.Unix()
}

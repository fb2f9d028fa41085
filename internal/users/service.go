package users

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/pinboardly/pinboardly/internal/auth"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// IDProvider issues identifiers for new organisations.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required for tenant resolution.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
}

// Service resolves auth-provider sessions to the organisation whose rows
// the request may touch. A first-time user gets a personal org.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider IDProvider
	cache      sync.Map
}

// NewService constructs the tenant resolution service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		idProvider: cfg.IDProvider,
		cache:      sync.Map{},
	}, nil
}

// ResolveOwnerOrg returns the org id owning the session user's content.
// It creates a personal organisation and membership on first sight and
// refreshes the stored email and verification flag on later visits.
func (s *Service) ResolveOwnerOrg(claims auth.SessionClaims) (string, error) {
	userID := normalize(claims.UserID)
	if userID == "" {
		return "", ErrInvalidIdentity
	}

	if cachedOrg, ok := s.cache.Load(userID); ok {
		orgID, ok := cachedOrg.(string)
		if ok {
			return orgID, nil
		}
	}

	var member OrgMember
	err := s.db.
		Where("user_id = ?", userID).
		First(&member).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		orgID, err := s.idProvider.NewID()
		if err != nil {
			return "", err
		}
		org := Org{
			OrgID: orgID,
			Name:  personalOrgName(claims),
		}
		member = OrgMember{
			OrgID:         orgID,
			UserID:        userID,
			Email:         normalize(claims.UserEmail),
			EmailVerified: claims.EmailVerified,
			Role:          "owner",
			LastSeenAt:    s.now(),
		}
		createErr := s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&org).Error; err != nil {
				return err
			}
			return tx.Create(&member).Error
		})
		if createErr != nil {
			return "", createErr
		}
	} else if err != nil {
		return "", err
	} else {
		updates := map[string]interface{}{}
		if email := normalize(claims.UserEmail); email != "" && email != member.Email {
			updates["email"] = email
		}
		if claims.EmailVerified != member.EmailVerified {
			updates["email_verified"] = claims.EmailVerified
		}
		updates["last_seen_at"] = s.now()
		if len(updates) > 0 {
			_ = s.db.Model(&OrgMember{}).
				Where("org_id = ? AND user_id = ?", member.OrgID, member.UserID).
				Updates(updates).
				Error
		}
	}

	s.cache.Store(userID, member.OrgID)
	return member.OrgID, nil
}

func personalOrgName(claims auth.SessionClaims) string {
	email := normalize(claims.UserEmail)
	if email != "" {
		if at := strings.IndexByte(email, '@'); at > 0 {
			return email[:at]
		}
		return email
	}
	return normalize(claims.UserID)
}

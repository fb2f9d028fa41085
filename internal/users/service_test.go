package users

import (
	"errors"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/pinboardly/pinboardly/internal/auth"
)

type staticOrgIDs struct {
	ids   []string
	index int
}

func (g *staticOrgIDs) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func newUsersTestService(t *testing.T, ids []string) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Org{}, &OrgMember{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &staticOrgIDs{ids: ids},
		Clock: func() time.Time {
			return time.Unix(1700000000, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveOwnerOrgCreatesPersonalOrg(t *testing.T) {
	service, db := newUsersTestService(t, []string{"org-1"})

	claims := auth.SessionClaims{
		UserID:        "user-12345",
		UserEmail:     "owner@example.com",
		EmailVerified: true,
	}
	orgID, err := service.ResolveOwnerOrg(claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if orgID != "org-1" {
		t.Fatalf("expected new personal org id, got %q", orgID)
	}

	var org Org
	if err := db.Take(&org, "org_id = ?", "org-1").Error; err != nil {
		t.Fatalf("expected org row: %v", err)
	}
	if org.Name != "owner" {
		t.Fatalf("expected org named after email local part, got %q", org.Name)
	}

	var member OrgMember
	if err := db.Take(&member, "user_id = ?", "user-12345").Error; err != nil {
		t.Fatalf("expected membership row: %v", err)
	}
	if !member.EmailVerified {
		t.Fatalf("expected verified flag persisted")
	}

	// second call should hit cache and not allocate another org id.
	orgID, err = service.ResolveOwnerOrg(claims)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if orgID != "org-1" {
		t.Fatalf("expected org id to remain stable, got %q", orgID)
	}
}

func TestResolveOwnerOrgRejectsEmptyUser(t *testing.T) {
	service, _ := newUsersTestService(t, nil)
	if _, err := service.ResolveOwnerOrg(auth.SessionClaims{UserID: "  "}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

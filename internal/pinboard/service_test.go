package pinboard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequentialBoardIDs struct {
	next int
}

func (g *sequentialBoardIDs) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("pb-%d", g.next), nil
}

type pinboardFixture struct {
	service *Service
	db      *gorm.DB
	now     *time.Time
}

func newPinboardFixture(t *testing.T) pinboardFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Pinboard{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	now := referenceTime
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &sequentialBoardIDs{},
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return pinboardFixture{service: service, db: db, now: &now}
}

func mustSlug(t *testing.T, value string) Slug {
	t.Helper()
	slug, err := NewSlug(value)
	if err != nil {
		t.Fatalf("slug %q: %v", value, err)
	}
	return slug
}

func mustOwner(t *testing.T, value string) OwnerID {
	t.Helper()
	owner, err := NewOwnerID(value)
	if err != nil {
		t.Fatalf("owner %q: %v", value, err)
	}
	return owner
}

func TestCreateStartsFreshTrial(t *testing.T) {
	fixture := newPinboardFixture(t)

	created, err := fixture.service.Create(context.Background(), CreateParams{
		Owner: mustOwner(t, "org-1"),
		Slug:  mustSlug(t, "spring-fair"),
		Title: "Spring Fair",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Status != StatusTrial {
		t.Fatalf("expected trial status, got %q", created.Status)
	}
	wantDeadline := referenceTime.Add(defaultTrialPeriod).Unix()
	if created.TrialEndsAtSeconds == nil || *created.TrialEndsAtSeconds != wantDeadline {
		t.Fatalf("expected trial deadline %d, got %v", wantDeadline, created.TrialEndsAtSeconds)
	}
}

func TestCreateHonorsCheckoutSnapshot(t *testing.T) {
	fixture := newPinboardFixture(t)

	periodEnd := referenceTime.Add(720 * time.Hour).Unix()
	created, err := fixture.service.Create(context.Background(), CreateParams{
		Owner: mustOwner(t, "org-1"),
		Slug:  mustSlug(t, "paid-board"),
		Title: "Paid",
		Snapshot: SubscriptionSnapshot{
			CustomerID:              "cus_1",
			SubscriptionID:          "sub_1",
			ProcessorStatus:         "active",
			CurrentPeriodEndSeconds: periodEnd,
		},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Status != StatusActive {
		t.Fatalf("expected active status, got %q", created.Status)
	}
	if created.TrialEndsAtSeconds != nil {
		t.Fatalf("active checkout should not receive a trial deadline")
	}
	if created.PaidUntilSeconds == nil || *created.PaidUntilSeconds != periodEnd {
		t.Fatalf("paid deadline not stored: %v", created.PaidUntilSeconds)
	}
}

func TestCreateRejectsDuplicateSlug(t *testing.T) {
	fixture := newPinboardFixture(t)
	params := CreateParams{Owner: mustOwner(t, "org-1"), Slug: mustSlug(t, "taken"), Title: "First"}

	if _, err := fixture.service.Create(context.Background(), params); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := fixture.service.Create(context.Background(), params)
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}

func TestGetOwnedScopesByOwner(t *testing.T) {
	fixture := newPinboardFixture(t)
	created, err := fixture.service.Create(context.Background(), CreateParams{
		Owner: mustOwner(t, "org-1"), Slug: mustSlug(t, "mine"), Title: "Mine",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := fixture.service.GetOwned(context.Background(), mustOwner(t, "org-1"), created.PinboardID); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	_, err = fixture.service.GetOwned(context.Background(), mustOwner(t, "org-2"), created.PinboardID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
}

func TestRemoveOpensRestoreWindow(t *testing.T) {
	fixture := newPinboardFixture(t)
	owner := mustOwner(t, "org-1")
	created, err := fixture.service.Create(context.Background(), CreateParams{
		Owner: owner, Slug: mustSlug(t, "doomed"), Title: "Doomed",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	removed, err := fixture.service.Remove(context.Background(), owner, created.PinboardID)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if removed.Status != StatusRemoved {
		t.Fatalf("expected removed status, got %q", removed.Status)
	}
	wantDeadline := referenceTime.Add(RestoreWindow).Unix()
	if removed.RestoreUntilSeconds == nil || *removed.RestoreUntilSeconds != wantDeadline {
		t.Fatalf("expected restore deadline %d, got %v", wantDeadline, removed.RestoreUntilSeconds)
	}

	// a second remove must not slide the window
	*fixture.now = referenceTime.Add(48 * time.Hour)
	again, err := fixture.service.Remove(context.Background(), owner, created.PinboardID)
	if err != nil {
		t.Fatalf("repeated remove failed: %v", err)
	}
	if again.RestoreUntilSeconds == nil || *again.RestoreUntilSeconds != wantDeadline {
		t.Fatalf("repeated remove moved the window to %v", again.RestoreUntilSeconds)
	}
}

func TestRestoreReturnsToTrial(t *testing.T) {
	fixture := newPinboardFixture(t)
	owner := mustOwner(t, "org-1")
	created, err := fixture.service.Create(context.Background(), CreateParams{
		Owner: owner, Slug: mustSlug(t, "phoenix"), Title: "Phoenix",
		Snapshot: SubscriptionSnapshot{
			ProcessorStatus:         "active",
			CurrentPeriodEndSeconds: referenceTime.Add(8760 * time.Hour).Unix(),
		},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := fixture.service.Remove(context.Background(), owner, created.PinboardID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	restored, err := fixture.service.Restore(context.Background(), owner, created.PinboardID)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if restored.Status != StatusTrial {
		t.Fatalf("expected restored board in trial, got %q", restored.Status)
	}
	if restored.RemovedAtSeconds != nil || restored.RestoreUntilSeconds != nil {
		t.Fatalf("removal fields not cleared: %+v", restored)
	}
}

func TestRestoreRejectsClosedWindow(t *testing.T) {
	fixture := newPinboardFixture(t)
	owner := mustOwner(t, "org-1")
	created, err := fixture.service.Create(context.Background(), CreateParams{
		Owner: owner, Slug: mustSlug(t, "too-late"), Title: "Too Late",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := fixture.service.Remove(context.Background(), owner, created.PinboardID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	*fixture.now = referenceTime.Add(RestoreWindow + time.Hour)
	_, err = fixture.service.Restore(context.Background(), owner, created.PinboardID)
	if !errors.Is(err, ErrRestoreWindowClosed) {
		t.Fatalf("expected ErrRestoreWindowClosed, got %v", err)
	}
}

func TestRestoreRejectsLiveBoard(t *testing.T) {
	fixture := newPinboardFixture(t)
	owner := mustOwner(t, "org-1")
	created, err := fixture.service.Create(context.Background(), CreateParams{
		Owner: owner, Slug: mustSlug(t, "alive"), Title: "Alive",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_, err = fixture.service.Restore(context.Background(), owner, created.PinboardID)
	if !errors.Is(err, ErrNotRemoved) {
		t.Fatalf("expected ErrNotRemoved, got %v", err)
	}
}

func TestApplySubscriptionSnapshotPersists(t *testing.T) {
	fixture := newPinboardFixture(t)
	owner := mustOwner(t, "org-1")
	slug := mustSlug(t, "billed")
	if _, err := fixture.service.Create(context.Background(), CreateParams{Owner: owner, Slug: slug, Title: "Billed"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	snapshot := SubscriptionSnapshot{
		CustomerID:              "cus_7",
		SubscriptionID:          "sub_7",
		ProcessorStatus:         "active",
		CurrentPeriodEndSeconds: referenceTime.Add(720 * time.Hour).Unix(),
	}
	updated, err := fixture.service.ApplySubscriptionSnapshot(context.Background(), slug, snapshot)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if updated.Status != StatusActive || updated.BillingCustomerID != "cus_7" {
		t.Fatalf("snapshot not applied: %+v", updated)
	}

	var stored Pinboard
	if err := fixture.db.Take(&stored, "slug = ?", slug.String()).Error; err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	duplicate, err := fixture.service.ApplySubscriptionSnapshot(context.Background(), slug, snapshot)
	if err != nil {
		t.Fatalf("duplicate apply failed: %v", err)
	}
	if !snapshotEqual(stored, duplicate) {
		t.Fatalf("duplicate delivery changed the row: %+v vs %+v", stored, duplicate)
	}
}

func TestApplySubscriptionSnapshotUnknownSlug(t *testing.T) {
	fixture := newPinboardFixture(t)
	_, err := fixture.service.ApplySubscriptionSnapshot(context.Background(), mustSlug(t, "ghost"), SubscriptionSnapshot{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSuspendAndUnsuspend(t *testing.T) {
	fixture := newPinboardFixture(t)
	created, err := fixture.service.Create(context.Background(), CreateParams{
		Owner: mustOwner(t, "org-1"), Slug: mustSlug(t, "lockable"), Title: "Lockable",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	suspended, err := fixture.service.Suspend(context.Background(), created.PinboardID)
	if err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if suspended.Status != StatusSuspended {
		t.Fatalf("expected suspended, got %q", suspended.Status)
	}

	lifted, err := fixture.service.Unsuspend(context.Background(), created.PinboardID)
	if err != nil {
		t.Fatalf("unsuspend failed: %v", err)
	}
	if lifted.Status != StatusTrial {
		t.Fatalf("expected trial after unsuspend, got %q", lifted.Status)
	}
}

func TestSetOwnerExemptKeepsBoardVisible(t *testing.T) {
	fixture := newPinboardFixture(t)
	created, err := fixture.service.Create(context.Background(), CreateParams{
		Owner: mustOwner(t, "org-1"), Slug: mustSlug(t, "exempted"), Title: "Exempted",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := fixture.service.SetOwnerExempt(context.Background(), created.PinboardID, true)
	if err != nil {
		t.Fatalf("exempt failed: %v", err)
	}
	longAfterTrial := referenceTime.Add(10 * defaultTrialPeriod)
	if visibility := Evaluate(updated, longAfterTrial); !visibility.Visible {
		t.Fatalf("exempt board should stay visible, got %+v", visibility)
	}
}

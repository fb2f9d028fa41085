package pinboard

import (
	"testing"
	"time"
)

func TestResolveSnapshotAppliesBillingState(t *testing.T) {
	existing := Pinboard{Status: StatusTrial}
	snapshot := SubscriptionSnapshot{
		CustomerID:              "cus_1",
		SubscriptionID:          "sub_1",
		ProcessorStatus:         "active",
		CurrentPeriodEndSeconds: referenceTime.Add(720 * time.Hour).Unix(),
	}

	updated, changed := resolveSnapshot(existing, snapshot)
	if !changed {
		t.Fatalf("expected change on first application")
	}
	if updated.Status != StatusActive {
		t.Fatalf("expected active bucket, got %q", updated.Status)
	}
	if updated.BillingCustomerID != "cus_1" || updated.BillingSubscriptionID != "sub_1" {
		t.Fatalf("billing references not applied: %+v", updated)
	}
	if updated.PaidUntilSeconds == nil || *updated.PaidUntilSeconds != snapshot.CurrentPeriodEndSeconds {
		t.Fatalf("paid deadline not applied: %v", updated.PaidUntilSeconds)
	}
}

func TestResolveSnapshotIsIdempotent(t *testing.T) {
	snapshot := SubscriptionSnapshot{
		CustomerID:              "cus_1",
		SubscriptionID:          "sub_1",
		ProcessorStatus:         "active",
		CurrentPeriodEndSeconds: referenceTime.Add(720 * time.Hour).Unix(),
	}

	first, changed := resolveSnapshot(Pinboard{Status: StatusTrial}, snapshot)
	if !changed {
		t.Fatalf("expected change on first application")
	}
	second, changed := resolveSnapshot(first, snapshot)
	if changed {
		t.Fatalf("expected duplicate delivery to be a no-op")
	}
	if !snapshotEqual(first, second) {
		t.Fatalf("duplicate application altered the row: %+v vs %+v", first, second)
	}
}

func TestResolveSnapshotNeverRegressesDeadlines(t *testing.T) {
	laterEnd := referenceTime.Add(720 * time.Hour).Unix()
	existing := Pinboard{
		Status:           StatusActive,
		PaidUntilSeconds: pointerTo(laterEnd),
	}

	stale := SubscriptionSnapshot{
		ProcessorStatus:         "active",
		CurrentPeriodEndSeconds: referenceTime.Add(24 * time.Hour).Unix(),
	}
	updated, _ := resolveSnapshot(existing, stale)
	if *updated.PaidUntilSeconds != laterEnd {
		t.Fatalf("stale snapshot regressed paid deadline to %d", *updated.PaidUntilSeconds)
	}
}

func TestResolveSnapshotPreservesRemovedAndSuspended(t *testing.T) {
	for _, status := range []Status{StatusRemoved, StatusSuspended} {
		existing := Pinboard{Status: status}
		snapshot := SubscriptionSnapshot{
			CustomerID:      "cus_2",
			ProcessorStatus: "active",
		}
		updated, _ := resolveSnapshot(existing, snapshot)
		if updated.Status != status {
			t.Fatalf("snapshot overrode %q with %q", status, updated.Status)
		}
		if updated.BillingCustomerID != "cus_2" {
			t.Fatalf("billing reference should still land on %q boards", status)
		}
	}
}

func TestResolveSnapshotLeavesBucketForUnknownStatus(t *testing.T) {
	existing := Pinboard{Status: StatusActive, PaidUntilSeconds: pointerTo(referenceTime.Add(time.Hour).Unix())}
	updated, _ := resolveSnapshot(existing, SubscriptionSnapshot{ProcessorStatus: "canceled"})
	if updated.Status != StatusActive {
		t.Fatalf("cancellation should not rewrite the bucket, got %q", updated.Status)
	}
	if updated.SubscriptionStatus != "canceled" {
		t.Fatalf("processor status not recorded, got %q", updated.SubscriptionStatus)
	}
}

package pinboard

// resolveSnapshot folds one subscription snapshot into the stored row and
// reports whether anything changed. Webhook delivery is at-least-once and
// unordered, so the fold never regresses a deadline and yields no change when
// the snapshot repeats data the row already holds.
func resolveSnapshot(existing Pinboard, snapshot SubscriptionSnapshot) (Pinboard, bool) {
	updated := existing

	if snapshot.CustomerID != "" {
		updated.BillingCustomerID = snapshot.CustomerID
	}
	if snapshot.SubscriptionID != "" {
		updated.BillingSubscriptionID = snapshot.SubscriptionID
	}
	if snapshot.ProcessorStatus != "" {
		updated.SubscriptionStatus = snapshot.ProcessorStatus
	}

	if snapshot.TrialEndsAtSeconds > 0 {
		if updated.TrialEndsAtSeconds == nil || snapshot.TrialEndsAtSeconds > *updated.TrialEndsAtSeconds {
			updated.TrialEndsAtSeconds = pointerTo(snapshot.TrialEndsAtSeconds)
		}
	}
	if snapshot.CurrentPeriodEndSeconds > 0 {
		if updated.PaidUntilSeconds == nil || snapshot.CurrentPeriodEndSeconds > *updated.PaidUntilSeconds {
			updated.PaidUntilSeconds = pointerTo(snapshot.CurrentPeriodEndSeconds)
		}
	}

	// Removed and suspended boards keep their stored state; billing data
	// still lands so a later restore sees current references.
	if existing.Status != StatusRemoved && existing.Status != StatusSuspended {
		switch bucketForProcessorStatus(snapshot.ProcessorStatus) {
		case StatusTrial:
			updated.Status = StatusTrial
		case StatusActive:
			updated.Status = StatusActive
		}
	}

	return updated, !snapshotEqual(existing, updated)
}

// bucketForProcessorStatus maps the processor's subscription status onto the
// stored lifecycle bucket. Unknown statuses map to the empty Status and leave
// the stored bucket untouched; expiry is derived from the deadlines.
func bucketForProcessorStatus(processorStatus string) Status {
	switch processorStatus {
	case "trialing":
		return StatusTrial
	case "active", "past_due":
		return StatusActive
	default:
		return Status("")
	}
}

func snapshotEqual(a, b Pinboard) bool {
	return a.Status == b.Status &&
		a.BillingCustomerID == b.BillingCustomerID &&
		a.BillingSubscriptionID == b.BillingSubscriptionID &&
		a.SubscriptionStatus == b.SubscriptionStatus &&
		secondsEqual(a.TrialEndsAtSeconds, b.TrialEndsAtSeconds) &&
		secondsEqual(a.PaidUntilSeconds, b.PaidUntilSeconds)
}

func secondsEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func pointerTo(value int64) *int64 {
	v := value
	return &v
}

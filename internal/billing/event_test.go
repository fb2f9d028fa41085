package billing

import (
	"errors"
	"testing"
)

func TestParseEventSubscriptionUpdated(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "customer.subscription.updated",
		"created": 1770000000,
		"data": {"object": {
			"customer": "cus_1",
			"id": "sub_1",
			"status": "active",
			"current_period_end": 1772000000,
			"metadata": {"pinboard_slug": "spring-fair"}
		}}
	}`)

	event, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.Type != EventSubscriptionUpdated {
		t.Fatalf("unexpected type %q", event.Type)
	}
	if event.Subscription.SubscriptionID != "sub_1" {
		t.Fatalf("expected object id as subscription id, got %q", event.Subscription.SubscriptionID)
	}
	if event.Subscription.PinboardSlug != "spring-fair" {
		t.Fatalf("slug metadata not extracted: %q", event.Subscription.PinboardSlug)
	}
	if event.Subscription.CurrentPeriodEndSeconds != 1772000000 {
		t.Fatalf("period end not extracted: %d", event.Subscription.CurrentPeriodEndSeconds)
	}
}

func TestParseEventCheckoutCarriesProvisioningMetadata(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"type": "checkout.session.completed",
		"created": 1770000000,
		"data": {"object": {
			"customer": "cus_2",
			"subscription": "sub_2",
			"status": "trialing",
			"trial_end": 1771000000,
			"metadata": {
				"pinboard_slug": "fresh-board",
				"pinboard_title": "Fresh Board",
				"owner_id": "org-9"
			}
		}}
	}`)

	event, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if event.Subscription.SubscriptionID != "sub_2" {
		t.Fatalf("expected explicit subscription field preferred, got %q", event.Subscription.SubscriptionID)
	}
	if event.Subscription.OwnerID != "org-9" || event.Subscription.PinboardTitle != "Fresh Board" {
		t.Fatalf("provisioning metadata not extracted: %+v", event.Subscription)
	}
}

func TestParseEventRejectsBadPayloads(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    error
	}{
		{name: "not json", payload: `{`, want: ErrInvalidEvent},
		{name: "missing id", payload: `{"type":"customer.subscription.updated","data":{"object":{"metadata":{"pinboard_slug":"x"}}}}`, want: ErrInvalidEvent},
		{name: "unknown type", payload: `{"id":"evt_3","type":"invoice.paid","data":{"object":{}}}`, want: ErrUnhandledEventType},
		{name: "missing slug", payload: `{"id":"evt_4","type":"customer.subscription.updated","data":{"object":{"id":"sub_4"}}}`, want: ErrInvalidEvent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseEvent([]byte(tc.payload)); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventType enumerates the processor webhook events Pinboardly consumes.
type EventType string

const (
	// EventCheckoutCompleted signals a finished hosted checkout.
	EventCheckoutCompleted EventType = "checkout.session.completed"
	// EventSubscriptionUpdated signals refreshed subscription dates/status.
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	// EventSubscriptionDeleted signals a cancelled subscription.
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
)

var (
	// ErrInvalidEvent indicates a payload that does not parse into a known
	// event envelope.
	ErrInvalidEvent = errors.New("billing: invalid event payload")
	// ErrUnhandledEventType indicates a well-formed event Pinboardly does
	// not consume; callers acknowledge it without effect.
	ErrUnhandledEventType = errors.New("billing: unhandled event type")
)

// Event is the parsed webhook envelope. Delivery is at-least-once and
// unordered; consumers must treat repeated snapshots as no-ops.
type Event struct {
	ID             string
	Type           EventType
	CreatedSeconds int64
	Subscription   SubscriptionData
}

// SubscriptionData carries the subscription object of an event. OwnerID and
// PinboardTitle ride along in checkout metadata so a completed checkout can
// provision the pinboard it paid for.
type SubscriptionData struct {
	CustomerID              string
	SubscriptionID          string
	Status                  string
	TrialEndSeconds         int64
	CurrentPeriodEndSeconds int64
	PinboardSlug            string
	OwnerID                 string
	PinboardTitle           string
}

type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object subscriptionObject `json:"object"`
	} `json:"data"`
}

type subscriptionObject struct {
	Customer         string            `json:"customer"`
	Subscription     string            `json:"subscription"`
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	TrialEnd         int64             `json:"trial_end"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
}

// ParseEvent decodes a verified webhook payload into a typed Event.
func ParseEvent(payload []byte) (Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if strings.TrimSpace(envelope.ID) == "" {
		return Event{}, fmt.Errorf("%w: missing event id", ErrInvalidEvent)
	}

	eventType := EventType(envelope.Type)
	switch eventType {
	case EventCheckoutCompleted, EventSubscriptionUpdated, EventSubscriptionDeleted:
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnhandledEventType, envelope.Type)
	}

	object := envelope.Data.Object
	subscriptionID := object.Subscription
	if subscriptionID == "" {
		// subscription events carry the subscription as the object id
		subscriptionID = object.ID
	}

	event := Event{
		ID:             envelope.ID,
		Type:           eventType,
		CreatedSeconds: envelope.Created,
		Subscription: SubscriptionData{
			CustomerID:              object.Customer,
			SubscriptionID:          subscriptionID,
			Status:                  object.Status,
			TrialEndSeconds:         object.TrialEnd,
			CurrentPeriodEndSeconds: object.CurrentPeriodEnd,
			PinboardSlug:            object.Metadata["pinboard_slug"],
			OwnerID:                 object.Metadata["owner_id"],
			PinboardTitle:           object.Metadata["pinboard_title"],
		},
	}
	if event.Subscription.PinboardSlug == "" {
		return Event{}, fmt.Errorf("%w: missing pinboard_slug metadata", ErrInvalidEvent)
	}
	return event, nil
}

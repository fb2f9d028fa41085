package content

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ItemKind discriminates the three content item families of a pinboard.
type ItemKind string

const (
	// KindLink is a titled URL with an optional description.
	KindLink ItemKind = "link"
	// KindNote is a Markdown body with an optional title.
	KindNote ItemKind = "note"
	// KindEvent is a dated entry; events are never manually reordered.
	KindEvent ItemKind = "event"
)

const (
	// MaxLinks caps the link collection per pinboard.
	MaxLinks = 50
	// MaxNotes caps the note collection per pinboard.
	MaxNotes = 50
	// MaxEvents caps the event collection per pinboard.
	MaxEvents = 100

	maxTitleLength       = 320
	maxURLLength         = 2048
	maxBodyLength        = 20000
	maxDescriptionLength = 2000
	maxLocationLength    = 320

	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

var (
	// ErrValidation indicates malformed or missing input fields.
	ErrValidation = errors.New("content: validation failed")
	// ErrCapacityExceeded indicates the collection is at its cap.
	ErrCapacityExceeded = errors.New("content: collection at capacity")
	// ErrNotFound indicates the parent or item does not exist or is not
	// owned by the requesting account.
	ErrNotFound = errors.New("content: not found")
	// ErrNotReorderable indicates a reorder was requested for events.
	ErrNotReorderable = errors.New("content: events are not reorderable")
	// ErrIDSetMismatch indicates a reorder id list that does not match the
	// current sibling set exactly.
	ErrIDSetMismatch = fmt.Errorf("%w: id list does not match sibling set", ErrValidation)
)

// Link models a stored link item. Positions within one pinboard are unique;
// gaps left by deletions are permanent.
type Link struct {
	ItemID      string    `gorm:"column:item_id;primaryKey;size:190;not null"`
	PinboardID  string    `gorm:"column:pinboard_id;size:190;not null;index:idx_link_pins_board"`
	Title       string    `gorm:"column:title;size:320;not null"`
	URL         string    `gorm:"column:url;size:2048;not null"`
	Description string    `gorm:"column:description;size:2000;not null;default:''"`
	Position    int       `gorm:"column:position;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Link) TableName() string {
	return "link_pins"
}

// Note models a stored note item carrying a Markdown body.
type Note struct {
	ItemID     string    `gorm:"column:item_id;primaryKey;size:190;not null"`
	PinboardID string    `gorm:"column:pinboard_id;size:190;not null;index:idx_note_pins_board"`
	Title      string    `gorm:"column:title;size:320;not null;default:''"`
	Body       string    `gorm:"column:body;type:text;not null"`
	Position   int       `gorm:"column:position;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "note_pins"
}

// Event models a stored event item. Events carry no manual position; display
// order is derived from date and time.
type Event struct {
	ItemID      string    `gorm:"column:item_id;primaryKey;size:190;not null"`
	PinboardID  string    `gorm:"column:pinboard_id;size:190;not null;index:idx_event_pins_board"`
	Title       string    `gorm:"column:title;size:320;not null"`
	Date        string    `gorm:"column:event_date;size:10;not null"`
	StartTime   string    `gorm:"column:start_time;size:5;not null;default:''"`
	Location    string    `gorm:"column:location;size:320;not null;default:''"`
	Description string    `gorm:"column:description;size:2000;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "event_pins"
}

// LinkFields carries the validated fields of a link command.
type LinkFields struct {
	Title       string
	URL         string
	Description string
}

// NoteFields carries the validated fields of a note command.
type NoteFields struct {
	Title string
	Body  string
}

// EventFields carries the validated fields of an event command.
type EventFields struct {
	Title       string
	Date        string
	StartTime   string
	Location    string
	Description string
}

// Command is the validated, discriminated input for create and update
// operations. Exactly one of the field pointers is set, matching Kind.
type Command struct {
	Kind  ItemKind
	Link  *LinkFields
	Note  *NoteFields
	Event *EventFields
}

// NewLinkCommand validates link fields and returns a Command. The URL is
// normalized to carry a scheme; bare hosts default to https.
func NewLinkCommand(fields LinkFields) (Command, error) {
	title := strings.TrimSpace(fields.Title)
	if title == "" {
		return Command{}, fmt.Errorf("%w: link title required", ErrValidation)
	}
	if len(title) > maxTitleLength {
		return Command{}, fmt.Errorf("%w: link title exceeds %d characters", ErrValidation, maxTitleLength)
	}
	normalized, err := normalizeURL(fields.URL)
	if err != nil {
		return Command{}, err
	}
	description := strings.TrimSpace(fields.Description)
	if len(description) > maxDescriptionLength {
		return Command{}, fmt.Errorf("%w: link description exceeds %d characters", ErrValidation, maxDescriptionLength)
	}
	return Command{Kind: KindLink, Link: &LinkFields{
		Title:       title,
		URL:         normalized,
		Description: description,
	}}, nil
}

// NewNoteCommand validates note fields and returns a Command.
func NewNoteCommand(fields NoteFields) (Command, error) {
	body := strings.TrimSpace(fields.Body)
	if body == "" {
		return Command{}, fmt.Errorf("%w: note body required", ErrValidation)
	}
	if len(body) > maxBodyLength {
		return Command{}, fmt.Errorf("%w: note body exceeds %d characters", ErrValidation, maxBodyLength)
	}
	title := strings.TrimSpace(fields.Title)
	if len(title) > maxTitleLength {
		return Command{}, fmt.Errorf("%w: note title exceeds %d characters", ErrValidation, maxTitleLength)
	}
	return Command{Kind: KindNote, Note: &NoteFields{Title: title, Body: body}}, nil
}

// NewEventCommand validates event fields and returns a Command. Dates use
// the 2006-01-02 layout and times the 15:04 layout.
func NewEventCommand(fields EventFields) (Command, error) {
	title := strings.TrimSpace(fields.Title)
	if title == "" {
		return Command{}, fmt.Errorf("%w: event title required", ErrValidation)
	}
	if len(title) > maxTitleLength {
		return Command{}, fmt.Errorf("%w: event title exceeds %d characters", ErrValidation, maxTitleLength)
	}
	date := strings.TrimSpace(fields.Date)
	if _, err := time.Parse(dateLayout, date); err != nil {
		return Command{}, fmt.Errorf("%w: invalid event date %q", ErrValidation, fields.Date)
	}
	startTime := strings.TrimSpace(fields.StartTime)
	if startTime != "" {
		if _, err := time.Parse(timeLayout, startTime); err != nil {
			return Command{}, fmt.Errorf("%w: invalid event time %q", ErrValidation, fields.StartTime)
		}
	}
	location := strings.TrimSpace(fields.Location)
	if len(location) > maxLocationLength {
		return Command{}, fmt.Errorf("%w: event location exceeds %d characters", ErrValidation, maxLocationLength)
	}
	description := strings.TrimSpace(fields.Description)
	if len(description) > maxDescriptionLength {
		return Command{}, fmt.Errorf("%w: event description exceeds %d characters", ErrValidation, maxDescriptionLength)
	}
	return Command{Kind: KindEvent, Event: &EventFields{
		Title:       title,
		Date:        date,
		StartTime:   startTime,
		Location:    location,
		Description: description,
	}}, nil
}

// ParseKind validates a raw content kind value.
func ParseKind(rawValue string) (ItemKind, error) {
	switch strings.ToLower(strings.TrimSpace(rawValue)) {
	case string(KindLink):
		return KindLink, nil
	case string(KindNote):
		return KindNote, nil
	case string(KindEvent):
		return KindEvent, nil
	default:
		return "", fmt.Errorf("%w: unknown content kind %q", ErrValidation, rawValue)
	}
}

// normalizeURL ensures the link URL parses and carries a scheme. Inputs
// without a scheme are prefixed with https.
func normalizeURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("%w: link url required", ErrValidation)
	}
	if len(trimmed) > maxURLLength {
		return "", fmt.Errorf("%w: link url exceeds %d characters", ErrValidation, maxURLLength)
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: invalid link url %q", ErrValidation, rawURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported url scheme %q", ErrValidation, parsed.Scheme)
	}
	return parsed.String(), nil
}

// SortEvents orders events for display: upcoming events ascending by date
// and time, then past events descending, with upcoming before past.
func SortEvents(events []Event, now time.Time) []Event {
	today := now.UTC().Format(dateLayout)

	var upcoming, past []Event
	for _, event := range events {
		if event.Date >= today {
			upcoming = append(upcoming, event)
		} else {
			past = append(past, event)
		}
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		return eventSortKey(upcoming[i]) < eventSortKey(upcoming[j])
	})
	sort.SliceStable(past, func(i, j int) bool {
		return eventSortKey(past[i]) > eventSortKey(past[j])
	})

	ordered := make([]Event, 0, len(events))
	ordered = append(ordered, upcoming...)
	ordered = append(ordered, past...)
	return ordered
}

func eventSortKey(event Event) string {
	return event.Date + " " + event.StartTime
}

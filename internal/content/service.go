package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pinboardly/pinboardly/internal/pinboard"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps a content operation failure with a dotted code.
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
	opServiceNew = "content.service.new"
	opAppend     = "content.append"
	opUpdate     = "content.update"
	opDelete     = "content.delete"
	opReorder    = "content.reorder"
	opCollection = "content.collection"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for new content rows.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig bundles the dependencies of the content service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service maintains the ordered link and note collections and the event
// collection of a pinboard.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the content service.
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

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Item is the flattened read view of a content item of any kind.
type Item struct {
	Kind        ItemKind
	ItemID      string
	PinboardID  string
	Title       string
	URL         string
	Description string
	Body        string
	Date        string
	StartTime   string
	Location    string
	Position    int
	CreatedAt   time.Time
}

// Collection is the full content of one pinboard in display order.
type Collection struct {
	Links  []Link
	Notes  []Note
	Events []Event
}

// Append creates a content item at the end of its collection. The new item
// receives position max+1 among its siblings, starting at 1.
func (s *Service) Append(ctx context.Context, owner pinboard.OwnerID, pinboardID string, command Command) (Item, error) {
	itemID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAppend, "id_generation_failed", err)
		return Item{}, newServiceError(opAppend, "id_generation_failed", err)
	}

	var created Item
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := verifyOwnership(tx, owner, pinboardID); err != nil {
			return newServiceError(opAppend, "parent_not_found", err)
		}

		count, err := s.countSiblings(tx, pinboardID, command.Kind)
		if err != nil {
			return newServiceError(opAppend, "count_failed", err)
		}
		if count >= capacityForKind(command.Kind) {
			return newServiceError(opAppend, "capacity_exceeded",
				fmt.Errorf("%w: %s cap is %d", ErrCapacityExceeded, command.Kind, capacityForKind(command.Kind)))
		}

		switch command.Kind {
		case KindLink:
			position, err := nextPosition(tx, &Link{}, pinboardID)
			if err != nil {
				return newServiceError(opAppend, "position_failed", err)
			}
			link := Link{
				ItemID:      itemID,
				PinboardID:  pinboardID,
				Title:       command.Link.Title,
				URL:         command.Link.URL,
				Description: command.Link.Description,
				Position:    position,
			}
			if err := tx.Create(&link).Error; err != nil {
				return newServiceError(opAppend, "insert_failed", err)
			}
			created = linkItem(link)
		case KindNote:
			position, err := nextPosition(tx, &Note{}, pinboardID)
			if err != nil {
				return newServiceError(opAppend, "position_failed", err)
			}
			note := Note{
				ItemID:     itemID,
				PinboardID: pinboardID,
				Title:      command.Note.Title,
				Body:       command.Note.Body,
				Position:   position,
			}
			if err := tx.Create(&note).Error; err != nil {
				return newServiceError(opAppend, "insert_failed", err)
			}
			created = noteItem(note)
		case KindEvent:
			event := Event{
				ItemID:      itemID,
				PinboardID:  pinboardID,
				Title:       command.Event.Title,
				Date:        command.Event.Date,
				StartTime:   command.Event.StartTime,
				Location:    command.Event.Location,
				Description: command.Event.Description,
			}
			if err := tx.Create(&event).Error; err != nil {
				return newServiceError(opAppend, "insert_failed", err)
			}
			created = eventItem(event)
		default:
			return newServiceError(opAppend, "invalid_kind",
				fmt.Errorf("%w: unknown content kind %q", ErrValidation, command.Kind))
		}
		return nil
	})
	if txErr != nil {
		s.logError(opAppend, "transaction_failed", txErr,
			zap.String("pinboard_id", pinboardID),
			zap.String("kind", string(command.Kind)))
		return Item{}, txErr
	}
	return created, nil
}

// Update replaces the editable fields of an existing item. The position is
// untouched; reordering is a separate operation.
func (s *Service) Update(ctx context.Context, owner pinboard.OwnerID, itemID string, command Command) (Item, error) {
	var updated Item
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch command.Kind {
		case KindLink:
			var link Link
			if err := takeItem(tx, &link, itemID); err != nil {
				return newServiceError(opUpdate, "not_found", err)
			}
			if err := verifyOwnership(tx, owner, link.PinboardID); err != nil {
				return newServiceError(opUpdate, "not_found", err)
			}
			link.Title = command.Link.Title
			link.URL = command.Link.URL
			link.Description = command.Link.Description
			if err := tx.Save(&link).Error; err != nil {
				return newServiceError(opUpdate, "save_failed", err)
			}
			updated = linkItem(link)
		case KindNote:
			var note Note
			if err := takeItem(tx, &note, itemID); err != nil {
				return newServiceError(opUpdate, "not_found", err)
			}
			if err := verifyOwnership(tx, owner, note.PinboardID); err != nil {
				return newServiceError(opUpdate, "not_found", err)
			}
			note.Title = command.Note.Title
			note.Body = command.Note.Body
			if err := tx.Save(&note).Error; err != nil {
				return newServiceError(opUpdate, "save_failed", err)
			}
			updated = noteItem(note)
		case KindEvent:
			var event Event
			if err := takeItem(tx, &event, itemID); err != nil {
				return newServiceError(opUpdate, "not_found", err)
			}
			if err := verifyOwnership(tx, owner, event.PinboardID); err != nil {
				return newServiceError(opUpdate, "not_found", err)
			}
			event.Title = command.Event.Title
			event.Date = command.Event.Date
			event.StartTime = command.Event.StartTime
			event.Location = command.Event.Location
			event.Description = command.Event.Description
			if err := tx.Save(&event).Error; err != nil {
				return newServiceError(opUpdate, "save_failed", err)
			}
			updated = eventItem(event)
		default:
			return newServiceError(opUpdate, "invalid_kind",
				fmt.Errorf("%w: unknown content kind %q", ErrValidation, command.Kind))
		}
		return nil
	})
	if txErr != nil {
		s.logError(opUpdate, "transaction_failed", txErr, zap.String("item_id", itemID))
		return Item{}, txErr
	}
	return updated, nil
}

// Delete removes an item. Remaining siblings keep their positions; gaps are
// permanent and harmless.
func (s *Service) Delete(ctx context.Context, owner pinboard.OwnerID, kind ItemKind, itemID string) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := modelForKind(kind)
		if err != nil {
			return newServiceError(opDelete, "invalid_kind", err)
		}
		parentID, err := takeParentID(tx, kind, itemID)
		if err != nil {
			return newServiceError(opDelete, "not_found", err)
		}
		if err := verifyOwnership(tx, owner, parentID); err != nil {
			return newServiceError(opDelete, "not_found", err)
		}
		if err := tx.Where("item_id = ?", itemID).Delete(model).Error; err != nil {
			return newServiceError(opDelete, "delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opDelete, "transaction_failed", txErr, zap.String("item_id", itemID))
		return txErr
	}
	return nil
}

// Reorder applies the caller's complete desired order to the link or note
// collection. The id list must match the current sibling set exactly; each
// identifier receives position index+1. Events cannot be reordered.
func (s *Service) Reorder(ctx context.Context, owner pinboard.OwnerID, pinboardID string, kind ItemKind, orderedIDs []string) error {
	if kind == KindEvent {
		return newServiceError(opReorder, "not_reorderable", ErrNotReorderable)
	}
	model, err := modelForKind(kind)
	if err != nil {
		return newServiceError(opReorder, "invalid_kind", err)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := verifyOwnership(tx, owner, pinboardID); err != nil {
			return newServiceError(opReorder, "parent_not_found", err)
		}

		var siblingIDs []string
		if err := tx.Model(model).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("pinboard_id = ?", pinboardID).
			Pluck("item_id", &siblingIDs).Error; err != nil {
			return newServiceError(opReorder, "sibling_select_failed", err)
		}
		if !sameIDSet(siblingIDs, orderedIDs) {
			return newServiceError(opReorder, "id_set_mismatch", ErrIDSetMismatch)
		}

		for index, itemID := range orderedIDs {
			if err := tx.Model(model).
				Where("item_id = ?", itemID).
				Update("position", index+1).Error; err != nil {
				return newServiceError(opReorder, "position_write_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opReorder, "transaction_failed", txErr,
			zap.String("pinboard_id", pinboardID),
			zap.String("kind", string(kind)))
		return txErr
	}
	return nil
}

// ListCollection loads all content of a pinboard in display order: links and
// notes by position, events upcoming-first (see SortEvents).
func (s *Service) ListCollection(ctx context.Context, pinboardID string) (Collection, error) {
	var collection Collection

	if err := s.db.WithContext(ctx).
		Where("pinboard_id = ?", pinboardID).
		Order("position ASC").
		Find(&collection.Links).Error; err != nil {
		s.logError(opCollection, "link_query_failed", err, zap.String("pinboard_id", pinboardID))
		return Collection{}, newServiceError(opCollection, "link_query_failed", err)
	}
	if err := s.db.WithContext(ctx).
		Where("pinboard_id = ?", pinboardID).
		Order("position ASC").
		Find(&collection.Notes).Error; err != nil {
		s.logError(opCollection, "note_query_failed", err, zap.String("pinboard_id", pinboardID))
		return Collection{}, newServiceError(opCollection, "note_query_failed", err)
	}
	if err := s.db.WithContext(ctx).
		Where("pinboard_id = ?", pinboardID).
		Find(&collection.Events).Error; err != nil {
		s.logError(opCollection, "event_query_failed", err, zap.String("pinboard_id", pinboardID))
		return Collection{}, newServiceError(opCollection, "event_query_failed", err)
	}

	collection.Events = SortEvents(collection.Events, s.clock())
	return collection, nil
}

func verifyOwnership(tx *gorm.DB, owner pinboard.OwnerID, pinboardID string) error {
	var board pinboard.Pinboard
	err := tx.Where("pinboard_id = ? AND owner_id = ?", pinboardID, owner.String()).
		Take(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func takeItem(tx *gorm.DB, model interface{}, itemID string) error {
	err := tx.Where("item_id = ?", itemID).Take(model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func takeParentID(tx *gorm.DB, kind ItemKind, itemID string) (string, error) {
	switch kind {
	case KindLink:
		var link Link
		if err := takeItem(tx, &link, itemID); err != nil {
			return "", err
		}
		return link.PinboardID, nil
	case KindNote:
		var note Note
		if err := takeItem(tx, &note, itemID); err != nil {
			return "", err
		}
		return note.PinboardID, nil
	default:
		var event Event
		if err := takeItem(tx, &event, itemID); err != nil {
			return "", err
		}
		return event.PinboardID, nil
	}
}

func (s *Service) countSiblings(tx *gorm.DB, pinboardID string, kind ItemKind) (int64, error) {
	model, err := modelForKind(kind)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := tx.Model(model).Where("pinboard_id = ?", pinboardID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func nextPosition(tx *gorm.DB, model interface{}, pinboardID string) (int, error) {
	var maxPosition int
	err := tx.Model(model).
		Where("pinboard_id = ?", pinboardID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&maxPosition).Error
	if err != nil {
		return 0, err
	}
	return maxPosition + 1, nil
}

func capacityForKind(kind ItemKind) int64 {
	switch kind {
	case KindLink:
		return MaxLinks
	case KindNote:
		return MaxNotes
	default:
		return MaxEvents
	}
}

func modelForKind(kind ItemKind) (interface{}, error) {
	switch kind {
	case KindLink:
		return &Link{}, nil
	case KindNote:
		return &Note{}, nil
	case KindEvent:
		return &Event{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown content kind %q", ErrValidation, kind)
	}
}

func sameIDSet(current, requested []string) bool {
	if len(current) != len(requested) {
		return false
	}
	seen := make(map[string]struct{}, len(current))
	for _, id := range current {
		seen[id] = struct{}{}
	}
	if len(seen) != len(current) {
		return false
	}
	for _, id := range requested {
		if _, ok := seen[id]; !ok {
			return false
		}
		delete(seen, id)
	}
	return len(seen) == 0
}

func linkItem(link Link) Item {
	return Item{
		Kind:        KindLink,
		ItemID:      link.ItemID,
		PinboardID:  link.PinboardID,
		Title:       link.Title,
		URL:         link.URL,
		Description: link.Description,
		Position:    link.Position,
		CreatedAt:   link.CreatedAt,
	}
}

func noteItem(note Note) Item {
	return Item{
		Kind:       KindNote,
		ItemID:     note.ItemID,
		PinboardID: note.PinboardID,
		Title:      note.Title,
		Body:       note.Body,
		Position:   note.Position,
		CreatedAt:  note.CreatedAt,
	}
}

func eventItem(event Event) Item {
	return Item{
		Kind:        KindEvent,
		ItemID:      event.ItemID,
		PinboardID:  event.PinboardID,
		Title:       event.Title,
		Date:        event.Date,
		StartTime:   event.StartTime,
		Location:    event.Location,
		Description: event.Description,
		CreatedAt:   event.CreatedAt,
	}
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
	s.logger.Error("content service error", attrs...)
}

package board

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues identifiers for new board and pin rows.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig bundles the dependencies of the legacy board service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service manages legacy boards and their pins, including the lazy position
// normalization that makes single-step reordering possible.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the board service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("board.service.new: %w", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("board.service.new: %w", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// CreateBoard provisions an empty legacy board for the account.
func (s *Service) CreateBoard(ctx context.Context, ownerID, title string) (Board, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return Board{}, fmt.Errorf("board.create: %w", ErrInvalidTitle)
	}
	boardID, err := s.idProvider.NewID()
	if err != nil {
		s.logError("board.create", "id_generation_failed", err)
		return Board{}, fmt.Errorf("board.create: %w", err)
	}
	created := Board{BoardID: boardID, OwnerID: ownerID, Title: trimmed}
	if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
		s.logError("board.create", "insert_failed", err)
		return Board{}, fmt.Errorf("board.create: %w", err)
	}
	return created, nil
}

// AppendPin adds a pin without an explicit position; unordered pins display
// newest-first until the board is normalized.
func (s *Service) AppendPin(ctx context.Context, ownerID, boardID, title, url, body string) (Pin, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return Pin{}, fmt.Errorf("board.append_pin: %w", ErrInvalidTitle)
	}
	pinID, err := s.idProvider.NewID()
	if err != nil {
		s.logError("board.append_pin", "id_generation_failed", err)
		return Pin{}, fmt.Errorf("board.append_pin: %w", err)
	}

	var created Pin
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := verifyBoardOwnership(tx, ownerID, boardID); err != nil {
			return fmt.Errorf("board.append_pin: %w", err)
		}
		created = Pin{
			PinID:   pinID,
			BoardID: boardID,
			Title:   trimmed,
			URL:     strings.TrimSpace(url),
			Body:    body,
		}
		if err := tx.Create(&created).Error; err != nil {
			return fmt.Errorf("board.append_pin: %w", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError("board.append_pin", "transaction_failed", txErr, zap.String("board_id", boardID))
		return Pin{}, txErr
	}
	return created, nil
}

// ListPins returns the pins in display order: explicit positions ascending,
// then unordered pins newest-first.
func (s *Service) ListPins(ctx context.Context, ownerID, boardID string) ([]Pin, error) {
	handle := s.db.WithContext(ctx)
	if err := verifyBoardOwnership(handle, ownerID, boardID); err != nil {
		return nil, fmt.Errorf("board.list_pins: %w", err)
	}
	var pins []Pin
	err := handle.
		Where("board_id = ?", boardID).
		Order("position IS NULL, position ASC, created_at DESC").
		Find(&pins).Error
	if err != nil {
		s.logError("board.list_pins", "query_failed", err, zap.String("board_id", boardID))
		return nil, fmt.Errorf("board.list_pins: %w", err)
	}
	return pins, nil
}

// DeletePin removes a pin; sibling positions are not renumbered.
func (s *Service) DeletePin(ctx context.Context, ownerID, pinID string) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pin, err := takeOwnedPin(tx, ownerID, pinID)
		if err != nil {
			return fmt.Errorf("board.delete_pin: %w", err)
		}
		if err := tx.Where("pin_id = ?", pin.PinID).Delete(&Pin{}).Error; err != nil {
			return fmt.Errorf("board.delete_pin: %w", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError("board.delete_pin", "transaction_failed", txErr, zap.String("pin_id", pinID))
		return txErr
	}
	return nil
}

// SwapNeighbour exchanges a pin's position with its nearest sibling in the
// given direction. A pin already at the extreme reports success without
// moving. When the target pin has no explicit position yet, the whole board
// is normalized first.
func (s *Service) SwapNeighbour(ctx context.Context, ownerID, pinID string, direction Direction) (SwapResult, error) {
	if direction != DirectionUp && direction != DirectionDown {
		return SwapResult{}, fmt.Errorf("board.swap: %w: %q", ErrInvalidDirection, direction)
	}

	var result SwapResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pin, err := takeOwnedPin(tx, ownerID, pinID)
		if err != nil {
			return fmt.Errorf("board.swap: %w", err)
		}

		if pin.Position == nil {
			if err := normalizePositions(tx, pin.BoardID); err != nil {
				return fmt.Errorf("board.swap: %w", err)
			}
			reloaded, err := takeOwnedPin(tx, ownerID, pinID)
			if err != nil {
				return fmt.Errorf("board.swap: %w", err)
			}
			pin = reloaded
		}

		neighbour, found, err := nearestNeighbour(tx, pin, direction)
		if err != nil {
			return fmt.Errorf("board.swap: %w", err)
		}
		if !found {
			result = SwapResult{Moved: false}
			return nil
		}

		pinPosition := *pin.Position
		neighbourPosition := *neighbour.Position
		if err := tx.Model(&Pin{}).Where("pin_id = ?", pin.PinID).
			Update("position", neighbourPosition).Error; err != nil {
			return fmt.Errorf("board.swap: %w", err)
		}
		if err := tx.Model(&Pin{}).Where("pin_id = ?", neighbour.PinID).
			Update("position", pinPosition).Error; err != nil {
			return fmt.Errorf("board.swap: %w", err)
		}
		result = SwapResult{Moved: true}
		return nil
	})
	if txErr != nil {
		s.logError("board.swap", "transaction_failed", txErr, zap.String("pin_id", pinID))
		return SwapResult{}, txErr
	}
	return result, nil
}

// NormalizePositions assigns strided positions to every pin of the board in
// current display order. It is idempotent: a second pass with no
// intervening mutation assigns the same positions.
func (s *Service) NormalizePositions(ctx context.Context, ownerID, boardID string) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := verifyBoardOwnership(tx, ownerID, boardID); err != nil {
			return fmt.Errorf("board.normalize: %w", err)
		}
		if err := normalizePositions(tx, boardID); err != nil {
			return fmt.Errorf("board.normalize: %w", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError("board.normalize", "transaction_failed", txErr, zap.String("board_id", boardID))
		return txErr
	}
	return nil
}

// normalizePositions orders the sibling set by position ascending with nulls
// last, then creation time descending, and writes positions 10, 20, 30, ...
func normalizePositions(tx *gorm.DB, boardID string) error {
	var pins []Pin
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("board_id = ?", boardID).
		Find(&pins).Error; err != nil {
		return err
	}

	sort.SliceStable(pins, func(i, j int) bool {
		left, right := pins[i], pins[j]
		switch {
		case left.Position != nil && right.Position != nil:
			return *left.Position < *right.Position
		case left.Position != nil:
			return true
		case right.Position != nil:
			return false
		default:
			return left.CreatedAt.After(right.CreatedAt)
		}
	})

	for index, pin := range pins {
		assigned := (index + 1) * positionStride
		if pin.Position != nil && *pin.Position == assigned {
			continue
		}
		if err := tx.Model(&Pin{}).Where("pin_id = ?", pin.PinID).
			Update("position", assigned).Error; err != nil {
			return err
		}
	}
	return nil
}

func nearestNeighbour(tx *gorm.DB, pin Pin, direction Direction) (Pin, bool, error) {
	query := tx.Where("board_id = ? AND position IS NOT NULL", pin.BoardID)
	if direction == DirectionUp {
		query = query.Where("position < ?", *pin.Position).Order("position DESC")
	} else {
		query = query.Where("position > ?", *pin.Position).Order("position ASC")
	}

	var neighbour Pin
	err := query.Take(&neighbour).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Pin{}, false, nil
	}
	if err != nil {
		return Pin{}, false, err
	}
	return neighbour, true, nil
}

func verifyBoardOwnership(tx *gorm.DB, ownerID, boardID string) error {
	var stored Board
	err := tx.Where("board_id = ? AND owner_id = ?", boardID, ownerID).Take(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func takeOwnedPin(tx *gorm.DB, ownerID, pinID string) (Pin, error) {
	var pin Pin
	err := tx.Where("pin_id = ?", pinID).Take(&pin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Pin{}, ErrNotFound
	}
	if err != nil {
		return Pin{}, err
	}
	if err := verifyBoardOwnership(tx, ownerID, pin.BoardID); err != nil {
		return Pin{}, err
	}
	return pin, nil
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
	s.logger.Error("board service error", attrs...)
}

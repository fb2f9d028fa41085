package board

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the board or pin does not exist or is not owned
	// by the requesting account.
	ErrNotFound = errors.New("board: not found")
	// ErrInvalidDirection indicates an unknown swap direction.
	ErrInvalidDirection = errors.New("board: invalid direction")
	// ErrInvalidTitle indicates an empty title.
	ErrInvalidTitle = errors.New("board: invalid title")
)

// positionStride spaces normalized pin positions so future swaps never
// require renumbering the whole set.
const positionStride = 10

// Direction selects the neighbour for a swap.
type Direction string

const (
	// DirectionUp swaps with the nearest smaller-position sibling.
	DirectionUp Direction = "up"
	// DirectionDown swaps with the nearest larger-position sibling.
	DirectionDown Direction = "down"
)

// ParseDirection validates a raw direction value.
func ParseDirection(rawValue string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(rawValue)) {
	case string(DirectionUp):
		return DirectionUp, nil
	case string(DirectionDown):
		return DirectionDown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, rawValue)
	}
}

// Board models the legacy board container.
type Board struct {
	BoardID   string    `gorm:"column:board_id;primaryKey;size:190;not null"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index:idx_boards_owner"`
	Title     string    `gorm:"column:title;size:320;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Board) TableName() string {
	return "boards"
}

// Pin models the legacy content unit. Position is nullable: nil means the
// pin has never been manually ordered and displays newest-first. The first
// reorder request on a board normalizes every nil position at a fixed
// stride before any swap proceeds.
type Pin struct {
	PinID     string    `gorm:"column:pin_id;primaryKey;size:190;not null"`
	BoardID   string    `gorm:"column:board_id;size:190;not null;index:idx_pins_board"`
	Title     string    `gorm:"column:title;size:320;not null"`
	URL       string    `gorm:"column:url;size:2048;not null;default:''"`
	Body      string    `gorm:"column:body;type:text;not null;default:''"`
	Position  *int      `gorm:"column:position"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Pin) TableName() string {
	return "pins"
}

// SwapResult reports whether a neighbour swap changed anything. A swap at
// the top or bottom of the list succeeds without moving.
type SwapResult struct {
	Moved bool
}

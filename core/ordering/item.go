package ordering

import (
	"time"

	"github.com/google/uuid"
)

// Item is a positioned record within a group
type Item struct {
	ID        uuid.UUID `json:"id"`
	GroupID   uuid.UUID `json:"group_id"`
	Position  int       `json:"position"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Placement assigns a new position to an item
type Placement struct {
	ItemID   uuid.UUID `json:"item_id"`
	Position int       `json:"position"`
}

// Report is the result of validating the order of a group
type Report struct {
	IsValid       bool  `json:"is_valid"`
	HasGaps       bool  `json:"has_gaps"`
	HasDuplicates bool  `json:"has_duplicates"`
	Actual        []int `json:"actual"`
	Expected      []int `json:"expected"`
}

// Stats summarizes a group
type Stats struct {
	Total            int     `json:"total"`
	MaxPosition      int     `json:"max_position"`
	AvgPayloadLength float64 `json:"avg_payload_length"`
}

// slot is an item's id with its current position, the unit the planners work on
type slot struct {
	ID       uuid.UUID
	Position int
}

// Package rsvp stores the guests' answers to a wedding invitation and
// aggregates them per wedding
package rsvp

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// errors returned by the store, test them with errors.Is
var (
	ErrNotFound         = errors.New("form not found")
	ErrAlreadyResponded = errors.New("guest has already responded")
	ErrAlreadyInvited   = errors.New("guest is already invited")
	ErrInvalidForm      = errors.New("invalid form")
	ErrInvalidQuery     = errors.New("invalid query")
)

// Side tells whose guest somebody is
type Side string

// all sides
const (
	SideUnknown Side = ""
	SideBride   Side = "bride"
	SideGroom   Side = "groom"
)

// Valid returns true for the known sides
func (s Side) Valid() bool {
	switch s {
	case SideUnknown, SideBride, SideGroom:
		return true
	}
	return false
}

// Form is a guest's entry for a wedding. IsAttend is nil while the guest has
// not responded yet.
type Form struct {
	ID             uuid.UUID `json:"form_id"`
	WeddingID      uuid.UUID `json:"wedding_id"`
	FullName       string    `json:"fullname"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	NumberOfGuests int       `json:"number_of_guests"`
	IsAttend       *bool     `json:"is_attend"`
	GuestOf        Side      `json:"guest_of"`
	CreatedAt      time.Time `json:"created_at"`
}

// Invitation is a guest invited by the couple, who has not responded yet
type Invitation struct {
	FullName       string `json:"fullname"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	NumberOfGuests int    `json:"number_of_guests"`
	GuestOf        Side   `json:"guest_of"`
}

// Response is a partial update of a form. Nil fields stay unchanged.
type Response struct {
	IsAttend       *bool   `json:"is_attend"`
	NumberOfGuests *int    `json:"number_of_guests"`
	GuestOf        *Side   `json:"guest_of"`
	Phone          *string `json:"phone"`
}

// Statistics aggregates the forms of a wedding
type Statistics struct {
	TotalInvited    int     `json:"total_invited"`
	Responded       int     `json:"responded"`
	Attending       int     `json:"attending"`
	NotAttending    int     `json:"not_attending"`
	Pending         int     `json:"pending"`
	GuestsAttending int     `json:"guests_attending"`
	BrideGuests     int     `json:"bride_guests"`
	GroomGuests     int     `json:"groom_guests"`
	ResponseRate    float64 `json:"response_rate"`
}

// Page is one page of a form listing
type Page struct {
	Forms      []Form `json:"forms"`
	TotalCount int    `json:"total_count"`
	Limit      int    `json:"limit"`
	Page       int    `json:"page"`
}

// PageCount returns the number of pages for the total count
func (p Page) PageCount() int {
	if p.TotalCount == 0 || p.Limit == 0 {
		return 0
	}
	return (p.TotalCount-1)/p.Limit + 1
}

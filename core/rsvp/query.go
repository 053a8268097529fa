package rsvp

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Attendance filters forms by their answer
type Attendance string

// supported attendance filters
const (
	AttendanceAny          Attendance = ""
	AttendanceAttending    Attendance = "attending"
	AttendanceNotAttending Attendance = "not_attending"
	AttendancePending      Attendance = "pending"
)

// SortField is a column forms can be sorted by
type SortField string

// supported sort fields
const (
	SortCreatedAt      SortField = "created_at"
	SortFullName       SortField = "fullname"
	SortNumberOfGuests SortField = "number_of_guests"
)

var attendanceConditions = map[Attendance]string{
	AttendanceAttending:    "is_attend IS TRUE",
	AttendanceNotAttending: "is_attend IS FALSE",
	AttendancePending:      "is_attend IS NULL",
}

var sortColumns = map[SortField]string{
	SortCreatedAt:      "created_at",
	SortFullName:       "lower(fullname)",
	SortNumberOfGuests: "number_of_guests",
}

// limits of a page
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query selects a page of forms. Only the enumerated filters and sort fields are
// accepted.
type Query struct {
	Attendance Attendance
	Side       Side
	Search     string
	Sort       SortField
	Descending bool
	Limit      int
	Page       int
}

// ParseQuery reads a query from URL parameters. Unknown values are rejected with
// ErrInvalidQuery, missing ones get defaults: newest first, DefaultLimit forms
// per page, first page.
func ParseQuery(values url.Values) (Query, error) {
	q := Query{
		Attendance: Attendance(values.Get("attendance")),
		Side:       Side(values.Get("side")),
		Search:     strings.TrimSpace(values.Get("search")),
		Sort:       SortField(values.Get("sort")),
		Descending: true,
		Limit:      DefaultLimit,
		Page:       1,
	}
	if q.Attendance != AttendanceAny {
		if _, ok := attendanceConditions[q.Attendance]; !ok {
			return q, fmt.Errorf("%w: attendance '%s'", ErrInvalidQuery, q.Attendance)
		}
	}
	if !q.Side.Valid() {
		return q, fmt.Errorf("%w: side '%s'", ErrInvalidQuery, q.Side)
	}
	if q.Sort == "" {
		q.Sort = SortCreatedAt
	} else if _, ok := sortColumns[q.Sort]; !ok {
		return q, fmt.Errorf("%w: sort '%s'", ErrInvalidQuery, q.Sort)
	}
	switch order := values.Get("order"); order {
	case "", "desc":
	case "asc":
		q.Descending = false
	default:
		return q, fmt.Errorf("%w: order '%s'", ErrInvalidQuery, order)
	}
	if s := values.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > MaxLimit {
			return q, fmt.Errorf("%w: limit '%s' not within 1..%d", ErrInvalidQuery, s, MaxLimit)
		}
		q.Limit = limit
	}
	if s := values.Get("page"); s != "" {
		page, err := strconv.Atoi(s)
		if err != nil || page < 1 {
			return q, fmt.Errorf("%w: page '%s'", ErrInvalidQuery, s)
		}
		q.Page = page
	}
	return q, nil
}

// where returns the conditions and parameters of the query, numbered after the
// wedding id which is always $1
func (q Query) where() (string, []interface{}) {
	conditions := []string{"wedding_id = $1"}
	var params []interface{}
	if c, ok := attendanceConditions[q.Attendance]; ok {
		conditions = append(conditions, c)
	}
	if q.Side != SideUnknown {
		params = append(params, string(q.Side))
		conditions = append(conditions, fmt.Sprintf("guest_of = $%d", len(params)+1))
	}
	if q.Search != "" {
		params = append(params, "%"+likeEscaper.Replace(q.Search)+"%")
		n := len(params) + 1
		conditions = append(conditions, fmt.Sprintf(`(fullname ILIKE $%d ESCAPE '\' OR email ILIKE $%d ESCAPE '\')`, n, n))
	}
	return strings.Join(conditions, " AND "), params
}

func (q Query) orderBy() string {
	column, ok := sortColumns[q.Sort]
	if !ok {
		column = sortColumns[SortCreatedAt]
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	return column + " " + direction + ", form_id"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

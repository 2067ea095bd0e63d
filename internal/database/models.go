package database

import (
	"database/sql"
	"time"
)

// User represents a record in the 'users' table.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Omit from JSON responses for security
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"-"`
}

// Section represents a record in the 'sections' table together with its
// finishing order from 'section_positions'.
//
// Team sports use the code/score pair, athletics uses gender and positions.
// Nothing stops a section from carrying both.
type Section struct {
	ID        int64
	Category  string
	Date      time.Time
	Finished  bool
	CodeA     sql.NullString
	CodeB     sql.NullString
	ScoreA    int
	ScoreB    int
	Gender    sql.NullString
	Positions []string
}

// SectionChanges lists the columns an update may touch. A nil field is left
// as stored. For the nullable strings a non-nil value with Valid=false clears
// the column. The id is intentionally absent.
type SectionChanges struct {
	Category  *string
	Date      *time.Time
	Finished  *bool
	CodeA     *sql.NullString
	CodeB     *sql.NullString
	ScoreA    *int
	ScoreB    *int
	Gender    *sql.NullString
	Positions *[]string
}

// IsEmpty reports whether no field is set.
func (c SectionChanges) IsEmpty() bool {
	return c.Category == nil && c.Date == nil && c.Finished == nil &&
		c.CodeA == nil && c.CodeB == nil && c.ScoreA == nil && c.ScoreB == nil &&
		c.Gender == nil && c.Positions == nil
}

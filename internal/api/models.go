package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/intermernet/scoreboard/internal/database"
)

// Column limits mirrored from the schema.
const (
	maxCategoryLen = 50
	maxCodeLen     = 2
	maxGenderLen   = 10
)

// SectionResponse is the wire shape of a section.
type SectionResponse struct {
	ID        int64    `json:"id"`
	Category  string   `json:"category"`
	Date      string   `json:"date"`
	Finished  bool     `json:"finished"`
	CodeA     *string  `json:"codeA"`
	CodeB     *string  `json:"codeB"`
	ScoreA    int      `json:"scoreA"`
	ScoreB    int      `json:"scoreB"`
	Gender    *string  `json:"gender"`
	Positions []string `json:"positions"`
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// toSectionResponse converts the database model into the public DTO.
func toSectionResponse(sec *database.Section) SectionResponse {
	positions := sec.Positions
	if positions == nil {
		positions = []string{}
	}
	return SectionResponse{
		ID:        sec.ID,
		Category:  sec.Category,
		Date:      sec.Date.UTC().Format(time.RFC3339Nano),
		Finished:  sec.Finished,
		CodeA:     nullStringPtr(sec.CodeA),
		CodeB:     nullStringPtr(sec.CodeB),
		ScoreA:    sec.ScoreA,
		ScoreB:    sec.ScoreB,
		Gender:    nullStringPtr(sec.Gender),
		Positions: positions,
	}
}

func toSectionResponseList(sections []*database.Section) []SectionResponse {
	responseList := make([]SectionResponse, len(sections))
	for i, sec := range sections {
		responseList[i] = toSectionResponse(sec)
	}
	return responseList
}

// optionalString tells apart a missing key, an explicit null and a value.
type optionalString struct {
	Set   bool
	Value sql.NullString
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = sql.NullString{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("expected a string or null")
	}
	o.Value = sql.NullString{String: s, Valid: true}
	return nil
}

// sectionPayload is the body accepted by create and update. Only these keys
// are allowed. The id key is tolerated so clients can send back a section they
// received, but it is never applied.
type sectionPayload struct {
	ID        json.RawMessage `json:"id"`
	Category  *string         `json:"category"`
	Date      *string         `json:"date"`
	Finished  *bool           `json:"finished"`
	CodeA     optionalString  `json:"codeA"`
	CodeB     optionalString  `json:"codeB"`
	ScoreA    *int            `json:"scoreA"`
	ScoreB    *int            `json:"scoreB"`
	Gender    optionalString  `json:"gender"`
	Positions *[]string       `json:"positions"`
}

// toChanges validates the payload and converts it into a partial update.
// The date is parsed before anything else is looked at.
func (p *sectionPayload) toChanges() (database.SectionChanges, error) {
	var changes database.SectionChanges

	if p.Date != nil {
		date, err := parseISODate(*p.Date)
		if err != nil {
			return changes, err
		}
		changes.Date = &date
	}

	if p.Category != nil {
		if err := validateCategory(*p.Category); err != nil {
			return changes, err
		}
		category := strings.TrimSpace(*p.Category)
		changes.Category = &category
	}

	if err := validateLength("codeA", p.CodeA, maxCodeLen); err != nil {
		return changes, err
	}
	if err := validateLength("codeB", p.CodeB, maxCodeLen); err != nil {
		return changes, err
	}
	if err := validateLength("gender", p.Gender, maxGenderLen); err != nil {
		return changes, err
	}

	if p.CodeA.Set {
		changes.CodeA = &p.CodeA.Value
	}
	if p.CodeB.Set {
		changes.CodeB = &p.CodeB.Value
	}
	if p.Gender.Set {
		changes.Gender = &p.Gender.Value
	}
	changes.Finished = p.Finished
	changes.ScoreA = p.ScoreA
	changes.ScoreB = p.ScoreB
	changes.Positions = p.Positions

	return changes, nil
}

// toSection builds a new section for the given category. The body's category
// key, if any, is ignored in favour of the path.
func (p *sectionPayload) toSection(category string) (*database.Section, error) {
	if err := validateCategory(category); err != nil {
		return nil, err
	}
	category = strings.TrimSpace(category)
	p.Category = nil

	changes, err := p.toChanges()
	if err != nil {
		return nil, err
	}

	sec := &database.Section{Category: category}
	if changes.Date != nil {
		sec.Date = *changes.Date
	}
	if changes.Finished != nil {
		sec.Finished = *changes.Finished
	}
	if changes.CodeA != nil {
		sec.CodeA = *changes.CodeA
	}
	if changes.CodeB != nil {
		sec.CodeB = *changes.CodeB
	}
	if changes.ScoreA != nil {
		sec.ScoreA = *changes.ScoreA
	}
	if changes.ScoreB != nil {
		sec.ScoreB = *changes.ScoreB
	}
	if changes.Gender != nil {
		sec.Gender = *changes.Gender
	}
	if changes.Positions != nil {
		sec.Positions = *changes.Positions
	}
	return sec, nil
}

func validateCategory(category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return errors.New("category must not be empty")
	}
	if len(category) > maxCategoryLen {
		return fmt.Errorf("category must be at most %d characters", maxCategoryLen)
	}
	return nil
}

func validateLength(field string, v optionalString, max int) error {
	if v.Value.Valid && len([]rune(v.Value.String)) > max {
		return fmt.Errorf("%s must be at most %d characters", field, max)
	}
	return nil
}

// isoLayouts are tried in order after a trailing Z has been removed.
// Values without an offset are taken as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseISODate parses an ISO-8601 date or datetime, tolerating a trailing
// UTC marker such as "2025-06-08T15:34:56.969Z".
func parseISODate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if strings.HasSuffix(value, "Z") || strings.HasSuffix(value, "z") {
		value = value[:len(value)-1]
	}

	if value != "" {
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t.UTC(), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected an ISO-8601 datetime", raw)
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a lookup by id or email matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
)

// DBorTx is an interface that allows functions to accept either a `*sql.DB` for single queries
// or a `*sql.Tx` for operations within a transaction.
type DBorTx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// --- squirrel helpers ---

func qExec(ctx context.Context, db DBorTx, q sq.Sqlizer) (sql.Result, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return db.ExecContext(ctx, query, args...)
}

func qQuery(ctx context.Context, db DBorTx, q sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return db.QueryContext(ctx, query, args...)
}

func qRow(ctx context.Context, db DBorTx, q sq.Sqlizer) (*sql.Row, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return db.QueryRowContext(ctx, query, args...), nil
}

// isUniqueViolation recognizes unique-constraint failures from both drivers.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE"))
	}
	return false
}

// --- User Queries ---

var userColumns = []string{"id", "email", "password_hash", "is_admin", "created_at"}

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	user := &User{}
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

// CreateUser inserts a user. A duplicate email yields ErrDuplicateEmail, which
// also covers two registrations racing for the same address.
func (s *Service) CreateUser(ctx context.Context, db DBorTx, email, passwordHash string, isAdmin bool) (*User, error) {
	q := s.sb.Insert("users").
		Columns("email", "password_hash", "is_admin", "created_at").
		Values(email, passwordHash, isAdmin, time.Now().UTC()).
		Suffix("RETURNING id")

	row, err := qRow(ctx, db, q)
	if err != nil {
		return nil, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return s.GetUserByID(ctx, db, id)
}

func (s *Service) GetUserByEmail(ctx context.Context, db DBorTx, email string) (*User, error) {
	row, err := qRow(ctx, db, s.sb.Select(userColumns...).From("users").Where(sq.Eq{"email": email}))
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (s *Service) GetUserByID(ctx context.Context, db DBorTx, id int64) (*User, error) {
	row, err := qRow(ctx, db, s.sb.Select(userColumns...).From("users").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

// EnsureAdminUser creates an admin with the given credentials unless a user with
// that email already exists. Existing users are left untouched.
func (s *Service) EnsureAdminUser(ctx context.Context, email, passwordHash string) (created bool, err error) {
	err = s.WriteTx(ctx, func(tx *sql.Tx) error {
		_, err := s.GetUserByEmail(ctx, tx, email)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if _, err := s.CreateUser(ctx, tx, email, passwordHash, true); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// --- Section Queries ---

var sectionColumns = []string{
	"id", "category", "date", "finished", "code_a", "code_b", "score_a", "score_b", "gender",
}

func scanSection(row interface{ Scan(...interface{}) error }) (*Section, error) {
	sec := &Section{}
	err := row.Scan(
		&sec.ID,
		&sec.Category,
		&sec.Date,
		&sec.Finished,
		&sec.CodeA,
		&sec.CodeB,
		&sec.ScoreA,
		&sec.ScoreB,
		&sec.Gender,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sec.Date = sec.Date.UTC()
	sec.Positions = []string{}
	return sec, nil
}

// CreateSection inserts a section and its positions. A zero Date is replaced
// by the current time.
func (s *Service) CreateSection(ctx context.Context, db DBorTx, sec *Section) (*Section, error) {
	date := sec.Date
	if date.IsZero() {
		date = time.Now()
	}

	q := s.sb.Insert("sections").
		Columns("category", "date", "finished", "code_a", "code_b", "score_a", "score_b", "gender").
		Values(sec.Category, date.UTC(), sec.Finished, sec.CodeA, sec.CodeB, sec.ScoreA, sec.ScoreB, sec.Gender).
		Suffix("RETURNING id")

	row, err := qRow(ctx, db, q)
	if err != nil {
		return nil, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return nil, fmt.Errorf("inserting section: %w", err)
	}

	if err := s.replacePositions(ctx, db, id, sec.Positions); err != nil {
		return nil, err
	}
	return s.GetSectionByID(ctx, db, id)
}

func (s *Service) GetSectionByID(ctx context.Context, db DBorTx, id int64) (*Section, error) {
	row, err := qRow(ctx, db, s.sb.Select(sectionColumns...).From("sections").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	sec, err := scanSection(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachPositions(ctx, db, []*Section{sec}); err != nil {
		return nil, err
	}
	return sec, nil
}

// ListSectionsByCategory returns every section in a category, oldest first.
func (s *Service) ListSectionsByCategory(ctx context.Context, db DBorTx, category string) ([]*Section, error) {
	q := s.sb.Select(sectionColumns...).
		From("sections").
		Where(sq.Eq{"category": category}).
		OrderBy("date ASC", "id ASC")
	return s.listSections(ctx, db, q)
}

// ListFinishedSections returns every finished section, newest first.
func (s *Service) ListFinishedSections(ctx context.Context, db DBorTx) ([]*Section, error) {
	q := s.sb.Select(sectionColumns...).
		From("sections").
		Where(sq.Eq{"finished": true}).
		OrderBy("date DESC", "id DESC")
	return s.listSections(ctx, db, q)
}

func (s *Service) listSections(ctx context.Context, db DBorTx, q sq.SelectBuilder) ([]*Section, error) {
	rows, err := qQuery(ctx, db, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sections := []*Section{}
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachPositions(ctx, db, sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// UpdateSection applies the non-nil fields of changes to the section with the
// given id and returns the stored result.
func (s *Service) UpdateSection(ctx context.Context, db DBorTx, id int64, changes SectionChanges) (*Section, error) {
	if changes.IsEmpty() {
		return s.GetSectionByID(ctx, db, id)
	}

	set := map[string]interface{}{}
	if changes.Category != nil {
		set["category"] = *changes.Category
	}
	if changes.Date != nil {
		set["date"] = changes.Date.UTC()
	}
	if changes.Finished != nil {
		set["finished"] = *changes.Finished
	}
	if changes.CodeA != nil {
		set["code_a"] = *changes.CodeA
	}
	if changes.CodeB != nil {
		set["code_b"] = *changes.CodeB
	}
	if changes.ScoreA != nil {
		set["score_a"] = *changes.ScoreA
	}
	if changes.ScoreB != nil {
		set["score_b"] = *changes.ScoreB
	}
	if changes.Gender != nil {
		set["gender"] = *changes.Gender
	}

	if len(set) > 0 {
		res, err := qExec(ctx, db, s.sb.Update("sections").SetMap(set).Where(sq.Eq{"id": id}))
		if err != nil {
			return nil, fmt.Errorf("updating section: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, ErrNotFound
		}
	} else if _, err := s.GetSectionByID(ctx, db, id); err != nil {
		// Only positions change; the section must still exist.
		return nil, err
	}

	if changes.Positions != nil {
		if err := s.replacePositions(ctx, db, id, *changes.Positions); err != nil {
			return nil, err
		}
	}
	return s.GetSectionByID(ctx, db, id)
}

// DeleteSection removes a section and its positions.
func (s *Service) DeleteSection(ctx context.Context, db DBorTx, id int64) error {
	// Positions are removed explicitly as well so the result does not depend on
	// the connection having foreign keys enabled.
	if _, err := qExec(ctx, db, s.sb.Delete("section_positions").Where(sq.Eq{"section_id": id})); err != nil {
		return err
	}
	res, err := qExec(ctx, db, s.sb.Delete("sections").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Position Queries ---

// positionBatchSize keeps each multi-row INSERT well under SQLite's bind
// variable limit (three parameters per row).
const positionBatchSize = 500

func (s *Service) replacePositions(ctx context.Context, db DBorTx, sectionID int64, athletes []string) error {
	if _, err := qExec(ctx, db, s.sb.Delete("section_positions").Where(sq.Eq{"section_id": sectionID})); err != nil {
		return fmt.Errorf("clearing positions: %w", err)
	}
	if len(athletes) == 0 {
		return nil
	}

	for start := 0; start < len(athletes); start += positionBatchSize {
		end := min(start+positionBatchSize, len(athletes))
		q := s.sb.Insert("section_positions").Columns("section_id", "position", "athlete")
		for i := start; i < end; i++ {
			q = q.Values(sectionID, i+1, athletes[i])
		}
		if _, err := qExec(ctx, db, q); err != nil {
			return fmt.Errorf("inserting positions: %w", err)
		}
	}
	return nil
}

// attachPositions loads the finishing order for all given sections in one query.
func (s *Service) attachPositions(ctx context.Context, db DBorTx, sections []*Section) error {
	if len(sections) == 0 {
		return nil
	}

	byID := make(map[int64]*Section, len(sections))
	ids := make([]int64, 0, len(sections))
	for _, sec := range sections {
		byID[sec.ID] = sec
		ids = append(ids, sec.ID)
	}

	q := s.sb.Select("section_id", "athlete").
		From("section_positions").
		Where(sq.Eq{"section_id": ids}).
		OrderBy("section_id", "position")
	rows, err := qQuery(ctx, db, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var sectionID int64
		var athlete string
		if err := rows.Scan(&sectionID, &athlete); err != nil {
			return err
		}
		if sec, ok := byID[sectionID]; ok {
			sec.Positions = append(sec.Positions, athlete)
		}
	}
	return rows.Err()
}

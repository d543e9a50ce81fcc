// Package sqlite implements types.AssignmentStore on SQLite (modernc.org/sqlite,
// no cgo).
//
// Interval bounds are stored as 65-digit zero-padded hex, so lexical order on
// the columns matches numeric order up to and including an end of 2^256. A
// partial unique index over (start_hex, end_hex) excluding EXPIRED rows
// enforces uniqueness of reserved intervals while letting expired intervals
// be reassigned verbatim.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/arloliu/puzzlepool/internal/store"
	"github.com/arloliu/puzzlepool/types"
	"github.com/gofrs/uuid/v5"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS assignments (
	id                 TEXT PRIMARY KEY,
	owner              TEXT NOT NULL,
	worker_id          TEXT NOT NULL DEFAULT '',
	start_hex          TEXT NOT NULL,
	end_hex            TEXT NOT NULL,
	status             TEXT NOT NULL,
	provenance         TEXT NOT NULL DEFAULT '',
	sample_identifiers TEXT NOT NULL DEFAULT '[]',
	solution           TEXT NOT NULL DEFAULT '',
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL,
	expires_at         INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_assignments_reserved_range
	ON assignments(start_hex, end_hex) WHERE status != 'EXPIRED';
CREATE INDEX IF NOT EXISTS idx_assignments_status_updated ON assignments(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_assignments_status_expires ON assignments(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_assignments_owner ON assignments(owner, worker_id, status);
`

// boundWidth fits every bound up to 2^256, which needs 65 hex digits.
const boundWidth = types.HexWidth + 1

// widenBounds pads bounds written by older versions at 64 digits.
const widenBounds = `
UPDATE assignments SET start_hex = '0' || start_hex WHERE length(start_hex) = 64;
UPDATE assignments SET end_hex = '0' || end_hex WHERE length(end_hex) = 64;
`

const columns = `id, owner, worker_id, start_hex, end_hex, status, provenance,
	sample_identifiers, solution, created_at, updated_at, expires_at`

// Store is an AssignmentStore backed by a SQLite database.
type Store struct {
	db *sql.DB
}

// Compile-time assertion that Store implements AssignmentStore.
var _ types.AssignmentStore = (*Store)(nil)

// Open opens (or creates) the database at path in WAL mode and applies the schema.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	return retryOnContention(func() error {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
		if err := s.addColumn("solution", "TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
		_, err := s.db.Exec(widenBounds)

		return err
	})
}

// addColumn adds a column to tables created before it existed.
func (s *Store) addColumn(name, decl string) error {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('assignments') WHERE name = ?`, name).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = s.db.Exec(`ALTER TABLE assignments ADD COLUMN ` + name + ` ` + decl)

	return err
}

// encodeBound renders x at boundWidth digits. ok is false when x does not fit.
func encodeBound(x *big.Int) (string, bool) {
	s := x.Text(16)
	if len(s) > boundWidth {
		return "", false
	}

	return strings.Repeat("0", boundWidth-len(s)) + s, true
}

// keyspaceFilter returns a WHERE fragment selecting rows that intersect ks.
// An upper bound too wide to encode exceeds every stored value and is dropped.
func keyspaceFilter(ks types.Keyspace) (string, []any) {
	start, ok := encodeBound(ks.Start)
	if !ok {
		return "0", nil
	}

	clause := "end_hex > ?"
	args := []any{start}
	if end, ok := encodeBound(ks.End); ok {
		clause += " AND start_hex < ?"
		args = append(args, end)
	}

	return clause, args
}

func encodeInterval(iv types.Interval) (string, string, error) {
	start, okStart := encodeBound(iv.Start)
	end, okEnd := encodeBound(iv.End)
	if !okStart || !okEnd {
		return "", "", fmt.Errorf("%w: %s exceeds %d hex digits", types.ErrInvalidRange, iv, boundWidth)
	}

	return start, end, nil
}

// FindReservedIntervals returns ACTIVE and COMPLETED intervals intersecting the keyspace.
func (s *Store) FindReservedIntervals(ctx context.Context, keyspace types.Keyspace) ([]types.Interval, error) {
	filter, args := keyspaceFilter(keyspace)
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_hex, end_hex FROM assignments
		 WHERE status IN ('ACTIVE', 'COMPLETED') AND `+filter, args...)
	if err != nil {
		return nil, fmt.Errorf("query reserved intervals: %w", err)
	}

	return scanIntervals(rows)
}

// FindExpiredIntervals returns EXPIRED intervals stalest first.
func (s *Store) FindExpiredIntervals(ctx context.Context, keyspace types.Keyspace, limit int) ([]types.Interval, error) {
	filter, args := keyspaceFilter(keyspace)
	query := `SELECT start_hex, end_hex FROM assignments
		WHERE status = 'EXPIRED' AND ` + filter + `
		ORDER BY updated_at ASC, created_at ASC, id ASC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expired intervals: %w", err)
	}

	return scanIntervals(rows)
}

// ExistsExact reports whether a reserved assignment holds exactly iv.
func (s *Store) ExistsExact(ctx context.Context, iv types.Interval) (bool, error) {
	start, okStart := encodeBound(iv.Start)
	end, okEnd := encodeBound(iv.End)
	if !okStart || !okEnd {
		// Such an interval can never have been stored.
		return false, nil
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments
		 WHERE start_hex = ? AND end_hex = ? AND status != 'EXPIRED'`,
		start, end,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query exact interval: %w", err)
	}

	return n > 0, nil
}

// Create persists a new ACTIVE assignment.
func (s *Store) Create(ctx context.Context, na types.NewAssignment) (*types.Assignment, error) {
	if err := store.ValidateNew(na); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate assignment id: %w", err)
	}
	a := store.Build(id.String(), na)

	startHex, endHex, err := encodeInterval(a.Interval)
	if err != nil {
		return nil, err
	}
	samples, err := encodeSamples(a.SampleIdentifiers)
	if err != nil {
		return nil, err
	}

	err = retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO assignments (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?)`,
			a.ID, a.Owner, a.WorkerID,
			startHex, endHex,
			string(a.Status), string(a.Provenance), samples,
			a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano(), a.ExpiresAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrUniqueViolation, a.Interval)
		}

		return nil, fmt.Errorf("insert assignment: %w", err)
	}

	return a, nil
}

// Get returns the assignment.
func (s *Store) Get(ctx context.Context, id string) (*types.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM assignments WHERE id = ?`, id)

	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}

	return a, err
}

// FindActiveByOwner returns the owner's newest ACTIVE assignment.
func (s *Store) FindActiveByOwner(ctx context.Context, owner, workerID string) (*types.Assignment, error) {
	query := `SELECT ` + columns + ` FROM assignments WHERE owner = ? AND status = 'ACTIVE'`
	args := []any{owner}
	if workerID != "" {
		query += " AND worker_id = ?"
		args = append(args, workerID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT 1"

	a, err := scanAssignment(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no active block for %s", types.ErrNotFound, owner)
	}

	return a, err
}

// UpdateStatus transitions an ACTIVE assignment.
func (s *Store) UpdateStatus(ctx context.Context, id string, status types.Status, now time.Time) error {
	if err := store.CheckTransition(id, types.StatusActive, status); err != nil {
		return err
	}

	var affected int64
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE assignments
			 SET status = ?, updated_at = ?,
			     expires_at = CASE WHEN ? = 'EXPIRED' AND expires_at > ? THEN ? ELSE expires_at END
			 WHERE id = ? AND status = 'ACTIVE'`,
			string(status), now.UnixNano(), string(status), now.UnixNano(), now.UnixNano(), id,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()

		return err
	})
	if err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	if affected > 0 {
		return nil
	}

	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	return store.CheckTransition(id, cur.Status, status)
}

// SetSampleIdentifiers replaces the checkwork identifiers of an assignment.
func (s *Store) SetSampleIdentifiers(ctx context.Context, id string, identifiers []string) error {
	samples, err := encodeSamples(identifiers)
	if err != nil {
		return err
	}

	var affected int64
	err = retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE assignments SET sample_identifiers = ? WHERE id = ?`, samples, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()

		return err
	})
	if err != nil {
		return fmt.Errorf("update sample identifiers: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}

	return nil
}

// SetSolution records the submission of an assignment.
func (s *Store) SetSolution(ctx context.Context, id string, solution types.Solution) error {
	data, err := json.Marshal(solution)
	if err != nil {
		return fmt.Errorf("encode solution: %w", err)
	}

	var affected int64
	err = retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE assignments SET solution = ? WHERE id = ?`, string(data), id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()

		return err
	})
	if err != nil {
		return fmt.Errorf("update solution: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}

	return nil
}

// SweepExpired expires every ACTIVE assignment past its deadline in one statement.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) ([]*types.Assignment, error) {
	var swept []*types.Assignment
	err := retryOnContention(func() error {
		rows, err := s.db.QueryContext(ctx,
			`UPDATE assignments SET status = 'EXPIRED', updated_at = ?
			 WHERE status = 'ACTIVE' AND expires_at <= ?
			 RETURNING `+columns,
			now.UnixNano(), now.UnixNano(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		swept = swept[:0]
		for rows.Next() {
			a, err := scanAssignment(rows)
			if err != nil {
				return err
			}
			swept = append(swept, a)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("sweep expired: %w", err)
	}

	return swept, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row scanner) (*types.Assignment, error) {
	var (
		a                                 types.Assignment
		startHex, endHex, status, samples string
		provenance, solution              string
		created, updated, expires         int64
	)

	err := row.Scan(&a.ID, &a.Owner, &a.WorkerID, &startHex, &endHex, &status, &provenance,
		&samples, &solution, &created, &updated, &expires)
	if err != nil {
		return nil, err
	}

	if a.Interval, err = decodeInterval(startHex, endHex); err != nil {
		return nil, fmt.Errorf("assignment %s: %w", a.ID, err)
	}
	if err := a.Status.UnmarshalText([]byte(status)); err != nil {
		return nil, fmt.Errorf("assignment %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(samples), &a.SampleIdentifiers); err != nil {
		return nil, fmt.Errorf("assignment %s: decode sample identifiers: %w", a.ID, err)
	}
	if solution != "" {
		a.Solution = new(types.Solution)
		if err := json.Unmarshal([]byte(solution), a.Solution); err != nil {
			return nil, fmt.Errorf("assignment %s: decode solution: %w", a.ID, err)
		}
	}

	a.Provenance = types.Provenance(provenance)
	a.CreatedAt = time.Unix(0, created).UTC()
	a.UpdatedAt = time.Unix(0, updated).UTC()
	a.ExpiresAt = time.Unix(0, expires).UTC()

	return &a, nil
}

func scanIntervals(rows *sql.Rows) ([]types.Interval, error) {
	defer rows.Close()

	var out []types.Interval
	for rows.Next() {
		var startHex, endHex string
		if err := rows.Scan(&startHex, &endHex); err != nil {
			return nil, err
		}
		iv, err := decodeInterval(startHex, endHex)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}

	return out, rows.Err()
}

func decodeInterval(startHex, endHex string) (types.Interval, error) {
	start, err := types.ParseHex(startHex)
	if err != nil {
		return types.Interval{}, fmt.Errorf("start_hex: %w", err)
	}
	end, err := types.ParseHex(endHex)
	if err != nil {
		return types.Interval{}, fmt.Errorf("end_hex: %w", err)
	}

	return types.Interval{Start: start, End: end}, nil
}

func encodeSamples(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode sample identifiers: %w", err)
	}

	return strings.TrimSpace(string(b)), nil
}

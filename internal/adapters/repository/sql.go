package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/okian/leadrank/internal/domain/model"
	"github.com/okian/leadrank/pkg/logger"
	"github.com/okian/leadrank/pkg/metrics"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed schema.sql
var schema string

// SQLStore is a Store over SQLite or PostgreSQL.
type SQLStore struct {
	db           *sql.DB
	driver       string
	maxOpenConns int
	logger       logger.Logger
}

// OpenSQL opens the database and applies the schema. For SQLite, dsn is a
// file path.
func OpenSQL(ctx context.Context, driver, dsn string, opts ...SQLOption) (*SQLStore, error) {
	s := &SQLStore{driver: driver, maxOpenConns: 10, logger: logger.Get().Named("repository")}
	for _, opt := range opts {
		opt(s)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("store dsn is required")
	}
	switch driver {
	case DriverSQLite:
		dsn = filepath.Clean(dsn) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
		s.maxOpenConns = 1
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	db.SetMaxOpenConns(s.maxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	s.db = db
	s.logger.Info(ctx, "lead store opened", logger.String("driver", driver))
	return s, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *SQLStore) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// bumpVersion must be the first statement of every write transaction so the
// scope row is locked before any lead row, the same order ApplyRanks uses.
func (s *SQLStore) bumpVersion(ctx context.Context, tx *sql.Tx, owner string) error {
	_, err := tx.ExecContext(ctx, s.rebind(`
INSERT INTO scope_versions (owner_id, version) VALUES (?, 1)
ON CONFLICT (owner_id) DO UPDATE SET version = scope_versions.version + 1
`), owner)
	if err != nil {
		return fmt.Errorf("bump scope version: %w", err)
	}
	return nil
}

// Create implements Store.
func (s *SQLStore) Create(ctx context.Context, lead model.Lead) error {
	return s.CreateMany(ctx, []model.Lead{lead})
}

// CreateMany implements Store.
func (s *SQLStore) CreateMany(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	start := time.Now()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, owner := range ownersOf(leads) {
			if err := s.bumpVersion(ctx, tx, owner); err != nil {
				return err
			}
		}
		for _, l := range leads {
			var exists int
			err := tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM leads WHERE id = ?`), l.ID).Scan(&exists)
			if err == nil {
				return fmt.Errorf("%w: %s", ErrDuplicateLead, l.ID)
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("check lead %s: %w", l.ID, err)
			}
			attrs, breakdown, err := encode(l)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, s.rebind(`
INSERT INTO leads (id, owner_id, name, attributes, score, breakdown, tier, lead_rank, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
`), l.ID, l.OwnerID, l.Name, attrs, l.Score, breakdown, string(l.Tier), l.CreatedAt.UTC().UnixNano(), l.UpdatedAt.UTC().UnixNano())
			if err != nil {
				return fmt.Errorf("insert lead %s: %w", l.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	s.updateTotal(ctx)
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, owner, id string) (model.Lead, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectLead+` WHERE id = ? AND owner_id = ?`), id, owner)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lead{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return l, err
}

// Update implements Store.
func (s *SQLStore) Update(ctx context.Context, lead model.Lead) error {
	start := time.Now()
	attrs, breakdown, err := encode(lead)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.bumpVersion(ctx, tx, lead.OwnerID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.rebind(`
UPDATE leads SET name = ?, attributes = ?, score = ?, breakdown = ?, tier = ?, updated_at = ?
WHERE id = ? AND owner_id = ?
`), lead.Name, attrs, lead.Score, breakdown, string(lead.Tier), lead.UpdatedAt.UTC().UnixNano(), lead.ID, lead.OwnerID)
		if err != nil {
			return fmt.Errorf("update lead %s: %w", lead.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", model.ErrNotFound, lead.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, owner, id string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.bumpVersion(ctx, tx, owner); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM leads WHERE id = ? AND owner_id = ?`), id, owner)
		if err != nil {
			return fmt.Errorf("delete lead %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", model.ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.updateTotal(ctx)
	return nil
}

// BulkDelete implements Store. A call that deletes nothing rolls back and
// leaves the scope version untouched.
func (s *SQLStore) BulkDelete(ctx context.Context, owner string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var deleted []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		deleted = deleted[:0]
		if err := s.bumpVersion(ctx, tx, owner); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, s.rebind(`DELETE FROM leads WHERE id = ? AND owner_id = ?`))
		if err != nil {
			return fmt.Errorf("prepare bulk delete: %w", err)
		}
		defer stmt.Close()
		for _, id := range ids {
			res, err := stmt.ExecContext(ctx, id, owner)
			if err != nil {
				return fmt.Errorf("delete lead %s: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				deleted = append(deleted, id)
			}
		}
		if len(deleted) == 0 {
			return errNothingDeleted
		}
		return nil
	})
	if errors.Is(err, errNothingDeleted) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.updateTotal(ctx)
	return deleted, nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context, owner string) ([]model.Lead, error) {
	snap, err := s.Snapshot(ctx, owner)
	if err != nil {
		return nil, err
	}
	SortForDisplay(snap.Leads)
	return snap.Leads, nil
}

// Snapshot implements Store. The version is read before the leads, so any
// write the lead rows reflect beyond it makes ApplyRanks conflict.
func (s *SQLStore) Snapshot(ctx context.Context, owner string) (model.ScopeSnapshot, error) {
	start := time.Now()
	snap := model.ScopeSnapshot{OwnerID: owner}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT version FROM scope_versions WHERE owner_id = ?`), owner).Scan(&snap.Version)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read scope version: %w", err)
		}
		rows, err := tx.QueryContext(ctx, s.rebind(selectLead+` WHERE owner_id = ?`), owner)
		if err != nil {
			return fmt.Errorf("list leads: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			l, err := scanLead(rows)
			if err != nil {
				return err
			}
			snap.Leads = append(snap.Leads, l)
		}
		return rows.Err()
	})
	if err != nil {
		return model.ScopeSnapshot{}, err
	}
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	return snap, nil
}

// ApplyRanks implements Store. On PostgreSQL the scope row is locked for the
// transaction; SQLite serializes writers on its single connection.
func (s *SQLStore) ApplyRanks(ctx context.Context, owner string, version int64, ranks []model.RankAssignment) error {
	start := time.Now()
	lock := ""
	if s.driver == DriverPostgres {
		lock = " FOR UPDATE"
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT version FROM scope_versions WHERE owner_id = ?`+lock), owner).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read scope version: %w", err)
		}
		if current != version {
			return fmt.Errorf("%w: scope %s at version %d, ranks computed at %d", model.ErrRankConflict, owner, current, version)
		}

		rows, err := tx.QueryContext(ctx, s.rebind(`SELECT id FROM leads WHERE owner_id = ?`), owner)
		if err != nil {
			return fmt.Errorf("list scope ids: %w", err)
		}
		ids := make(map[string]struct{})
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids[id] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if !coversScope(ids, ranks) {
			return fmt.Errorf("%w: assignments do not cover scope %s", model.ErrRankConflict, owner)
		}

		stmt, err := tx.PrepareContext(ctx, s.rebind(`UPDATE leads SET lead_rank = ? WHERE id = ? AND owner_id = ?`))
		if err != nil {
			return fmt.Errorf("prepare rank update: %w", err)
		}
		defer stmt.Close()
		for _, r := range ranks {
			if _, err := stmt.ExecContext(ctx, r.Rank, r.LeadID, owner); err != nil {
				return fmt.Errorf("write rank for %s: %w", r.LeadID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// Owners implements Store.
func (s *SQLStore) Owners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM leads ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()
	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}

func (s *SQLStore) updateTotal(ctx context.Context) {
	n, err := s.Count(ctx)
	if err != nil {
		s.logger.Warn(ctx, "lead count unavailable", logger.Error(err))
		return
	}
	metrics.UpdateTotalLeads(n)
}

const selectLead = `SELECT id, owner_id, name, attributes, score, breakdown, tier, lead_rank, created_at, updated_at FROM leads`

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(row scanner) (model.Lead, error) {
	var (
		l                model.Lead
		attrs, breakdown string
		tier             string
		rank             sql.NullInt64
		created, updated int64
	)
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Name, &attrs, &l.Score, &breakdown, &tier, &rank, &created, &updated); err != nil {
		return model.Lead{}, err
	}
	if err := json.Unmarshal([]byte(attrs), &l.Attributes); err != nil {
		return model.Lead{}, fmt.Errorf("decode attributes of %s: %w", l.ID, err)
	}
	if err := json.Unmarshal([]byte(breakdown), &l.Breakdown); err != nil {
		return model.Lead{}, fmt.Errorf("decode breakdown of %s: %w", l.ID, err)
	}
	l.Tier = model.Tier(tier)
	if rank.Valid {
		r := int(rank.Int64)
		l.Rank = &r
	}
	l.CreatedAt = time.Unix(0, created).UTC()
	l.UpdatedAt = time.Unix(0, updated).UTC()
	return l, nil
}

// ownersOf returns the distinct owners of leads in sorted order, so
// multi-scope writes lock scope rows in a fixed order.
func ownersOf(leads []model.Lead) []string {
	seen := make(map[string]struct{})
	owners := make([]string, 0, 1)
	for _, l := range leads {
		if _, ok := seen[l.OwnerID]; ok {
			continue
		}
		seen[l.OwnerID] = struct{}{}
		owners = append(owners, l.OwnerID)
	}
	sort.Strings(owners)
	return owners
}

func encode(l model.Lead) (string, string, error) {
	attrs, err := json.Marshal(l.Attributes)
	if err != nil {
		return "", "", fmt.Errorf("encode attributes: %w", err)
	}
	breakdown, err := json.Marshal(l.Breakdown)
	if err != nil {
		return "", "", fmt.Errorf("encode breakdown: %w", err)
	}
	return string(attrs), string(breakdown), nil
}

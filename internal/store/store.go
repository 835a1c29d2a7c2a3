package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/jking323/TaskHarvester/internal/extraction"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// timeLayout is fixed width so text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// dateLayout stores due dates without a time component.
const dateLayout = "2006-01-02"

// ErrNotFound is returned when an item id does not exist.
var ErrNotFound = errors.New("action item not found")

func init() {
	// sqlx does not know modernc's driver name.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Status is the review state of a stored item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted, StatusArchived:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// initialStatus is the status an item is stored with: rejected items are
// kept for audit but start out rejected.
func initialStatus(tier extraction.ReviewTier) Status {
	if tier == extraction.TierRejected {
		return StatusRejected
	}
	return StatusPending
}

// Item is a stored action item.
type Item struct {
	ID string `json:"id"`
	extraction.ActionItem
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Tier      extraction.ReviewTier
	Status    Status
	SourceRef string
	Limit     int
	Offset    int
}

// Config selects the database.
type Config struct {
	Driver string
	DSN    string
}

// Store persists action items through sqlx.
type Store struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
}

// Open connects to the database and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store dsn is required")
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		// One connection keeps :memory: databases shared and serialises writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	s := &Store{db: db, driver: cfg.Driver, now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s.driver == DriverSQLite {
		if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Handle implements extraction.Sink.
func (s *Store) Handle(ctx context.Context, r extraction.DocumentResult) error {
	_, err := s.SaveResult(ctx, r)
	return err
}

// SaveResult stores the items of a completed document in one transaction and
// returns them with their ids. Items previously saved for the same document
// ref are replaced. Failed and skipped results never reached a usable model
// reply, so they leave stored items untouched.
func (s *Store) SaveResult(ctx context.Context, r extraction.DocumentResult) ([]Item, error) {
	if r.Failure != nil || r.Skipped {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ref := r.Document.Ref
	if ref != "" {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM action_items WHERE source_ref = ?`), ref); err != nil {
			return nil, fmt.Errorf("replace items for %s: %w", ref, err)
		}
	}

	now := s.now().UTC()
	items := make([]Item, 0, len(r.Items))
	for i, ai := range r.Items {
		if ai.SourceRef == "" {
			ai.SourceRef = ref
		}
		item := Item{
			ID:         uuid.NewString(),
			ActionItem: ai,
			Status:     initialStatus(ai.Tier),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		row := toRow(item, i)
		if _, err := tx.NamedExecContext(ctx, insertItem, row); err != nil {
			return nil, fmt.Errorf("insert item %d for %s: %w", i, ref, err)
		}
		items = append(items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return items, nil
}

const insertItem = `INSERT INTO action_items (
	id, source_ref, source_type, position, title, description, assignee, due_date,
	priority, confidence, tier, status, context, created_at, updated_at
) VALUES (
	:id, :source_ref, :source_type, :position, :title, :description, :assignee, :due_date,
	:priority, :confidence, :tier, :status, :context, :created_at, :updated_at
)`

const selectItems = `SELECT id, source_ref, source_type, position, title, description, assignee,
	due_date, priority, confidence, tier, status, context, created_at, updated_at
FROM action_items`

// Get returns one item by id.
func (s *Store) Get(ctx context.Context, id string) (Item, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectItems+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("get item: %w", err)
	}
	return row.toItem()
}

// List returns items matching f, newest first and in extraction order within
// a document.
func (s *Store) List(ctx context.Context, f Filter) ([]Item, error) {
	var (
		conditions []string
		args       []any
	)
	if f.Tier != "" {
		conditions = append(conditions, "tier = ?")
		args = append(args, string(f.Tier))
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.SourceRef != "" {
		conditions = append(conditions, "source_ref = ?")
		args = append(args, f.SourceRef)
	}

	query := selectItems
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, source_ref, position"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		item, err := row.toItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// UpdateStatus changes the review status of an item.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) (Item, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return Item{}, err
	}
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE action_items SET status = ?, updated_at = ? WHERE id = ?`),
		string(status), s.now().UTC().Format(timeLayout), id)
	if err != nil {
		return Item{}, fmt.Errorf("update status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Item{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes an item.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM action_items WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats counts stored items.
type Stats struct {
	Total    int                           `json:"total"`
	ByTier   map[extraction.ReviewTier]int `json:"by_tier"`
	ByStatus map[Status]int                `json:"by_status"`
}

// Stats returns item counts grouped by tier and status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var rows []struct {
		Tier   string `db:"tier"`
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT tier, status, COUNT(*) AS n FROM action_items GROUP BY tier, status`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	st := Stats{
		ByTier:   make(map[extraction.ReviewTier]int),
		ByStatus: make(map[Status]int),
	}
	for _, r := range rows {
		st.Total += r.Count
		st.ByTier[extraction.ReviewTier(r.Tier)] += r.Count
		st.ByStatus[Status(r.Status)] += r.Count
	}
	return st, nil
}

var _ extraction.Sink = (*Store)(nil)

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/lia/internal/models"
)

// SQLiteReviewStore implements ReviewStore on a SQLite database.
type SQLiteReviewStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// reviewGroupRow mirrors a review_groups row.
type reviewGroupRow struct {
	ID             int64          `db:"id"`
	GroupIndex     int            `db:"group_index"`
	Topic          string         `db:"topic"`
	LastReviewDate sql.NullString `db:"last_review_date"`
	NextReviewDate sql.NullString `db:"next_review_date"`
	ReviewsCount   int            `db:"reviews_count"`
}

const selectGroups = `SELECT id, group_index, topic, last_review_date, next_review_date, reviews_count FROM review_groups`

// NewSQLiteReviewStore opens (or creates) the database at path and runs migrations.
func NewSQLiteReviewStore(path string, logger *slog.Logger) (*SQLiteReviewStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteReviewStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating db: %w", err)
	}
	return s, nil
}

func (s *SQLiteReviewStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS review_groups (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		group_index      INTEGER NOT NULL,
		topic            TEXT NOT NULL,
		last_review_date TEXT,
		next_review_date TEXT,
		reviews_count    INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_review_groups_topic ON review_groups(topic, group_index);
	`)
	return err
}

// Close closes the database.
func (s *SQLiteReviewStore) Close() error {
	return s.db.Close()
}

// GroupByID returns a single group.
func (s *SQLiteReviewStore) GroupByID(ctx context.Context, id int64) (models.ReviewGroup, error) {
	var row reviewGroupRow
	err := s.db.GetContext(ctx, &row, selectGroups+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReviewGroup{}, fmt.Errorf("review group %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.ReviewGroup{}, fmt.Errorf("getting review group %d: %w", id, err)
	}
	return row.toModel()
}

// Reconcile creates the groups a topic needs for recordCount records and
// returns how many were created.
func (s *SQLiteReviewStore) Reconcile(ctx context.Context, topic string, recordCount int) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.GetContext(ctx, &existing, `SELECT COUNT(*) FROM review_groups WHERE topic = ?`, topic); err != nil {
		return 0, fmt.Errorf("counting groups of %q: %w", topic, err)
	}

	required := RequiredGroups(recordCount)
	for index := existing; index < required; index++ {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO review_groups (topic, group_index, last_review_date, next_review_date, reviews_count)
			 VALUES (?, ?, NULL, NULL, 0)`, topic, index); err != nil {
			return 0, fmt.Errorf("inserting group %d of %q: %w", index, topic, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	created := max(required-existing, 0)
	if created > 0 {
		s.logger.Debug("created review groups", "topic", topic, "created", created, "records", recordCount)
	}
	return created, nil
}

// GroupsForTopic returns a topic's groups ordered by group index.
func (s *SQLiteReviewStore) GroupsForTopic(ctx context.Context, topic string) ([]models.ReviewGroup, error) {
	var rows []reviewGroupRow
	if err := s.db.SelectContext(ctx, &rows, selectGroups+` WHERE topic = ? ORDER BY group_index`, topic); err != nil {
		return nil, fmt.Errorf("listing groups of %q: %w", topic, err)
	}
	return toModels(rows)
}

// AllGroups returns every group ordered by id.
func (s *SQLiteReviewStore) AllGroups(ctx context.Context) ([]models.ReviewGroup, error) {
	var rows []reviewGroupRow
	if err := s.db.SelectContext(ctx, &rows, selectGroups+` ORDER BY id`); err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	return toModels(rows)
}

// Save writes the dates and reviews count of group.
func (s *SQLiteReviewStore) Save(ctx context.Context, group models.ReviewGroup) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE review_groups SET last_review_date = ?, next_review_date = ?, reviews_count = ? WHERE id = ?`,
		formatTime(group.LastReviewDate), formatTime(group.NextReviewDate), group.ReviewsCount, group.ID)
	if err != nil {
		return fmt.Errorf("updating review group %d: %w", group.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating review group %d: %w", group.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("review group %d: %w", group.ID, ErrNotFound)
	}
	return nil
}

// GroupCountForTopic returns the number of groups of a topic.
func (s *SQLiteReviewStore) GroupCountForTopic(ctx context.Context, topic string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM review_groups WHERE topic = ?`, topic); err != nil {
		return 0, fmt.Errorf("counting groups of %q: %w", topic, err)
	}
	return n, nil
}

func (r reviewGroupRow) toModel() (models.ReviewGroup, error) {
	last, err := parseTime(r.LastReviewDate)
	if err != nil {
		return models.ReviewGroup{}, fmt.Errorf("review group %d: last_review_date: %w", r.ID, err)
	}
	next, err := parseTime(r.NextReviewDate)
	if err != nil {
		return models.ReviewGroup{}, fmt.Errorf("review group %d: next_review_date: %w", r.ID, err)
	}
	return models.ReviewGroup{
		ID:             r.ID,
		GroupIndex:     r.GroupIndex,
		Topic:          r.Topic,
		LastReviewDate: last,
		NextReviewDate: next,
		ReviewsCount:   r.ReviewsCount,
	}, nil
}

func toModels(rows []reviewGroupRow) ([]models.ReviewGroup, error) {
	groups := make([]models.ReviewGroup, 0, len(rows))
	for _, r := range rows {
		g, err := r.toModel()
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

// legacyLayouts are the naive local timestamps written by earlier lia
// releases (Python isoformat and str of a datetime). The fraction is optional.
var legacyLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// ErrBadTimestamp is returned when a stored date is in no known format.
var ErrBadTimestamp = errors.New("unrecognized timestamp")

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s.String); err == nil {
		return &t, nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, s.String, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", s.String, ErrBadTimestamp)
}

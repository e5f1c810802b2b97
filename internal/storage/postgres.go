package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/cforum-migrate/internal/models"
	"github.com/xaenox/cforum-migrate/internal/views"
)

//go:embed migrations.sql
var migrations embed.FS

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

var indexName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ConnString renders the config as a lib/pq keyword/value string.
func (c DatabaseConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// PostgresStorage stores thread documents as JSONB rows. The columns next
// to the document carry the fields the secondary indexes are built on.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("dbname", config.DBName))

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) InsertThread(ctx context.Context, thread *models.Thread) error {
	doc, err := encodeThread(thread)
	if err != nil {
		return err
	}

	var firstAt sql.NullTime
	if first, ok := thread.FirstMessage(); ok {
		firstAt = sql.NullTime{Time: first.Date, Valid: true}
	}

	query := `
		INSERT INTO threads (id, tid, archived, first_message_at, doc)
		VALUES ($1, $2, $3, $4, $5)`

	// JSONB wants text; lib/pq would send a []byte as bytea.
	_, err = s.db.ExecContext(ctx, query, thread.ID, thread.TID, thread.Archived, firstAt, string(doc))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("error inserting thread %s: %w", thread.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("error inserting thread %s: %w", thread.ID, err)
	}

	return nil
}

func (s *PostgresStorage) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM threads WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("error getting thread %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting thread %s: %w", id, err)
	}
	return decodeThread(doc)
}

func (s *PostgresStorage) ThreadIDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `SELECT id FROM threads ORDER BY id COLLATE "C"`)
}

func (s *PostgresStorage) EnsureIndexes(ctx context.Context, indexes []views.Index) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ix := range indexes {
		ddl, err := indexDDL(ix)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("error creating index %s: %w", ix.Name, err)
		}

		def, err := encodeIndex(ix)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO thread_views (name, definition)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET definition = EXCLUDED.definition, updated_at = NOW()`,
			ix.Name, string(def))
		if err != nil {
			return fmt.Errorf("error saving view %s: %w", ix.Name, err)
		}

		s.logger.Info("Ensured index", zap.String("index", ix.Name), zap.String("field", ix.Field))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing indexes: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Lookup(ctx context.Context, index, key string) ([]string, error) {
	var def []byte
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM thread_views WHERE name = $1`, index).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup %s: %w", index, ErrUnknownIndex)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading view %s: %w", index, err)
	}

	ix, err := decodeIndex(def)
	if err != nil {
		return nil, err
	}

	query, args, err := lookupQuery(ix, key)
	if err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, query, args...)
}

func (s *PostgresStorage) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying thread ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning thread id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread ids: %w", err)
	}

	return ids, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func indexColumn(ix views.Index) (string, error) {
	switch ix.Field {
	case views.FieldTID:
		return "tid", nil
	case views.FieldArchived:
		return "archived", nil
	case views.FieldFirstMessageDate:
		return "first_message_at", nil
	}
	return "", fmt.Errorf("index %q: unsupported field %q", ix.Name, ix.Field)
}

func indexDDL(ix views.Index) (string, error) {
	if !indexName.MatchString(ix.Name) {
		return "", fmt.Errorf("index name %q is not a valid identifier", ix.Name)
	}
	column, err := indexColumn(ix)
	if err != nil {
		return "", err
	}

	ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON threads (%s)",
		pq.QuoteIdentifier("threads_"+ix.Name), column)
	if ix.ActiveOnly {
		ddl += " WHERE NOT archived"
	}
	return ddl, nil
}

func lookupQuery(ix views.Index, key string) (string, []any, error) {
	column, err := indexColumn(ix)
	if err != nil {
		return "", nil, err
	}

	var (
		where string
		args  []any
	)
	switch ix.Field {
	case views.FieldTID:
		where = column + " = $1"
		args = []any{key}
	case views.FieldArchived:
		archived, err := strconv.ParseBool(key)
		if err != nil {
			return "", nil, fmt.Errorf("index %q: bad key %q: %w", ix.Name, key, err)
		}
		where = column + " = $1"
		args = []any{archived}
	case views.FieldFirstMessageDate:
		from, to, err := ix.Range(key)
		if err != nil {
			return "", nil, err
		}
		where = column + " >= $1 AND " + column + " < $2"
		args = []any{from, to}
	}
	if ix.ActiveOnly {
		where += " AND NOT archived"
	}

	return `SELECT id FROM threads WHERE ` + where + ` ORDER BY id COLLATE "C"`, args, nil
}

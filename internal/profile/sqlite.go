package profile

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists profiles in a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// OpenSQLite opens the database at path and applies embedded migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.NewConfigInvalidError("profiles.path", "storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProfileTransport, "open sqlite db", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.ErrCodeProfileTransport, "ping sqlite db", err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.ErrCodeProfileTransport, "run migrations", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// applyMigrations runs each embedded migration once, in name order.
func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var n int
		if err := db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if n > 0 {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var createdAt, updatedAt int64
	if err := row.Scan(&p.UserID, &p.Email, &p.FullName, &p.TenantID, &p.AvatarURL, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

const selectProfile = `SELECT user_id, email, full_name, tenant_id, avatar_url, created_at, updated_at
	FROM profiles WHERE user_id = ?`

// Get returns one profile by user ID.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New(errors.ErrCodeProfileInvalid, "user ID cannot be empty").WithKind(errors.KindInvalid)
	}
	p, err := scanProfile(s.db.QueryRowContext(ctx, selectProfile, userID))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewProfileNotFoundError(userID)
		}
		return nil, errors.NewTransportError(errors.ErrCodeProfileTransport, "fetch profile", err)
	}
	return p, nil
}

// Merge applies a partial update inside a transaction, inserting a minimal row when absent.
func (s *SQLiteStore) Merge(ctx context.Context, userID string, u Update) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New(errors.ErrCodeProfileInvalid, "user ID cannot be empty").WithKind(errors.KindInvalid)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewTransportError(errors.ErrCodeProfileTransport, "merge profile", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	p, err := scanProfile(tx.QueryRowContext(ctx, selectProfile, userID))
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		p = &Profile{UserID: userID, CreatedAt: now, UpdatedAt: now}
		p.Apply(u, now)
		if err := insertProfile(ctx, tx, p); err != nil {
			return errors.NewTransportError(errors.ErrCodeProfileTransport, "merge profile", err)
		}
	case err != nil:
		return errors.NewTransportError(errors.ErrCodeProfileTransport, "merge profile", err)
	default:
		if !p.Apply(u, now) {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE profiles SET full_name = ?, tenant_id = ?, avatar_url = ?, updated_at = ? WHERE user_id = ?`,
			p.FullName, p.TenantID, p.AvatarURL, toMillis(p.UpdatedAt), userID,
		); err != nil {
			return errors.NewTransportError(errors.ErrCodeProfileTransport, "merge profile", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewTransportError(errors.ErrCodeProfileTransport, "merge profile", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertProfile(ctx context.Context, db execer, p *Profile) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, email, full_name, tenant_id, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   email = excluded.email,
		   full_name = excluded.full_name,
		   tenant_id = excluded.tenant_id,
		   avatar_url = excluded.avatar_url,
		   updated_at = excluded.updated_at`,
		p.UserID, p.Email, p.FullName, p.TenantID, p.AvatarURL, toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	return err
}

// Put writes a complete profile, keeping the original creation time on replace.
func (s *SQLiteStore) Put(ctx context.Context, p *Profile) error {
	if p == nil || strings.TrimSpace(p.UserID) == "" {
		return errors.New(errors.ErrCodeProfileInvalid, "profile needs a user ID").WithKind(errors.KindInvalid)
	}
	cp := p.Clone()
	now := s.now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if err := insertProfile(ctx, s.db, cp); err != nil {
		return errors.NewTransportError(errors.ErrCodeProfileTransport, "save profile", err)
	}
	return nil
}

// CountByTenant returns how many profiles belong to each tenant id.
func (s *SQLiteStore) CountByTenant(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tenant_id, COUNT(1) FROM profiles WHERE tenant_id != '' GROUP BY tenant_id`)
	if err != nil {
		return nil, errors.NewTransportError(errors.ErrCodeProfileTransport, "count profiles", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var tenantID string
		var n int
		if err := rows.Scan(&tenantID, &n); err != nil {
			return nil, errors.NewTransportError(errors.ErrCodeProfileTransport, "count profiles", err)
		}
		counts[tenantID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewTransportError(errors.ErrCodeProfileTransport, "count profiles", err)
	}
	return counts, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/safeher/safeher-backend/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// sqlite allows a single writer; one pooled connection avoids busy
	// errors and keeps :memory: databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			display_name TEXT,
			phone TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trusted_contacts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			email TEXT,
			relationship TEXT,
			is_primary INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS emergency_alerts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			location_name TEXT,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			resolved_at DATETIME
		);

		CREATE INDEX IF NOT EXISTS idx_contacts_user_id ON trusted_contacts(user_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_user_id ON emergency_alerts(user_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON emergency_alerts(created_at);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) CreateAlert(ctx context.Context, a *models.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emergency_alerts (id, user_id, latitude, longitude, location_name, status, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Latitude, a.Longitude, a.LocationName, string(a.Status), a.CreatedAt, a.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting alert: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, latitude, longitude, location_name, status, created_at, resolved_at
		FROM emergency_alerts WHERE id = ?`, id)

	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning alert: %w", err)
	}
	return a, nil
}

func (s *SQLiteDB) ListAlertsByUser(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, latitude, longitude, location_name, status, created_at, resolved_at
		FROM emergency_alerts WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]models.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert row: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteDB) ResolveAlert(ctx context.Context, id string, status models.AlertStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE emergency_alerts SET status = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		string(status), time.Now().UTC(), id, string(models.AlertStatusActive),
	)
	if err != nil {
		return fmt.Errorf("error resolving alert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) ListContactsByUser(ctx context.Context, userID string) ([]models.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, phone, email, relationship, is_primary, created_at
		FROM trusted_contacts WHERE user_id = ?
		ORDER BY is_primary DESC, created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]models.Contact, 0)
	for rows.Next() {
		var c models.Contact
		var email, relationship sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Phone, &email, &relationship, &c.IsPrimary, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning contact row: %w", err)
		}
		if email.Valid {
			c.Email = &email.String
		}
		if relationship.Valid {
			c.Relationship = &relationship.String
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *SQLiteDB) AddContact(ctx context.Context, c *models.Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trusted_contacts (id, user_id, name, phone, email, relationship, is_primary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.Phone, c.Email, c.Relationship, c.IsPrimary, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting contact: %w", err)
	}
	return nil
}

func (s *SQLiteDB) DeleteContact(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM trusted_contacts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("error deleting contact: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPrimaryContact runs clear-all and set-one inside one transaction.
// The commit serializes against any concurrent set-primary for the same
// user, so the one-primary-per-user invariant holds under interleaving.
func (s *SQLiteDB) SetPrimaryContact(ctx context.Context, userID, contactID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE trusted_contacts SET is_primary = 0 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("error clearing primary flags: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE trusted_contacts SET is_primary = 1 WHERE id = ? AND user_id = ?`, contactID, userID)
	if err != nil {
		return fmt.Errorf("error setting primary flag: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetDisplayName(ctx context.Context, userID string) (string, error) {
	var name sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT display_name FROM profiles WHERE id = ?`, userID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("error querying profile: %w", err)
	}
	return name.String, nil
}

// UpsertProfile exists for seeding and tests; profile editing proper is
// outside the dispatch pipeline.
func (s *SQLiteDB) UpsertProfile(ctx context.Context, id, displayName, phone string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, display_name, phone, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, phone = excluded.phone`,
		id, displayName, phone, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("error upserting profile: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (*models.Alert, error) {
	var a models.Alert
	var lat, lon sql.NullFloat64
	var name sql.NullString
	var status string
	var resolvedAt sql.NullTime

	if err := row.Scan(&a.ID, &a.UserID, &lat, &lon, &name, &status, &a.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}

	if lat.Valid {
		a.Latitude = &lat.Float64
	}
	if lon.Valid {
		a.Longitude = &lon.Float64
	}
	if name.Valid {
		a.LocationName = &name.String
	}
	a.Status = models.AlertStatus(status)
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	return &a, nil
}

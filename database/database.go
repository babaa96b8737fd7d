package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"threatsense/config"
	"threatsense/models"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// Database is the audit log: registered users and their analysis history
type Database struct {
	db     *sqlx.DB
	driver string
}

// NewDatabase opens a connection pool for the configured driver and waits for the server to answer
func NewDatabase(ctx context.Context, cfg *config.Config) (*Database, error) {
	db, err := sqlx.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection with exponential backoff retry
	waitInterval := time.Second
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		pingErr := db.PingContext(pingCtx)
		cancel()
		if pingErr == nil {
			break
		}
		log.Warnf("Database connection failed, retrying in %v: %v", waitInterval, pingErr)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, fmt.Errorf("database ping aborted: %w", pingErr)
		case <-time.After(waitInterval):
		}
		waitInterval = min(waitInterval*2, 30*time.Second)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Infof("Connected to %s database %s@%s:%s", cfg.DBDriver, cfg.DBName, cfg.DBHost, cfg.DBPort)
	return &Database{db: db, driver: cfg.DBDriver}, nil
}

// NewWithDB wraps an existing connection, e.g. a sqlmock one
func NewWithDB(db *sql.DB, driver string) *Database {
	return &Database{db: sqlx.NewDb(db, driver), driver: driver}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// EnsureSchema creates the users and analysis_logs tables if they don't exist
func (d *Database) EnsureSchema(ctx context.Context) error {
	statements := mysqlSchema
	if d.driver == config.DriverPostgres {
		statements = postgresSchema
	}

	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.Info("Audit log schema verified")
	return nil
}

// GetUserByEmail returns ErrNotFound when no user has that email
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := d.db.GetContext(ctx, &user,
		d.db.Rebind(`SELECT id, name, email, created_at FROM users WHERE email = ?`),
		strings.TrimSpace(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// GetUserByID returns ErrNotFound when no user has that id
func (d *Database) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.db.GetContext(ctx, &user,
		d.db.Rebind(`SELECT id, name, email, created_at FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a new user with a generated id
func (d *Database) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	user := &models.User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		CreatedAt: time.Now().UTC(),
	}

	_, err := d.db.ExecContext(ctx,
		d.db.Rebind(`INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`),
		user.ID, user.Name, user.Email, user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetOrCreateGuestUser returns the shared guest account used for anonymous uploads
func (d *Database) GetOrCreateGuestUser(ctx context.Context, name, email string) (*models.User, error) {
	user, err := d.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user, err = d.CreateUser(ctx, name, email)
	if err != nil {
		// another request may have created it first
		if existing, getErr := d.GetUserByEmail(ctx, email); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	log.Infof("Created guest user %s", user.ID)
	return user, nil
}

// SaveAnalysisLog appends an entry. ID and Timestamp are filled in when empty.
func (d *Database) SaveAnalysisLog(ctx context.Context, entry *models.AnalysisLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := d.db.NamedExecContext(ctx, `
		INSERT INTO analysis_logs (
			id, user_id, filename, classification, people_count,
			source, report_summary, severity_score, timestamp
		) VALUES (
			:id, :user_id, :filename, :classification, :people_count,
			:source, :report_summary, :severity_score, :timestamp
		)`, entry)
	if err != nil {
		return fmt.Errorf("failed to save analysis log: %w", err)
	}
	return nil
}

// GetAnalysisLogs returns a user's most recent entries, newest first
func (d *Database) GetAnalysisLogs(ctx context.Context, userID string, limit int) ([]models.AnalysisLog, error) {
	logs := []models.AnalysisLog{}
	err := d.db.SelectContext(ctx, &logs, d.db.Rebind(`
		SELECT id, user_id, filename, classification, people_count,
			source, report_summary, severity_score, timestamp
		FROM analysis_logs
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis logs: %w", err)
	}
	return logs, nil
}

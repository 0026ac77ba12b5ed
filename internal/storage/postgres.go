package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"vidscribe/pkg/logger"
	"vidscribe/pkg/model"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrTranscriptNotFound = errors.New("transcript not found")
)

const taskColumns = `id, video_path, audio_path, language_code, chat_id, status,
		operation_id, attempts, error_stage, error_text, meta, created_at, updated_at`

type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to the database and applies pending migrations from migrationsDir
func NewPostgresStorage(ctx context.Context, databaseURL, migrationsDir string) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established")

	if err := runMigrations(databaseURL, migrationsDir, false); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// ResetMigrations drops all tables and re-runs migrations (for development)
func ResetMigrations(databaseURL, migrationsDir string) error {
	logger.Warn("Resetting database - this will drop all data!")
	return runMigrations(databaseURL, migrationsDir, true)
}

func runMigrations(databaseURL, migrationsDir string, reset bool) error {
	migrationsURL, err := migrationsSource(migrationsDir)
	if err != nil {
		return err
	}

	logger.Info("Running migrations", zap.String("path", migrationsURL))

	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}
	db := stdlib.OpenDB(*connConfig)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if reset {
		if err := m.Drop(); err != nil {
			return fmt.Errorf("failed to drop database: %w", err)
		}
		logger.Info("Database dropped successfully")
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No new migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info("Migrations applied successfully")
	return nil
}

// migrationsSource turns a directory into a file:// URL (works on both Windows and Unix)
func migrationsSource(dir string) (string, error) {
	if dir == "" {
		dir = "migrations"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get migrations path: %w", err)
	}
	if runtime.GOOS == "windows" {
		u := &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
		return u.String(), nil
	}
	return fmt.Sprintf("file://%s", abs), nil
}

// Closes the database connection pool
func (s *PostgresStorage) Close() {
	s.pool.Close()
}

// CreateTask inserts a new task into the database
func (s *PostgresStorage) CreateTask(ctx context.Context, task *model.Task) error {
	query := `INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		task.ID,
		task.VideoPath,
		task.AudioPath,
		task.LanguageCode,
		task.ChatID,
		task.Status,
		task.OperationID,
		task.Attempts,
		task.ErrorStage,
		task.ErrorText,
		task.Meta,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetTaskByID retrieves a task by its ID
func (s *PostgresStorage) GetTaskByID(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	var task model.Task
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&task.ID,
		&task.VideoPath,
		&task.AudioPath,
		&task.LanguageCode,
		&task.ChatID,
		&task.Status,
		&task.OperationID,
		&task.Attempts,
		&task.ErrorStage,
		&task.ErrorText,
		&task.Meta,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &task, nil
}

// UpdateTask updates a full task
func (s *PostgresStorage) UpdateTask(ctx context.Context, task *model.Task) error {
	query := `
		UPDATE tasks
		SET audio_path = $2, status = $3, operation_id = $4, attempts = $5,
		    error_stage = $6, error_text = $7, meta = $8, updated_at = $9
		WHERE id = $1`

	result, err := s.pool.Exec(ctx, query,
		task.ID,
		task.AudioPath,
		task.Status,
		task.OperationID,
		task.Attempts,
		task.ErrorStage,
		task.ErrorText,
		task.Meta,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// CreateTranscript inserts a new transcript, replacing an earlier one for the same task
func (s *PostgresStorage) CreateTranscript(ctx context.Context, transcript *model.Transcript) error {
	query := `
		INSERT INTO transcripts (id, task_id, text, lines, segments, cached, raw_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (task_id) DO UPDATE
		SET text = EXCLUDED.text, lines = EXCLUDED.lines, segments = EXCLUDED.segments,
		    cached = EXCLUDED.cached, raw_response = EXCLUDED.raw_response, created_at = EXCLUDED.created_at`

	segments := transcript.Segments
	if segments == nil {
		segments = []string{}
	}

	_, err := s.pool.Exec(ctx, query,
		transcript.ID,
		transcript.TaskID,
		transcript.Text,
		transcript.Lines,
		segments,
		transcript.Cached,
		transcript.RawResponse,
		transcript.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transcript: %w", err)
	}

	return nil
}

// GetTranscriptByTaskID retrieves a transcript by task ID
func (s *PostgresStorage) GetTranscriptByTaskID(ctx context.Context, taskID string) (*model.Transcript, error) {
	query := `
		SELECT id, task_id, text, lines, segments, cached, raw_response, created_at
		FROM transcripts
		WHERE task_id = $1`

	var transcript model.Transcript
	err := s.pool.QueryRow(ctx, query, taskID).Scan(
		&transcript.ID,
		&transcript.TaskID,
		&transcript.Text,
		&transcript.Lines,
		&transcript.Segments,
		&transcript.Cached,
		&transcript.RawResponse,
		&transcript.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTranscriptNotFound
		}
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}

	return &transcript, nil
}

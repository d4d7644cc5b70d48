package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mathlens/mathlens/internal/script"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// timeLayout is fixed-width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

type Repository interface {
	Create(ctx context.Context, g *Generation) error
	Get(ctx context.Context, id string) (*Generation, error)
	List(ctx context.Context, limit int) ([]*Generation, error)
	UpdateStatus(ctx context.Context, id, status string) error
	RecordScript(ctx context.Context, id string, origin script.Origin, fixes []script.Fix, scriptPath string) error
	Complete(ctx context.Context, id string, o Outcome) error
	Fail(ctx context.Context, id, code, msg string) error
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const selectColumns = `
	SELECT id, scene_name, question, prompt_override, status, origin, fixes,
		script_path, video_path, video_url, static_video_url,
		poll_attempts, exit_code, duration_ms, error_code, error, created_at, updated_at
	FROM generations`

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(timeLayout)
}

func (r *SQLiteRepository) Create(ctx context.Context, g *Generation) error {
	if g.Status == "" {
		g.Status = StatusPending
	}
	now := r.now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO generations (id, scene_name, question, prompt_override, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.SceneName, g.Question, boolToInt(g.PromptOverride), g.Status,
		g.CreatedAt.UTC().Format(timeLayout), g.UpdatedAt.Format(timeLayout))
	return err
}

// Get returns the generation with id, or nil if there is none.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Generation, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	g, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// List returns the most recent generations first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*Generation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.exec(ctx, `UPDATE generations SET status = ?, updated_at = ? WHERE id = ?`,
		status, r.timestamp(), id)
}

// RecordScript stores how the script was obtained and moves the generation
// to the rendering stage.
func (r *SQLiteRepository) RecordScript(ctx context.Context, id string, origin script.Origin, fixes []script.Fix, scriptPath string) error {
	fixesJSON, err := encodeFixes(fixes)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
		UPDATE generations
		SET status = ?, origin = ?, fixes = ?, script_path = ?, updated_at = ?
		WHERE id = ?
	`, StatusRendering, string(origin), fixesJSON, nullString(scriptPath), r.timestamp(), id)
}

func (r *SQLiteRepository) Complete(ctx context.Context, id string, o Outcome) error {
	return r.exec(ctx, `
		UPDATE generations
		SET status = ?, video_path = ?, video_url = ?, static_video_url = ?,
			poll_attempts = ?, exit_code = ?, duration_ms = ?, updated_at = ?
		WHERE id = ?
	`, StatusCompleted, nullString(o.VideoPath), nullString(o.VideoURL), nullString(o.StaticVideoURL),
		o.PollAttempts, o.ExitCode, o.Duration.Milliseconds(), r.timestamp(), id)
}

func (r *SQLiteRepository) Fail(ctx context.Context, id, code, msg string) error {
	return r.exec(ctx, `
		UPDATE generations SET status = ?, error_code = ?, error = ?, updated_at = ? WHERE id = ?
	`, StatusFailed, nullString(code), nullString(msg), r.timestamp(), id)
}

func (r *SQLiteRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("generation %s: %w", args[len(args)-1], sql.ErrNoRows)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(s scanner) (*Generation, error) {
	var g Generation
	var override int
	var origin, fixes, scriptPath, videoPath, videoURL, staticURL, errCode, errMsg sql.NullString
	var exitCode sql.NullInt64
	var createdAt, updatedAt string

	err := s.Scan(&g.ID, &g.SceneName, &g.Question, &override, &g.Status, &origin, &fixes,
		&scriptPath, &videoPath, &videoURL, &staticURL,
		&g.PollAttempts, &exitCode, &g.DurationMs, &errCode, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	g.PromptOverride = override != 0
	g.Origin = origin.String
	g.ScriptPath = scriptPath.String
	g.VideoPath = videoPath.String
	g.VideoURL = videoURL.String
	g.StaticVideoURL = staticURL.String
	g.ErrorCode = errCode.String
	g.Error = errMsg.String
	if exitCode.Valid {
		code := int(exitCode.Int64)
		g.ExitCode = &code
	}
	if fixes.Valid && fixes.String != "" {
		if err := json.Unmarshal([]byte(fixes.String), &g.Fixes); err != nil {
			return nil, fmt.Errorf("decode fixes for %s: %w", g.ID, err)
		}
	}
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return &g, nil
}

// parseTime accepts timeLayout and plain RFC3339, which startup recovery
// writes.
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func encodeFixes(fixes []script.Fix) (sql.NullString, error) {
	if len(fixes) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(fixes)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

package task

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Limits applied to task fields, measured in characters, not bytes.
// Overlong values are truncated silently (logged at info), never
// rejected.
const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 1000
)

// Task is a single to-do item owned by one user.
type Task struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusFilter selects which tasks a listing returns.
type StatusFilter string

// Valid status filters.
const (
	StatusAll       StatusFilter = "all"
	StatusPending   StatusFilter = "pending"
	StatusCompleted StatusFilter = "completed"
)

// ParseStatus normalizes a status filter string. An empty string
// defaults to StatusAll.
func ParseStatus(s string) (StatusFilter, error) {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusPending:
		return StatusPending, nil
	case StatusCompleted:
		return StatusCompleted, nil
	default:
		return "", &ValidationError{Msg: fmt.Sprintf("invalid status '%s'. Must be 'all', 'pending', or 'completed'", s)}
	}
}

// Counts summarizes a user's tasks across all statuses.
type Counts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

// Store is a SQLite-backed task store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates the task store and its schema.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger.With("store", "task")}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// normalizeTitle trims and truncates a title. Empty after trimming is
// a validation error.
func (s *Store) normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &ValidationError{Msg: "title cannot be empty or whitespace only"}
	}
	if r := []rune(title); len(r) > MaxTitleLen {
		s.logger.Info("title truncated", "from", len(r), "to", MaxTitleLen)
		title = string(r[:MaxTitleLen])
	}
	return title, nil
}

// normalizeDescription trims and truncates a description. Empty is allowed.
func (s *Store) normalizeDescription(desc string) string {
	desc = strings.TrimSpace(desc)
	if r := []rune(desc); len(r) > MaxDescriptionLen {
		s.logger.Info("description truncated", "from", len(r), "to", MaxDescriptionLen)
		desc = string(r[:MaxDescriptionLen])
	}
	return desc
}

// Create adds a new pending task for owner.
func (s *Store) Create(ownerID, title, description string) (*Task, error) {
	title, err := s.normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	description = s.normalizeDescription(description)

	now := time.Now().UTC()
	t := &Task{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Completed:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = s.db.Exec(`
		INSERT INTO tasks (id, owner_id, title, description, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.OwnerID, t.Title, t.Description, t.Completed, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	s.logger.Info("task created", "task_id", t.ID, "owner_id", ownerID)
	return t, nil
}

// Get retrieves a task by ID, scoped to owner. Any ID that does not
// resolve to a task owned by ownerID yields an AuthorizationError.
func (s *Store) Get(ownerID, taskID string) (*Task, error) {
	if taskID == "" {
		return nil, &ValidationError{Msg: "task ID is required"}
	}

	row := s.db.QueryRow(`
		SELECT id, owner_id, title, description, completed, created_at, updated_at
		FROM tasks WHERE id = ? AND owner_id = ?
	`, taskID, ownerID)

	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &AuthorizationError{}
		}
		return nil, fmt.Errorf("query task: %w", err)
	}
	return t, nil
}

// List returns the owner's tasks matching the status filter, newest first.
func (s *Store) List(ownerID string, status StatusFilter) ([]*Task, error) {
	q := `
		SELECT id, owner_id, title, description, completed, created_at, updated_at
		FROM tasks WHERE owner_id = ?`
	switch status {
	case StatusPending:
		q += ` AND completed = FALSE`
	case StatusCompleted:
		q += ` AND completed = TRUE`
	}
	q += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.Query(q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountByStatus returns the owner's task counts across all statuses.
func (s *Store) CountByStatus(ownerID string) (Counts, error) {
	var c Counts
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN completed THEN 0 ELSE 1 END), 0),
		       COALESCE(SUM(CASE WHEN completed THEN 1 ELSE 0 END), 0)
		FROM tasks WHERE owner_id = ?
	`, ownerID).Scan(&c.Total, &c.Pending, &c.Completed)
	if err != nil {
		return Counts{}, fmt.Errorf("count tasks: %w", err)
	}
	return c, nil
}

// Update modifies a task's title and/or description. A nil pointer
// leaves the field unchanged; at least one must be non-nil. An empty
// new title is rejected, an empty new description clears the field.
func (s *Store) Update(ownerID, taskID string, title, description *string) (*Task, error) {
	if title == nil && description == nil {
		return nil, &ValidationError{Msg: "at least one of title or description must be provided"}
	}

	t, err := s.Get(ownerID, taskID)
	if err != nil {
		return nil, err
	}

	if title != nil {
		normalized, err := s.normalizeTitle(*title)
		if err != nil {
			return nil, err
		}
		t.Title = normalized
	}
	if description != nil {
		t.Description = s.normalizeDescription(*description)
	}
	t.UpdatedAt = time.Now().UTC()

	_, err = s.db.Exec(`
		UPDATE tasks SET title = ?, description = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, t.Title, t.Description, t.UpdatedAt, t.ID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	s.logger.Info("task updated", "task_id", t.ID, "owner_id", ownerID)
	return t, nil
}

// ToggleComplete flips a task's completion status.
func (s *Store) ToggleComplete(ownerID, taskID string) (*Task, error) {
	t, err := s.Get(ownerID, taskID)
	if err != nil {
		return nil, err
	}

	t.Completed = !t.Completed
	t.UpdatedAt = time.Now().UTC()

	_, err = s.db.Exec(`
		UPDATE tasks SET completed = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, t.Completed, t.UpdatedAt, t.ID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("toggle task: %w", err)
	}

	s.logger.Info("task completion toggled", "task_id", t.ID, "completed", t.Completed)
	return t, nil
}

// Delete permanently removes a task and returns it.
func (s *Store) Delete(ownerID, taskID string) (*Task, error) {
	t, err := s.Get(ownerID, taskID)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`DELETE FROM tasks WHERE id = ? AND owner_id = ?`, t.ID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}

	s.logger.Info("task deleted", "task_id", t.ID, "owner_id", ownerID)
	return t, nil
}

// FindByName locates a task by title. An exact match (case-insensitive)
// wins outright; otherwise a unique substring match is returned.
// Multiple substring matches yield an AmbiguousMatchError listing every
// matching title, and zero matches yield a NotFoundError.
func (s *Store) FindByName(ownerID, name string) (*Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Msg: "task name is required"}
	}
	needle := strings.ToLower(name)

	tasks, err := s.List(ownerID, StatusAll)
	if err != nil {
		return nil, err
	}

	for _, t := range tasks {
		if strings.ToLower(t.Title) == needle {
			return t, nil
		}
	}

	var matches []*Task
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), needle) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, &NotFoundError{Name: needle}
	default:
		titles := make([]string, len(matches))
		for i, t := range matches {
			titles[i] = t.Title
		}
		return nil, &AmbiguousMatchError{Name: needle, Titles: titles}
	}
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var t Task
	var desc sql.NullString
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &desc, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	return &t, nil
}

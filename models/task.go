package models

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyTitle = errors.New("task title must not be empty")
	ErrEmptyOwner = errors.New("task owner must not be empty")
)

// Timestamps are kept at millisecond precision in UTC, the resolution both
// MongoDB and Cassandra store, so a task reads back equal to what was saved.
const timestampPrecision = time.Millisecond

var now = time.Now

// Timestamp returns the current time the way task timestamps are stored.
func Timestamp() time.Time {
	return now().UTC().Truncate(timestampPrecision)
}

// Task is one unit of work owned by exactly one user. ID and OwnerID are
// the composite identity and are never reassigned after creation.
type Task struct {
	ID          string     `json:"task_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	DueDate     *time.Time `json:"due_date"`
	OwnerID     string     `json:"user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTask builds a NOT_STARTED task with CreatedAt == UpdatedAt. The ID is
// left empty; it is assigned when the task is first persisted.
func NewTask(title, ownerID string) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, ErrEmptyTitle
	}
	if strings.TrimSpace(ownerID) == "" {
		return Task{}, ErrEmptyOwner
	}

	ts := Timestamp()
	return Task{
		Title:     title,
		OwnerID:   ownerID,
		Status:    StatusNotStarted,
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

func (t *Task) Rename(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	t.Title = title
	t.touch()
	return nil
}

func (t *Task) Redescribe(description string) {
	t.Description = description
	t.touch()
}

func (t *Task) SetStatus(status TaskStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	t.Status = status
	t.touch()
	return nil
}

// Reschedule sets or, with nil, clears the due date.
func (t *Task) Reschedule(due *time.Time) {
	if due != nil {
		d := due.UTC().Truncate(timestampPrecision)
		due = &d
	}
	t.DueDate = due
	t.touch()
}

// touch moves UpdatedAt strictly forward, never before CreatedAt.
func (t *Task) touch() {
	ts := Timestamp()
	if !ts.After(t.UpdatedAt) {
		ts = t.UpdatedAt.Add(timestampPrecision)
	}
	if ts.Before(t.CreatedAt) {
		ts = t.CreatedAt
	}
	t.UpdatedAt = ts
}

// Clone returns a copy that shares no memory with t.
func (t Task) Clone() Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	return t
}

package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidStatus = errors.New("invalid task status")

type TaskStatus string

const (
	StatusNotStarted TaskStatus = "NOT_STARTED"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusCompleted  TaskStatus = "COMPLETED"
)

// display labels used by the web client
var statusLabels = map[string]TaskStatus{
	"未着手": StatusNotStarted,
	"進行中": StatusInProgress,
	"完了":  StatusCompleted,
}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func (s TaskStatus) String() string {
	return string(s)
}

// ParseTaskStatus accepts the enum names (any case) and the client's display labels.
func ParseTaskStatus(label string) (TaskStatus, error) {
	label = strings.TrimSpace(label)
	if s, ok := statusLabels[label]; ok {
		return s, nil
	}

	s := TaskStatus(strings.ToUpper(label))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, label)
	}
	return s, nil
}

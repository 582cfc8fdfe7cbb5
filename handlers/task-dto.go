package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"task-management/microservices/tasks-service/models"
)

const dateLayout = "2006-01-02"

var errInvalidDueDate = errors.New("due_date must be RFC 3339 or YYYY-MM-DD")

type createTaskRequest struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	DueDate     optionalDate `json:"due_date"`
}

// updateTaskRequest carries a partial update: nil fields keep their value.
type updateTaskRequest struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	Status      *string      `json:"status"`
	DueDate     optionalDate `json:"due_date"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// optionalDate tells an absent due_date apart from an explicit null.
type optionalDate struct {
	Set   bool
	Value *time.Time
}

func (d *optionalDate) UnmarshalJSON(b []byte) error {
	d.Set = true
	if string(b) == "null" {
		d.Value = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errInvalidDueDate
	}
	due, err := parseDueDate(s)
	if err != nil {
		return err
	}
	d.Value = due
	return nil
}

func parseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("%w: %q", errInvalidDueDate, s)
}

func (req createTaskRequest) toTask(ownerID string) (models.Task, error) {
	task, err := models.NewTask(req.Title, ownerID)
	if err != nil {
		return models.Task{}, err
	}

	task.Description = req.Description
	if req.Status != "" {
		status, err := models.ParseTaskStatus(req.Status)
		if err != nil {
			return models.Task{}, err
		}
		task.Status = status
	}
	if req.DueDate.Value != nil {
		due := req.DueDate.Value.UTC().Truncate(time.Millisecond)
		task.DueDate = &due
	}
	return task, nil
}

// apply merges the request over task through the aggregate's mutators.
func (req updateTaskRequest) apply(task *models.Task) error {
	if req.Title != nil {
		if err := task.Rename(*req.Title); err != nil {
			return err
		}
	}
	if req.Description != nil {
		task.Redescribe(*req.Description)
	}
	if req.Status != nil {
		status, err := models.ParseTaskStatus(*req.Status)
		if err != nil {
			return err
		}
		if err := task.SetStatus(status); err != nil {
			return err
		}
	}
	if req.DueDate.Set {
		task.Reschedule(req.DueDate.Value)
	}
	return nil
}

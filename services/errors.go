package services

import "errors"

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrRepositoryNil = errors.New("task repository is nil")
)

package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

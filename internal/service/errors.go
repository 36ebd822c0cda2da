package service

import "errors"

// Invoice service errors
var (
	// ErrSessionNotFound is returned for an unknown or closed session id
	ErrSessionNotFound = errors.New("invoice session not found")

	// ErrProjectNotFound is returned when the session's project does not exist
	ErrProjectNotFound = errors.New("project not found")

	// ErrAlreadySaved is returned when saving an invoice with no unsaved changes
	ErrAlreadySaved = errors.New("invoice has no unsaved changes")

	// ErrPreviewNotFound is returned for an unknown or released PDF preview handle
	ErrPreviewNotFound = errors.New("pdf preview not found")

	// ErrForbidden is returned when a snapshot key belongs to another project
	ErrForbidden = errors.New("snapshot belongs to another project")
)

package domain

import "errors"

var (
	ErrNoFiles             = errors.New("no files provided")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrEmptyText           = errors.New("text is empty")
	ErrArtifactNotFound    = errors.New("artifact not found")
)

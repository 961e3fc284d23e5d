package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidArtifactRef indicates an ArtifactRef failed validation.
	ErrInvalidArtifactRef = errors.New("invalid artifact reference")

	// ErrEmptyEntityID indicates the EntityID field is empty.
	ErrEmptyEntityID = errors.New("entity id cannot be empty")

	// ErrEmptyArtifactKey indicates the artifact Key field is empty.
	ErrEmptyArtifactKey = errors.New("artifact key cannot be empty")

	// ErrInvalidStatus indicates an unknown embedding status.
	ErrInvalidStatus = errors.New("invalid embedding status")
)

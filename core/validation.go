package core

import (
	"fmt"
	"regexp"
	"strings"
)

var entityIDPattern = regexp.MustCompile(`^Q[0-9]+$`)

// ValidateArtifactRef validates an ArtifactRef according to domain rules.
//
// Validation rules:
//   - EntityID must not be empty
//   - Key must not be empty
//
// The entity id format is not enforced here; references read from plan
// documents are accepted as long as both fields are present.
func ValidateArtifactRef(ref ArtifactRef) error {
	if strings.TrimSpace(ref.EntityID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidArtifactRef, ErrEmptyEntityID)
	}
	if strings.TrimSpace(ref.Key) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidArtifactRef, ErrEmptyArtifactKey)
	}
	return nil
}

// ValidateStatus validates that a Status is one of the known values.
func ValidateStatus(status Status) error {
	switch status {
	case StatusOK, StatusPlanned, StatusFailedTimeout, StatusFailedTooLarge:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, string(status))
}

// IsEntityID reports whether s looks like a knowledge-graph item id ("Q123").
func IsEntityID(s string) bool {
	return entityIDPattern.MatchString(s)
}

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateArtifactRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     ArtifactRef
		wantErr error
	}{
		{"valid", ArtifactRef{EntityID: "Q1", Key: "a.pdf"}, nil},
		{"missing entity", ArtifactRef{Key: "a.pdf"}, ErrEmptyEntityID},
		{"blank entity", ArtifactRef{EntityID: "  ", Key: "a.pdf"}, ErrEmptyEntityID},
		{"missing key", ArtifactRef{EntityID: "Q1"}, ErrEmptyArtifactKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArtifactRef(tt.ref)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArtifactRef)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateStatus(t *testing.T) {
	for _, s := range []Status{StatusOK, StatusPlanned, StatusFailedTimeout, StatusFailedTooLarge} {
		assert.NoError(t, ValidateStatus(s))
	}
	assert.ErrorIs(t, ValidateStatus("done"), ErrInvalidStatus)
}

func TestIsEntityID(t *testing.T) {
	assert.True(t, IsEntityID("Q1"))
	assert.True(t, IsEntityID("Q123456"))
	assert.False(t, IsEntityID("q1"))
	assert.False(t, IsEntityID("Q"))
	assert.False(t, IsEntityID("P31"))
	assert.False(t, IsEntityID("Q12a"))
}

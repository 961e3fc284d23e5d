package objectstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		kind      Kind
		sentinel  error
		notFound  bool
		noChanges bool
		transient bool
	}{
		{KindNotFound, ErrNotFound, true, false, false},
		{KindNoChanges, ErrNoChanges, false, true, false},
		{KindTransient, ErrTransient, false, false, true},
		{KindFatal, ErrFatal, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewError("stat", "a/b", tt.kind, errors.New("boom")))
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.notFound, IsNotFound(err))
			assert.Equal(t, tt.noChanges, IsNoChanges(err))
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestError_Message(t *testing.T) {
	err := Errorf("get", "main/state.db", KindNotFound, "status %d", 404)
	assert.Equal(t, "get main/state.db: not found: status 404", err.Error())

	var target *Error
	assert.True(t, errors.As(fmt.Errorf("x: %w", err), &target))
	assert.Equal(t, KindNotFound, target.Kind)
}

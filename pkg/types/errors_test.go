package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "OK"},
		{fmt.Errorf("branch dev: %w", ErrNotFound), "NOT_FOUND"},
		{fmt.Errorf("tag v1: %w", ErrAlreadyExists), "ALREADY_EXISTS"},
		{&ConflictError{Op: "merge"}, "CONFLICT"},
		{fmt.Errorf("wrapped: %w", &ConflictError{Op: "rebase"}), "CONFLICT"},
		{fmt.Errorf("%w: empty key", ErrInvalidArgument), "INVALID_ARGUMENT"},
		{errors.New("disk on fire"), "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestConflictError(t *testing.T) {
	err := &ConflictError{Op: "merge", Conflicts: []Conflict{
		{Key: "a", Reason: ReasonBothModified, Source: []byte("1"), Target: []byte("2")},
		{Key: "b/c", Reason: ReasonDeleteModify, Target: []byte("x")},
	}}

	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"a", "b/c"}, err.Keys())
	assert.Equal(t, "merge conflict on 2 key(s): a, b/c", err.Error())

	var ce *ConflictError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &ce))
	assert.Nil(t, ce.Conflicts[1].Source)
}

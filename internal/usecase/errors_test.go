package usecase

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"support-agent/internal/repository"
)

func TestCode(t *testing.T) {
	require.Equal(t, ErrorInvalidInput, Code(newError(ErrorInvalidInput, "empty_message", nil)))
	require.Equal(t, ErrorConflict, Code(fmt.Errorf("wrapped: %w", newError(ErrorConflict, "state_conflict", nil))))
	require.Equal(t, ErrorInternal, Code(errors.New("boom")))
}

func TestStateWriteError(t *testing.T) {
	conflict := stateWriteError(fmt.Errorf("put: %w", repository.ErrStateConflict))
	require.Equal(t, ErrorConflict, conflict.Code)
	require.ErrorIs(t, conflict, repository.ErrStateConflict)

	require.Equal(t, ErrorInternal, stateWriteError(errors.New("throttled")).Code)
}

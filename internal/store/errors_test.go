package store

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantNotFound  bool
		wantRetryable bool
	}{
		{
			name: "nil passes through",
			err:  nil,
		},
		{
			name:         "no rows maps to not found",
			err:          sql.ErrNoRows,
			wantNotFound: true,
		},
		{
			name:         "wrapped no rows maps to not found",
			err:          fmt.Errorf("get row: %w", sql.ErrNoRows),
			wantNotFound: true,
		},
		{
			name:          "driver error maps to connectivity",
			err:           errors.New("connection refused"),
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)

			if tt.err == nil {
				assert.NoError(t, got)
				return
			}

			require.Error(t, got)
			assert.Equal(t, tt.wantNotFound, errors.Is(got, ErrNotFound))
			assert.Equal(t, tt.wantRetryable, IsRetryable(got))
		})
	}
}

func TestConnectivityError_Unwrap(t *testing.T) {
	inner := errors.New("broken pipe")
	err := classify(inner)

	assert.ErrorIs(t, err, inner)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestIsRetryable_NotFoundIsTerminal(t *testing.T) {
	assert.False(t, IsRetryable(ErrNotFound))
	assert.False(t, IsRetryable(nil))
}

package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNotification(t *testing.T) {
	n, err := NewNotification("Hello", "World")

	require.NoError(t, err)
	assert.Equal(t, "Hello", n.Title)
	assert.Equal(t, "World", n.Message)
	assert.False(t, n.CreatedAt.IsZero())
	assert.Zero(t, n.ID, "id is assigned by the store")
}

func TestNewNotification_Validation(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		message string
		want    error
	}{
		{"empty title", "", "World", ErrEmptyTitle},
		{"blank title", "   ", "World", ErrEmptyTitle},
		{"title at limit", strings.Repeat("a", 50), "World", nil},
		{"title over limit", strings.Repeat("a", 51), "World", ErrTitleTooLong},
		{"empty message", "Hello", "", ErrEmptyMessage},
		{"blank message", "Hello", " \t ", ErrEmptyMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNotification(tt.title, tt.message)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestValidateCountryID(t *testing.T) {
	assert.NoError(t, ValidateCountryID(1))
	assert.ErrorIs(t, ValidateCountryID(0), ErrInvalidCountry)
	assert.ErrorIs(t, ValidateCountryID(-7), ErrInvalidCountry)
}

func TestDeliveryStatus_Transitions(t *testing.T) {
	assert.True(t, StatusQueued.CanTransition(StatusInProgress))
	assert.True(t, StatusInProgress.CanTransition(StatusSent))
	assert.True(t, StatusInProgress.CanTransition(StatusFailed))

	// One-directional: nothing goes back to queued, terminal states are final.
	assert.False(t, StatusInProgress.CanTransition(StatusQueued))
	assert.False(t, StatusSent.CanTransition(StatusFailed))
	assert.False(t, StatusFailed.CanTransition(StatusQueued))
	assert.False(t, StatusQueued.CanTransition(StatusSent))
}

func TestDeliveryStatus_Terminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusSent.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestDeliveryStatus_String(t *testing.T) {
	assert.Equal(t, "queued", StatusQueued.String())
	assert.Equal(t, "in_progress", StatusInProgress.String())
	assert.Equal(t, "sent", StatusSent.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown(9)", DeliveryStatus(9).String())
}

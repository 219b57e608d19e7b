package printer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		err := Error("Floor Unavailable", "Another participant holds the floor", []string{})
		require.Error(t, err)
		require.Equal(t, "Floor Unavailable", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		err := Error("Floor Unavailable", "Another participant holds the floor", []string{"Wait for the current speaker to yield"})
		require.Error(t, err)
		require.Equal(t, "Floor Unavailable", err.Error())
	})

	t.Run("returns error with title for multiple suggestions", func(t *testing.T) {
		err := Error("Queue Full", "The floor request queue is at capacity", []string{
			"Raise the floor.queue_capacity setting",
			"Retry after the current speaker yields",
		})
		require.Error(t, err)
		require.Equal(t, "Queue Full", err.Error())
	})
}

// Note: Success, Warning, Speaker, and the other helpers print colored output to
// stdout and return nothing. Only Error produces a value worth asserting; the
// returned error carries just the title for Cobra's error handling.

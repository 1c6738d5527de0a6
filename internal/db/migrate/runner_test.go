package migrate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunRequiresDSN(t *testing.T) {
	err := Run("", "up")
	require.ErrorContains(t, err, "DATABASE_URL is not set")
}

func TestRunRejectsUnknownDirection(t *testing.T) {
	for _, direction := range []string{"", "sideways", "UP", "Down"} {
		t.Run(direction, func(t *testing.T) {
			err := Run("postgres://localhost/social_hour", direction)
			require.ErrorContains(t, err, "direction must be up or down")
		})
	}
}

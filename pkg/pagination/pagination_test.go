package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, DefaultLimit, Clamp(0))
	assert.Equal(t, DefaultLimit, Clamp(-4))
	assert.Equal(t, 7, Clamp(7))
	assert.Equal(t, MaxLimit, Clamp(MaxLimit+1))
}

func TestCursorSurvivesQueryStrings(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 2, 3, 4, 5, 6, 789, time.UTC), ID: uuid.New()}
	encoded := c.String()
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")
	assert.NotContains(t, encoded, "=")

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, c.ID, decoded.ID)
}

func TestDecode(t *testing.T) {
	c, err := Decode("  ")
	require.NoError(t, err)
	assert.Nil(t, c)

	for _, bad := range []string{"%%%", "c2hvcnQ", Cursor{ID: uuid.New()}.String() + "AA"} {
		_, err := Decode(bad)
		assert.Error(t, err, bad)
	}
}

func TestPage(t *testing.T) {
	key := func(n int) Cursor { return Cursor{ID: uuid.NewSHA1(uuid.Nil, []byte{byte(n)})} }

	rows, next := Page([]int{1, 2, 3}, 3, key)
	assert.Equal(t, []int{1, 2, 3}, rows)
	assert.Nil(t, next)

	rows, next = Page([]int{1, 2, 3, 4}, 3, key)
	assert.Equal(t, []int{1, 2, 3}, rows)
	require.NotNil(t, next)
	assert.Equal(t, key(3).ID, next.ID)
}

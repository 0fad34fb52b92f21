package core

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_RoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		time int64
		loc  Location
	}{
		{"initialization", InitializationTime, Location{X: 0, Y: 0, Z: 0, Dimension: "minecraft:overworld"}},
		{"positive", 1_735_000_000_123, Location{X: 120, Y: 64, Z: 9001, Dimension: "minecraft:overworld"}},
		{"negative coordinates", 42, Location{X: -30000000, Y: -64, Z: -1, Dimension: "minecraft:nether"}},
		{"extremes", math.MaxInt64, Location{X: math.MaxInt32, Y: math.MinInt32, Z: 0, Dimension: "minecraft:the_end"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := BuildKey(tc.time, tc.loc)
			require.NoError(t, err)
			assert.True(t, IsEventKey(key))

			rec, err := ParseKey(key)
			require.NoError(t, err)
			assert.Equal(t, tc.time, rec.Time)
			assert.Equal(t, tc.loc, rec.Location)
			assert.Equal(t, key, rec.ID)
		})
	}
}

func TestKey_Layout(t *testing.T) {
	key, err := BuildKey(64, Location{X: 1, Y: -1, Z: 0, Dimension: "minecraft:overworld"})
	require.NoError(t, err)
	assert.Equal(t, "bl.10.1.-1.0.minecraft:overworld", key)
}

func TestKey_DelimiterCollision(t *testing.T) {
	_, err := BuildKey(1, Location{Dimension: "custom.dimension"})
	require.Error(t, err)
	assert.True(t, IsDelimiterCollision(err))
	assert.True(t, errors.Is(err, ErrDelimiterCollision))
	assert.True(t, IsCorruption(err))

	var collision *DelimiterCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "dimension", collision.Field)
	assert.Equal(t, KeySeparator, collision.Delimiter)
}

func TestKey_ParseRejectsForeignKeys(t *testing.T) {
	for _, key := range []string{
		"nameRecord.12",
		"bl.1.2.3",
		"xx.1.2.3.4.minecraft:overworld",
		"bl.1.2.3.4.5.minecraft:overworld",
		"bl.1.2.?.4.minecraft:overworld",
	} {
		_, err := ParseKey(key)
		require.Error(t, err, key)
		assert.True(t, errors.Is(err, ErrDecode), key)
	}
}

func TestIsEventKey(t *testing.T) {
	assert.True(t, IsEventKey("bl.0.0.0.0.dim"))
	assert.False(t, IsEventKey("blx.0.0.0.0.dim"))
	assert.False(t, IsEventKey("nameRecordId.Steve"))
}

package asl

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamesOrdered(t *testing.T) {
	ns := Names()
	require.Len(t, ns, NumClasses)
	assert.True(t, sort.StringsAreSorted(ns), "class names must be in lexicographic order")
	assert.Equal(t, "0", ns[0])
	assert.Equal(t, "9", ns[9])
	assert.Equal(t, "a", ns[10])
	assert.Equal(t, "z", ns[NumClasses-1])
}

func TestFromNameRoundtrip(t *testing.T) {
	for i, n := range Names() {
		c, err := FromName(n)
		require.NoError(t, err)
		assert.Equal(t, Class(i), c)
		assert.Equal(t, n, c.Name())
	}
}

func TestFromNameCaseInsensitive(t *testing.T) {
	c, err := FromName("Q")
	require.NoError(t, err)
	assert.Equal(t, "q", c.Name())

	c, err = FromName(" b ")
	require.NoError(t, err)
	assert.Equal(t, "b", c.Name())
}

func TestFromNameUnknown(t *testing.T) {
	_, err := FromName("aa")
	require.Error(t, err)
	_, err = FromName("")
	require.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.True(t, Class(0).Valid())
	assert.True(t, Class(NumClasses-1).Valid())
	assert.False(t, Class(-1).Valid())
	assert.False(t, Class(NumClasses).Valid())
	assert.Equal(t, "invalid", Class(NumClasses).Name())
}

package patterncache

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGetCompilesOnMiss(t *testing.T) {
	c := New(0, 0)
	re, err := c.Get(`foo\d+`, FlagNone)
	require.NoError(t, err)
	assert.True(t, re.MatchString("foo123"))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(0), stats.Hits)
}

func TestGetReturnsSameCompiledObject(t *testing.T) {
	c := New(0, 0)
	re1, err := c.Get("abc", FlagNone)
	require.NoError(t, err)
	re2, err := c.Get("abc", FlagNone)
	require.NoError(t, err)
	assert.Same(t, re1, re2)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestCaseInsensitiveFlagChangesKey(t *testing.T) {
	c := New(0, 0)
	sensitive, err := c.Get("ABC", FlagNone)
	require.NoError(t, err)
	insensitive, err := c.Get("ABC", FlagCaseInsensitive)
	require.NoError(t, err)

	assert.True(t, sensitive.MatchString("ABC"))
	assert.False(t, sensitive.MatchString("abc"))
	assert.True(t, insensitive.MatchString("abc"))
}

func TestInvalidPatternReturnsError(t *testing.T) {
	c := New(0, 0)
	_, err := c.Get("(unterminated", FlagNone)
	require.Error(t, err)
}

func TestEvictionByEntryCount(t *testing.T) {
	c := New(2, 0)
	_, err := c.Get("a", FlagNone)
	require.NoError(t, err)
	_, err = c.Get("b", FlagNone)
	require.NoError(t, err)
	_, err = c.Get("c", FlagNone)
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestConcurrentGetSamePatternReturnsSameObject(t *testing.T) {
	c := New(0, 0)
	const workers = 32
	var wg sync.WaitGroup
	results := make([]*regexp.Regexp, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			re, err := c.Get("concurrent-pattern", FlagNone)
			require.NoError(t, err)
			results[idx] = re
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

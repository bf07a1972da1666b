package pathutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatx/internal/pathutil"
)

func TestSplitRoot(t *testing.T) {
	for _, p := range []string{"", "/"} {
		segs, err := pathutil.Split(p)
		require.NoError(t, err)
		assert.Empty(t, segs)
	}
}

func TestSplitSingleSegment(t *testing.T) {
	segs, err := pathutil.Split("/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, segs)
}

func TestSplitTrailingSlashIgnored(t *testing.T) {
	segs, err := pathutil.Split("/a/b/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, segs)
}

func TestSplitRejectsOverlongSegment(t *testing.T) {
	_, err := pathutil.Split("/" + strings.Repeat("x", 43))
	assert.Error(t, err)
}

func TestSplitAcceptsMaxLengthSegment(t *testing.T) {
	name := strings.Repeat("x", 42)
	segs, err := pathutil.Split("/" + name)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, segs)
}

func TestDirnameAndBasename(t *testing.T) {
	segs := []string{"a", "b", "c"}
	assert.Equal(t, []string{"a", "b"}, pathutil.Dirname(segs))
	assert.Equal(t, []string{"c"}, pathutil.Basename(segs))

	assert.Nil(t, pathutil.Dirname([]string{"a"}))
	assert.Nil(t, pathutil.Dirname(nil))
	assert.Nil(t, pathutil.Basename(nil))
}

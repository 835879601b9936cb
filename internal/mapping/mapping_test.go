package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_LongestPrefixWins(t *testing.T) {
	rs, err := NewRuleSet([]Rule{
		{Source: "a", Target: "X"},
		{Source: "a/b", Target: "Y"},
	})
	require.NoError(t, err)

	got, err := rs.Resolve("a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "Y/c.txt", got, "longer source prefix must win regardless of listing order")

	got, err = rs.Resolve("a/d.txt")
	require.NoError(t, err)
	assert.Equal(t, "X/d.txt", got)
}

func TestResolve_SegmentBoundary(t *testing.T) {
	rs, err := NewRuleSet([]Rule{{Source: "htdocs", Target: "htdocs"}})
	require.NoError(t, err)

	// "htdocsextra" shares a string prefix but not a path-segment prefix.
	_, err = rs.Resolve("htdocsextra/file.php")
	assert.ErrorIs(t, err, ErrNoMapping)

	got, err := rs.Resolve("htdocs/file.php")
	require.NoError(t, err)
	assert.Equal(t, "htdocs/file.php", got)
}

func TestResolve_TieBreakByConfigOrder(t *testing.T) {
	rs, err := NewRuleSet([]Rule{
		{Source: "script", Target: "first"},
		{Source: "htdocs", Target: "second"},
	})
	require.NoError(t, err)

	// Both rules have one segment; each matches only its own prefix, but a
	// rule set with duplicate-length overlapping sources must stay stable.
	dup, err := NewRuleSet([]Rule{
		{Source: "dir", Target: "first"},
		{Source: "dir", Target: "second"},
	})
	require.NoError(t, err)

	got, err := dup.Resolve("dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "first/a.txt", got, "first listed rule wins ties")

	got, err = rs.Resolve("script/run.sh")
	require.NoError(t, err)
	assert.Equal(t, "first/run.sh", got)
}

func TestResolve_ReorderedByLength(t *testing.T) {
	// Configuration lists the short rule first; the engine must still
	// prefer the longer match.
	rs, err := NewRuleSet([]Rule{
		{Source: "htdocs", Target: "data/htdocs"},
		{Source: "usr/local/httpd/htdocs", Target: "htdocs"},
	})
	require.NoError(t, err)

	got, err := rs.Resolve("usr/local/httpd/htdocs/index.php")
	require.NoError(t, err)
	assert.Equal(t, "htdocs/index.php", got)
}

func TestResolve_ExactMatch(t *testing.T) {
	rs, err := NewRuleSet([]Rule{{Source: "home/storage/local", Target: "home/storage/local"}})
	require.NoError(t, err)

	got, err := rs.Resolve("home/storage/local")
	require.NoError(t, err)
	assert.Equal(t, "home/storage/local", got)
}

func TestResolve_EmptyPath(t *testing.T) {
	rs, err := NewRuleSet(nil)
	require.NoError(t, err)

	got, err := rs.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestNewRuleSet_DefaultsWhenEmpty(t *testing.T) {
	rs, err := NewRuleSet([]Rule{})
	require.NoError(t, err)
	assert.Equal(t, len(DefaultRules()), rs.Len())

	got, err := rs.Resolve("usr/local/asterisk/etc/asterisk/script/dial.sh")
	require.NoError(t, err)
	assert.Equal(t, "script/dial.sh", got)

	got, err = rs.Resolve("htdocs/api/analog_numbers/list.php")
	require.NoError(t, err)
	assert.Equal(t, "htdocs/api/analog_numbers/list.php", got)
}

func TestNewRuleSet_Validation(t *testing.T) {
	t.Run("rejects empty source", func(t *testing.T) {
		_, err := NewRuleSet([]Rule{{Source: "", Target: "x"}})
		assert.Error(t, err)
	})

	t.Run("rejects parent traversal", func(t *testing.T) {
		_, err := NewRuleSet([]Rule{{Source: "../etc", Target: "x"}})
		assert.Error(t, err)
	})

	t.Run("normalizes separators and slashes", func(t *testing.T) {
		rs, err := NewRuleSet([]Rule{{Source: `/usr\local\httpd/`, Target: "/httpd/"}})
		require.NoError(t, err)
		got, err := rs.Resolve("usr/local/httpd/conf/httpd.conf")
		require.NoError(t, err)
		assert.Equal(t, "httpd/conf/httpd.conf", got)
	})
}

func TestResolve_NoMatch(t *testing.T) {
	rs, err := NewRuleSet([]Rule{{Source: "htdocs", Target: "htdocs"}})
	require.NoError(t, err)

	_, err = rs.Resolve("var/log/messages")
	assert.ErrorIs(t, err, ErrNoMapping)
}

func TestRepoPath(t *testing.T) {
	assert.Equal(t, "data/htdocs/index.php", RepoPath("htdocs", "index.php"))
	assert.Equal(t, "data/readme.txt", RepoPath("", "readme.txt"))
}

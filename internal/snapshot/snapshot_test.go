package snapshot_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/connect-clicker/internal/browser/browsertest"
	"github.com/polzovatel/connect-clicker/internal/snapshot"
)

func TestCollectTagsOnce(t *testing.T) {
	ctx := context.Background()
	page := browsertest.NewPage("https://example.org/people?page=2")
	a := page.Add(browsertest.Button("Connect"))
	page.Add(browsertest.Button("Message"))
	b := page.Add(browsertest.Button("Connect"))

	first, err := snapshot.Collect(ctx, page, "Connect")
	require.NoError(t, err)
	require.Equal(t, 2, first.Len())
	assert.Equal(t, "https://example.org/people?page=2", first.URL)
	assert.NotEmpty(t, first.Controls[0].ID)
	assert.NotEqual(t, first.Controls[0].ID, first.Controls[1].ID)
	assert.Equal(t, first.Controls[0].ID, a.Attrs[snapshot.MarkerAttr])
	assert.Equal(t, first.Controls[1].ID, b.Attrs[snapshot.MarkerAttr])

	page.Remove(a)
	second, err := snapshot.Collect(ctx, page, "Connect")
	require.NoError(t, err)
	require.Equal(t, 1, second.Len())
	assert.Equal(t, first.Controls[1].ID, second.Controls[0].ID, "identity survives a re-query")
	assert.Equal(t, 0, second.Controls[0].Index)
}

func TestFirstSkipsExcluded(t *testing.T) {
	set := snapshot.Set{Controls: []snapshot.Control{{Index: 0, ID: "a"}, {Index: 1, ID: "b"}}}

	c, ok := set.First(nil)
	require.True(t, ok)
	assert.Equal(t, "a", c.ID)

	c, ok = set.First(func(id string) bool { return id == "a" })
	require.True(t, ok)
	assert.Equal(t, "b", c.ID)

	_, ok = set.First(func(string) bool { return true })
	assert.False(t, ok)
}

func TestCollectEmpty(t *testing.T) {
	page := browsertest.NewPage("https://example.org")
	set, err := snapshot.Collect(context.Background(), page, "Connect")
	require.NoError(t, err)
	assert.Zero(t, set.Len())
	assert.Equal(t, "Connect", set.Label)
	assert.Equal(t, "https://example.org", set.URL)
}

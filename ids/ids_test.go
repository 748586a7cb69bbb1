package ids_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reactorflow/engine/ids"
)

func TestGeneratorMonotonicAndSortable(t *testing.T) {
	g := ids.New()
	var got []string
	for i := 0; i < 50; i++ {
		got = append(got, g.Next())
	}
	sorted := append([]string(nil), got...)
	sort.Strings(sorted)
	require.Equal(t, got, sorted, "ids must already be in sorted order")
}

func TestGeneratorUnique(t *testing.T) {
	g := ids.New()
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		id := g.Next()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %q", id)
		seen[id] = struct{}{}
	}
}

package rbtree

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// execCommand applies one line of the textual protocol to tree and returns
// the payload a driver would print: the successor (or "infinito") for SUC,
// the space-separated key,depth,color tokens for IMP, nothing for INC/REM.
func execCommand(t *testing.T, tree *Tree, line string) string {
	t.Helper()
	fields := strings.Fields(line)
	require.NotEmpty(t, fields)

	switch fields[0] {
	case "INC":
		require.Len(t, fields, 2)
		_, err := tree.Insert(parseInt(t, fields[1]))
		require.NoError(t, err)
		return ""
	case "REM":
		require.Len(t, fields, 2)
		_, err := tree.Delete(parseInt(t, fields[1]))
		require.NoError(t, err)
		return ""
	case "SUC":
		require.Len(t, fields, 3)
		succ, ok, err := tree.Successor(parseInt(t, fields[1]), parseInt(t, fields[2]))
		require.NoError(t, err)
		if !ok {
			return "infinito"
		}
		return strconv.FormatInt(succ, 10)
	case "IMP":
		require.Len(t, fields, 2)
		entries, err := tree.InorderEntries(parseInt(t, fields[1]))
		require.NoError(t, err)
		tokens := make([]string, 0, len(entries))
		for _, e := range entries {
			tokens = append(tokens, fmt.Sprintf("%d,%d,%s", e.Key, e.Depth, e.Color.Token()))
		}
		return strings.Join(tokens, " ")
	}
	t.Fatalf("unknown command %q", fields[0])
	return ""
}

func parseInt(t *testing.T, s string) int64 {
	t.Helper()
	n, err := strconv.ParseInt(s, 10, 64)
	require.NoError(t, err)
	return n
}

func keysAt(t *testing.T, tree *Tree, v int64) []int64 {
	t.Helper()
	entries, err := tree.InorderEntries(v)
	require.NoError(t, err)
	keys := make([]int64, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys
}

func TestEmptyTree(t *testing.T) {
	tree := NewTree()

	require.EqualValues(t, 0, tree.Version())
	require.EqualValues(t, 1, tree.VersionCount())
	require.True(t, tree.VersionExists(0))
	require.False(t, tree.VersionExists(1))
	require.Empty(t, keysAt(t, tree, 0))
	require.EqualValues(t, 0, tree.Size())

	_, ok, err := tree.Successor(10, 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScenarioBranchingHistory(t *testing.T) {
	tree := NewTree()
	for _, line := range []string{"INC 50", "INC 25", "INC 75", "INC 10", "INC 30"} {
		execCommand(t, tree, line)
	}

	require.Equal(t, "10,2,R 25,1,R 30,2,R 50,0,N 75,1,R", execCommand(t, tree, "IMP 5"))
	require.Equal(t, "50", execCommand(t, tree, "SUC 40 5"))

	execCommand(t, tree, "REM 25")
	require.Equal(t, "10,2,R 30,1,R 50,0,N 75,1,R", execCommand(t, tree, "IMP 6"))
	require.Equal(t, "30", execCommand(t, tree, "SUC 25 6"))
	require.Equal(t, "30", execCommand(t, tree, "SUC 25 5"), "old version is untouched by the deletion")
}

func TestScenarioSequentialInserts(t *testing.T) {
	tree := NewTree()
	for k := int64(1); k <= 7; k++ {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}

	entries, err := tree.InorderEntries(7)
	require.NoError(t, err)
	require.Len(t, entries, 7)
	for i, e := range entries {
		require.EqualValues(t, i+1, e.Key, "keys come back in ascending order")
	}

	view, err := tree.GetImmutable(7)
	require.NoError(t, err)
	require.LessOrEqual(t, view.Height()+1, 4, "seven sequential inserts stay within four levels")
	require.NoError(t, tree.Validate(7))
}

func TestScenarioDeletePreservesHistory(t *testing.T) {
	tree := NewTree()
	for _, line := range []string{"INC 5", "INC 3", "INC 8", "REM 3", "INC 1"} {
		execCommand(t, tree, line)
	}

	require.NotContains(t, keysAt(t, tree, 4), int64(3))
	require.Contains(t, keysAt(t, tree, 3), int64(3))
	require.Equal(t, []int64{1, 5, 8}, keysAt(t, tree, 5))

	require.Equal(t, "3", execCommand(t, tree, "SUC 2 3"))
	require.Equal(t, "5", execCommand(t, tree, "SUC 2 4"))
}

func TestScenarioDuplicateInsert(t *testing.T) {
	tree := NewTree()
	_, err := tree.Insert(10)
	require.NoError(t, err)
	v, err := tree.Insert(10)
	require.NoError(t, err)

	require.EqualValues(t, 2, v, "a duplicate insert still consumes a version")
	require.Equal(t, []int64{10}, keysAt(t, tree, 1))
	require.Equal(t, []int64{10}, keysAt(t, tree, 2))
}

func TestScenarioDeleteMissing(t *testing.T) {
	tree := NewTree()
	_, err := tree.Insert(10)
	require.NoError(t, err)
	v, err := tree.Delete(20)
	require.NoError(t, err)

	require.EqualValues(t, 2, v, "deleting an absent key still consumes a version")
	require.Equal(t, []int64{10}, keysAt(t, tree, 2))
}

func TestScenarioQueryOutOfRange(t *testing.T) {
	tree := NewTree()
	for _, k := range []int64{4, 2, 9, 1, 6} {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}
	require.EqualValues(t, 5, tree.Version())

	_, _, err := tree.Successor(0, 99)
	require.ErrorIs(t, err, ErrVersionDoesNotExist)
	_, _, err = tree.Successor(0, -1)
	require.ErrorIs(t, err, ErrVersionDoesNotExist)
	_, err = tree.InorderEntries(99)
	require.ErrorIs(t, err, ErrVersionDoesNotExist)
	_, err = tree.GetImmutable(99)
	require.ErrorIs(t, err, ErrVersionDoesNotExist)

	require.EqualValues(t, 5, tree.Version(), "failed queries leave state unchanged")
}

func TestVersionOverflow(t *testing.T) {
	tree := NewTreeWithOpts(&Options{MaxVersions: 4})

	for _, k := range []int64{1, 2, 3} {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}
	require.EqualValues(t, 3, tree.Version())

	_, err := tree.Insert(4)
	require.ErrorIs(t, err, ErrVersionOverflow)
	_, err = tree.Delete(1)
	require.ErrorIs(t, err, ErrVersionOverflow)

	require.EqualValues(t, 3, tree.Version(), "a rejected mutation publishes nothing")
	require.Equal(t, []int64{1, 2, 3}, keysAt(t, tree, 3))
}

func TestDefaultVersionBudget(t *testing.T) {
	tree := NewTree()
	for i := 0; i < MaxVersions-1; i++ {
		_, err := tree.Insert(int64(i))
		require.NoError(t, err)
	}
	require.EqualValues(t, MaxVersions-1, tree.Version())

	_, err := tree.Insert(1000)
	require.ErrorIs(t, err, ErrVersionOverflow)
}

func TestInsertDeleteRoundTrip(t *testing.T) {
	tree := NewTree()
	for _, k := range []int64{8, 3, 13, 1, 5, 21} {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}
	base := tree.Version()
	baseKeys := keysAt(t, tree, base)

	_, err := tree.Insert(11)
	require.NoError(t, err)
	_, err = tree.Delete(11)
	require.NoError(t, err)

	require.Equal(t, baseKeys, keysAt(t, tree, tree.Version()))
	require.NoError(t, tree.Validate(tree.Version()))
}

func TestPastImmutability(t *testing.T) {
	// caching disabled so every listing is recomputed from the structure
	tree := NewTreeWithOpts(&Options{CacheSize: -1})

	mutations := []string{
		"INC 50", "INC 25", "INC 75", "INC 10", "REM 25", "INC 60", "REM 50", "INC 80",
	}
	snapshots := make(map[int64]string)
	snapshots[0] = execCommand(t, tree, "IMP 0")
	for i, line := range mutations {
		execCommand(t, tree, line)
		v := int64(i + 1)
		snapshots[v] = execCommand(t, tree, fmt.Sprintf("IMP %d", v))
	}

	// every later mutation left every earlier version exactly as it was
	for v := int64(0); v <= tree.Version(); v++ {
		require.Equal(t, snapshots[v], execCommand(t, tree, fmt.Sprintf("IMP %d", v)), "version %d", v)
	}
}

func TestQueriesAreIdempotent(t *testing.T) {
	tree := NewTree()
	for _, k := range []int64{4, 2, 9} {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}
	before := tree.Version()

	first := execCommand(t, tree, "IMP 3")
	second := execCommand(t, tree, "IMP 3")
	require.Equal(t, first, second)

	s1 := execCommand(t, tree, "SUC 2 3")
	s2 := execCommand(t, tree, "SUC 2 3")
	require.Equal(t, s1, s2)

	require.Equal(t, before, tree.Version(), "queries never advance the version")
}

func TestSuccessorSentinel(t *testing.T) {
	tree := NewTree()
	for _, k := range []int64{4, 2, 9} {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}

	require.Equal(t, "infinito", execCommand(t, tree, "SUC 9 3"), "no key above the maximum")
	require.Equal(t, "infinito", execCommand(t, tree, "SUC 100 3"))
	require.Equal(t, "4", execCommand(t, tree, "SUC 2 3"), "successor is strictly greater")
}

func TestHas(t *testing.T) {
	tree := NewTree()
	_, err := tree.Insert(7)
	require.NoError(t, err)
	_, err = tree.Delete(7)
	require.NoError(t, err)

	for v, want := range map[int64]bool{0: false, 1: true, 2: false} {
		got, err := tree.Has(7, v)
		require.NoError(t, err)
		require.Equal(t, want, got, "version %d", v)
	}

	_, err = tree.Has(7, 3)
	require.ErrorIs(t, err, ErrVersionDoesNotExist)
}

func TestAvailableVersions(t *testing.T) {
	tree := NewTree()
	for _, k := range []int64{1, 2} {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}
	require.Equal(t, []int{0, 1, 2}, tree.AvailableVersions())
	require.EqualValues(t, 3, tree.VersionCount())
}

func TestImmutableView(t *testing.T) {
	tree := NewTree()
	for _, line := range []string{"INC 50", "INC 25", "INC 75", "REM 25"} {
		execCommand(t, tree, line)
	}

	view, err := tree.GetImmutable(3)
	require.NoError(t, err)
	require.EqualValues(t, 3, view.Version())
	require.True(t, view.Has(25))
	require.EqualValues(t, 3, view.Size())
	require.Equal(t, 1, view.Height())

	succ, ok := view.Successor(25)
	require.True(t, ok)
	require.EqualValues(t, 50, succ)

	later, err := tree.GetImmutable(4)
	require.NoError(t, err)
	require.False(t, later.Has(25))
	require.EqualValues(t, 2, later.Size())

	// iteration over the view matches the tree's own listing
	var keys []int64
	stopped := view.Iterate(func(e Entry) bool {
		keys = append(keys, e.Key)
		return false
	})
	require.False(t, stopped)
	require.Equal(t, []int64{25, 50, 75}, keys)
}

func TestIterateStops(t *testing.T) {
	tree := NewTree()
	for _, k := range []int64{5, 3, 8, 1} {
		_, err := tree.Insert(k)
		require.NoError(t, err)
	}

	var seen []int64
	stopped, err := tree.Iterate(tree.Version(), func(e Entry) bool {
		seen = append(seen, e.Key)
		return e.Key == 3
	})
	require.NoError(t, err)
	require.True(t, stopped)
	require.Equal(t, []int64{1, 3}, seen)
}

func TestColorTokens(t *testing.T) {
	require.Equal(t, "R", Red.Token())
	require.Equal(t, "N", Black.Token())
	require.Equal(t, "red", Red.String())
	require.Equal(t, "black", Black.String())
}

package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/codetango/internal/testutil/testlog"
)

func build(t *testing.T, kv ...any) *Snapshot {
	t.Helper()
	s := New()
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, s.Set(kv[i].(string), kv[i+1]))
	}
	return s
}

func TestCompareIdenticalSnapshots(t *testing.T) {
	testlog.Start(t)
	a := build(t, "x", 1, "s", "str", "b", true, "l", []any{1, []int{2, 3}}, "m", map[string]any{"k": []string{"v"}})
	b := build(t, "m", map[string]any{"k": []string{"v"}}, "l", []any{1, []int{2, 3}}, "b", true, "s", "str", "x", 1)
	assert.Empty(t, Compare(a, b))
	assert.True(t, Equal(a, b))
}

func TestCompareIntegerAndFloatFormsAreEqual(t *testing.T) {
	testlog.Start(t)
	a := New()
	b := New()
	require.NoError(t, a.SetRaw("n", []byte(`1`)))
	require.NoError(t, b.SetRaw("n", []byte(`1.0`)))
	assert.Empty(t, Compare(a, b))
}

func TestCompareLargeIntegersExactly(t *testing.T) {
	testlog.Start(t)
	a := build(t, "seed", int64(9007199254740993))
	b := build(t, "seed", int64(9007199254740992))
	diffs := Compare(a, b)
	require.Len(t, diffs, 1)
	assert.Equal(t, "seed", diffs[0].Name)
	assert.Equal(t, DiffValueMismatch, diffs[0].Kind)

	nested := Compare(build(t, "l", []int64{1, 9007199254740993}), build(t, "l", []int64{1, 9007199254740992}))
	require.Len(t, nested, 1)
	assert.NotEmpty(t, nested[0].Details)

	assert.Empty(t, Compare(a, build(t, "seed", uint64(9007199254740993))))
}

func TestCompareEquivalentNumberForms(t *testing.T) {
	testlog.Start(t)
	a := New()
	b := New()
	require.NoError(t, a.SetRaw("f", []byte(`[1, 2.50, 1e3, -0]`)))
	require.NoError(t, b.SetRaw("f", []byte(`[1.0, 2.5, 1000, 0]`)))
	assert.Empty(t, Compare(a, b))

	require.NoError(t, b.SetRaw("f", []byte(`[1.0, 2.5, 1000, 0, 7]`)))
	diffs := Compare(a, b)
	require.Len(t, diffs, 1)
	for _, detail := range diffs[0].Details {
		assert.NotContains(t, detail, "slice[0]")
	}
}

func TestCompareMissingKeyIsSymmetric(t *testing.T) {
	testlog.Start(t)
	a := build(t, "x", 1, "only", 5)
	b := build(t, "x", 1)

	ab := Compare(a, b)
	require.Len(t, ab, 1)
	assert.Equal(t, "only", ab[0].Name)
	assert.Equal(t, DiffMissingInSecond, ab[0].Kind)
	assert.Equal(t, "Variable 'only' exists in program1 but not in program2", ab[0].Format("program1", "program2"))

	ba := Compare(b, a)
	require.Len(t, ba, 1)
	assert.Equal(t, "only", ba[0].Name)
	assert.Equal(t, DiffMissingInFirst, ba[0].Kind)
	assert.Equal(t, "Variable 'only' exists in program1 but not in program2", ba[0].Format("program2", "program1"))
}

func TestCompareOneDifferencePerUnequalKey(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name  string
		left  any
		right any
	}{
		{"scalar", 1, 2},
		{"string", "a", "b"},
		{"bool", true, false},
		{"nested list", []any{1, []int{2, 3}}, []any{1, []int{2, 4}}},
		{"nested map", map[string]any{"k": map[string]int{"n": 1}}, map[string]any{"k": map[string]int{"n": 2}}},
		{"list length", []int{1, 2}, []int{1, 2, 3}},
		{"type change", 1, "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := build(t, "same", 7, "v", tc.left)
			b := build(t, "same", 7, "v", tc.right)
			diffs := Compare(a, b)
			require.Len(t, diffs, 1)
			assert.Equal(t, "v", diffs[0].Name)
			assert.Equal(t, DiffValueMismatch, diffs[0].Kind)
		})
	}
}

func TestCompareMixedDifferences(t *testing.T) {
	testlog.Start(t)
	a := build(t, "x", 1, "y", 2, "left", 0)
	b := build(t, "x", 1, "y", 3, "right", 0)
	diffs := Compare(a, b)
	require.Len(t, diffs, 3)
	assert.Equal(t, []DiffKind{DiffValueMismatch, DiffMissingInSecond, DiffMissingInFirst},
		[]DiffKind{diffs[0].Kind, diffs[1].Kind, diffs[2].Kind})
	assert.Equal(t, []string{"y", "left", "right"}, []string{diffs[0].Name, diffs[1].Name, diffs[2].Name})
}

func TestFormatValueMismatch(t *testing.T) {
	testlog.Start(t)
	diffs := Compare(build(t, "x", 1), build(t, "x", 2))
	require.Len(t, diffs, 1)
	assert.Empty(t, diffs[0].Details)
	assert.Equal(t, "Variable 'x' differs:\n  program1: 1\n  program2: 2", diffs[0].Format("program1", "program2"))

	nested := Compare(build(t, "m", map[string]int{"a": 1}), build(t, "m", map[string]int{"a": 2}))
	require.Len(t, nested, 1)
	assert.NotEmpty(t, nested[0].Details)
	assert.Contains(t, nested[0].Format("program1", "program2"), "\n    ")
}

func TestCompareEmptyAndNil(t *testing.T) {
	testlog.Start(t)
	assert.Empty(t, Compare(New(), New()))
	assert.Empty(t, Compare(nil, nil))
	diffs := Compare(nil, build(t, "a", 1))
	require.Len(t, diffs, 1)
	assert.Equal(t, DiffMissingInFirst, diffs[0].Kind)
}

package split

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(s string) string { return s }

func makeItems(prefix string, n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("%s_%05d.jpg", prefix, i)
	}
	return items
}

func TestPartitionCounts(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 5, 9, 10, 11, 57, 100, 1001} {
		items := makeItems("img", n)
		train, val := Partition(items, identity, DefaultValRatio, DefaultSeed)
		assert.Equalf(t, n, len(train)+len(val), "n=%d", n)
		if n >= 10 {
			frac := float64(len(val)) / float64(n)
			assert.LessOrEqualf(t, math.Abs(frac-DefaultValRatio), 1.0/float64(n), "n=%d val=%d", n, len(val))
		}
		if n >= 2 {
			assert.NotEmptyf(t, train, "n=%d", n)
			assert.NotEmptyf(t, val, "n=%d", n)
		}
	}
}

func TestPartitionSmallClasses(t *testing.T) {
	train, val := Partition([]string{"only.jpg"}, identity, DefaultValRatio, DefaultSeed)
	assert.Equal(t, []string{"only.jpg"}, train)
	assert.Empty(t, val)

	train, val = Partition([]string{"a.jpg", "b.jpg"}, identity, DefaultValRatio, DefaultSeed)
	assert.Len(t, train, 1)
	assert.Len(t, val, 1)
}

func TestPartitionDeterministic(t *testing.T) {
	items := makeItems("tomato", 250)
	train1, val1 := Partition(items, identity, DefaultValRatio, DefaultSeed)

	// 入力の順番を変えても同じ分割になる
	reordered := make([]string, len(items))
	copy(reordered, items)
	rand.New(rand.NewSource(7)).Shuffle(len(reordered), func(i, j int) {
		reordered[i], reordered[j] = reordered[j], reordered[i]
	})
	train2, val2 := Partition(reordered, identity, DefaultValRatio, DefaultSeed)
	assert.Equal(t, train1, train2)
	assert.Equal(t, val1, val2)

	// 入力は変更されない
	assert.Equal(t, "tomato_00000.jpg", items[0])

	// シードが違えば別の分割
	_, val3 := Partition(items, identity, DefaultValRatio, DefaultSeed+1)
	assert.NotEqual(t, val1, val3)
}

func TestPartitionDisjoint(t *testing.T) {
	items := makeItems("maize", 123)
	train, val := Partition(items, identity, 0.3, 1)
	seen := make(map[string]bool)
	for _, item := range append(append([]string{}, train...), val...) {
		require.Falsef(t, seen[item], "item %q appears twice", item)
		seen[item] = true
	}
	assert.Len(t, seen, len(items))
}

func TestByClass(t *testing.T) {
	byClass := map[string][]string{
		"tomato__healthy": makeItems("th", 40),
		"maize__rust":     makeItems("mr", 13),
		"cocoa__healthy":  makeItems("ch", 1),
	}
	results := ByClass(byClass, identity, DefaultValRatio, DefaultSeed)
	require.Len(t, results, 3)
	assert.Equal(t, "cocoa__healthy", results[0].Class)
	assert.Equal(t, "maize__rust", results[1].Class)
	assert.Equal(t, "tomato__healthy", results[2].Class)
	for _, r := range results {
		assert.Equal(t, len(byClass[r.Class]), r.Total())
	}
	assert.Len(t, results[1].Val, 3)
	assert.Len(t, results[2].Val, 8)
}

func TestModulo(t *testing.T) {
	items := makeItems("all", 23)
	train, val, err := Modulo(items, identity, 5, DefaultSeed)
	require.NoError(t, err)
	assert.Len(t, val, 5)
	assert.Len(t, train, 18)

	train2, val2, err := Modulo(items, identity, 5, DefaultSeed)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, val, val2)

	_, _, err = Modulo(items, identity, 1, DefaultSeed)
	assert.Error(t, err)
}

func TestRatioHelpers(t *testing.T) {
	assert.Equal(t, 5, EveryForRatio(0.2))
	assert.Equal(t, 2, EveryForRatio(0.9))
	assert.NoError(t, ValidateRatio(0.2))
	assert.Error(t, ValidateRatio(0))
	assert.Error(t, ValidateRatio(1))
	assert.Equal(t, 0, ValCount(1, 0.2))
	assert.Equal(t, 2, ValCount(10, 0.2))
	assert.Equal(t, 3, ValCount(11, 0.2))
}

func TestValidateModuloRatio(t *testing.T) {
	for _, ratio := range []float64{0.2, 0.1, 0.5, 1.0 / 3} {
		assert.NoErrorf(t, ValidateModuloRatio(ratio), "ratio=%g", ratio)
	}
	for _, ratio := range []float64{0.4, 0.9, 0.3, 0, 1} {
		assert.Errorf(t, ValidateModuloRatio(ratio), "ratio=%g", ratio)
	}
}

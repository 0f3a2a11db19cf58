package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaflens-dataset/internal/processor"
	"leaflens-dataset/internal/split"
	"leaflens-dataset/internal/taxonomy"
)

var defaultOpts = Options{ValRatio: split.DefaultValRatio, Seed: split.DefaultSeed, Stratified: true}

// buildDataset は maize__rust に n 件を持つデータセットと割り当て記録を作る
func buildDataset(t *testing.T, n int) (string, []processor.PlanRecord) {
	t.Helper()
	dest := t.TempDir()
	require.NoError(t, processor.CreateClassDirs(dest, taxonomy.Classes))

	sources := make([]string, n)
	for i := range sources {
		sources[i] = fmt.Sprintf("/pv/Corn___Common_rust/%03d.jpg", i)
	}
	identity := func(s string) string { return s }
	train, val := split.Partition(sources, identity, split.DefaultValRatio, split.DefaultSeed)

	var records []processor.PlanRecord
	for _, s := range []struct {
		name    string
		sources []string
	}{{split.Train, train}, {split.Val, val}} {
		for i, src := range s.sources {
			dst := filepath.Join(dest, s.name, taxonomy.MaizeRust, fmt.Sprintf("maize__rust_%05d.jpg", i))
			require.NoError(t, os.WriteFile(dst, []byte(src), 0644))
			records = append(records, processor.PlanRecord{
				Split: s.name, Class: taxonomy.MaizeRust, Source: src, Dest: dst,
				SourceLabel: "Corn___Common_rust", Origin: processor.OriginPlantVillage,
			})
		}
	}
	require.NoError(t, processor.WritePlan(filepath.Join(dest, processor.PlanFile), records))
	return dest, records
}

func TestDatasetOK(t *testing.T) {
	dest, _ := buildDataset(t, 23)
	report := must.M1(Dataset(dest, defaultOpts))
	assert.Empty(t, report.Problems)
	assert.True(t, report.OK())
	assert.Equal(t, 18, report.Summary.Counts[split.Train][taxonomy.MaizeRust])
	assert.Equal(t, 5, report.Summary.Counts[split.Val][taxonomy.MaizeRust])
}

func TestDatasetMissing(t *testing.T) {
	_, err := Dataset(filepath.Join(t.TempDir(), "nope"), defaultOpts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prepare")
}

func TestDatasetProblems(t *testing.T) {
	dest, records := buildDataset(t, 23)
	require.NoError(t, os.MkdirAll(filepath.Join(dest, split.Train, "potato__healthy"), 0755))
	require.NoError(t, os.RemoveAll(filepath.Join(dest, split.Val, taxonomy.CocoaHealthy)))

	// 検証データの1件を教師データ側に移し、記録も書き換える
	var moved processor.PlanRecord
	for i, rec := range records {
		if rec.Split == split.Val {
			moved = rec
			records[i].Split = split.Train
			records[i].Dest = filepath.Join(dest, split.Train, taxonomy.MaizeRust, "moved.jpg")
			require.NoError(t, os.Rename(rec.Dest, records[i].Dest))
			break
		}
	}
	require.NoError(t, processor.WritePlan(filepath.Join(dest, processor.PlanFile), records))

	report := must.M1(Dataset(dest, defaultOpts))
	require.False(t, report.OK())
	joined := fmt.Sprint(report.Problems)
	assert.Contains(t, joined, "potato__healthy")
	assert.Contains(t, joined, "val/cocoa__healthy")
	assert.Contains(t, joined, moved.Source)
}

func TestRatioCheck(t *testing.T) {
	dest, _ := buildDataset(t, 30)
	// 記録を消して検証データを間引く
	require.NoError(t, os.Remove(filepath.Join(dest, processor.PlanFile)))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.Remove(filepath.Join(dest, split.Val, taxonomy.MaizeRust, fmt.Sprintf("maize__rust_%05d.jpg", i))))
	}
	report := must.M1(Dataset(dest, defaultOpts))
	require.Len(t, report.Problems, 1)
	assert.Contains(t, report.Problems[0], "検証データ比率")

	report = must.M1(Dataset(dest, Options{ValRatio: 0.2, Seed: 42}))
	assert.True(t, report.OK())
}

func TestReproduceModulo(t *testing.T) {
	var sources []string
	for i := 0; i < 40; i++ {
		sources = append(sources, fmt.Sprintf("/data/%02d.jpg", i))
	}
	identity := func(s string) string { return s }
	train, val, err := split.Modulo(sources, identity, 5, 42)
	require.NoError(t, err)
	var records []processor.PlanRecord
	for _, s := range train {
		records = append(records, processor.PlanRecord{Split: split.Train, Class: taxonomy.TomatoHealthy, Source: s})
	}
	for _, s := range val {
		records = append(records, processor.PlanRecord{Split: split.Val, Class: taxonomy.CocoaHealthy, Source: s})
	}
	assert.Empty(t, Reproduce(records, Options{ValRatio: 0.2, Seed: 42}))
	assert.NotEmpty(t, Reproduce(records, Options{ValRatio: 0.2, Seed: 43}))
}

func TestManifest(t *testing.T) {
	order := taxonomy.ModelOrder(taxonomy.Classes)
	labels := taxonomy.GenerateLabels(order, nil)
	assert.Empty(t, Manifest(labels, order, nil))

	problems := Manifest(labels[:5], order, nil)
	require.Len(t, problems, 1)

	swapped := append([]string{}, labels...)
	swapped[2], swapped[3] = swapped[3], swapped[2]
	assert.Len(t, Manifest(swapped, order, nil), 2)

	// 固定順で書いたラベルはモデル順とは一致しない
	assert.NotEmpty(t, Manifest(taxonomy.GenerateLabels(taxonomy.TaxonomyOrder(), nil), order, nil))
}

func TestOutputClassCount(t *testing.T) {
	n, err := OutputClassCount([]int64{1, 6})
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, err = OutputClassCount([]int64{-1, -1})
	assert.Error(t, err)
	_, err = OutputClassCount(nil)
	assert.Error(t, err)
}

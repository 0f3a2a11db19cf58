package processor

import (
	"archive/tar"
	"context"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/janpfeifer/must"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaflens-dataset/internal/source"
	"leaflens-dataset/internal/split"
	"leaflens-dataset/internal/taxonomy"
)

// writeImage はテスト用の単色画像を書き出す
func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	img := imaging.New(w, h, color.NRGBA{R: 40, G: 160, B: 60, A: 255})
	require.NoError(t, imaging.Save(img, path))
}

func makeExamples(t *testing.T, dir, class, ext string, n int) []source.Example {
	examples := make([]source.Example, n)
	for i := range examples {
		path := filepath.Join(dir, class, "img"+string(rune('a'+i))+ext)
		writeImage(t, path, 64, 48)
		examples[i] = source.Example{Class: class, Path: path, SourceLabel: class, Index: 100 + i}
	}
	return examples
}

func TestWriteEncode(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	examples := makeExamples(t, src, taxonomy.TomatoHealthy, ".png", 5)

	w := &Writer{DestDir: dest, Quality: 90, Resize: 32, Workers: 3}
	res := split.Result[source.Example]{Class: taxonomy.TomatoHealthy, Train: examples[:4], Val: examples[4:]}
	records, err := w.WriteResult(context.Background(), res, ModeEncode)
	require.NoError(t, err)
	require.Len(t, records, 5)

	assert.Equal(t, split.Val, records[4].Split)
	assert.Equal(t, filepath.Join(dest, "val", taxonomy.TomatoHealthy, "tomato__healthy_00104.jpg"), records[4].Dest)
	for _, rec := range records {
		img := must.M1(imaging.Open(rec.Dest))
		b := img.Bounds()
		assert.Equal(t, image.Rect(0, 0, 32, 24), b)
	}
}

func TestWriteCopy(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	examples := makeExamples(t, src, taxonomy.CocoaBlackPod, ".jpg", 3)
	examples[2].Path = strings.TrimSuffix(examples[2].Path, ".jpg") + ".JPEG"
	require.NoError(t, os.Rename(strings.TrimSuffix(examples[2].Path, ".JPEG")+".jpg", examples[2].Path))

	w := &Writer{DestDir: dest, Workers: 1}
	records, err := w.WriteSplit(context.Background(), split.Train, taxonomy.CocoaBlackPod, examples, ModeCopy)
	require.NoError(t, err)
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = filepath.Base(rec.Dest)
		assert.Equal(t, must.M1(os.ReadFile(rec.Source)), must.M1(os.ReadFile(rec.Dest)))
		srcInfo := must.M1(os.Stat(rec.Source))
		dstInfo := must.M1(os.Stat(rec.Dest))
		assert.True(t, srcInfo.ModTime().Equal(dstInfo.ModTime()))
	}
	assert.Equal(t, []string{"cocoa__black_pod_local_00000.jpg", "cocoa__black_pod_local_00001.jpg", "cocoa__black_pod_local_00002.JPEG"}, names)
}

func TestWriteFailure(t *testing.T) {
	dest := t.TempDir()
	bogus := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(bogus, []byte("not an image"), 0644))
	w := &Writer{DestDir: dest, Workers: 2}
	_, err := w.WriteSplit(context.Background(), split.Train, taxonomy.MaizeRust,
		[]source.Example{{Class: taxonomy.MaizeRust, Path: bogus}}, ModeEncode)
	require.Error(t, err)
}

func TestCreateClassDirsAndSummary(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, CreateClassDirs(dest, taxonomy.Classes))
	for _, s := range split.Splits {
		for _, c := range taxonomy.Classes {
			assert.DirExists(t, filepath.Join(dest, s, c))
		}
	}
	writeImage(t, filepath.Join(dest, "train", taxonomy.MaizeRust, "a.jpg"), 4, 4)
	writeImage(t, filepath.Join(dest, "train", taxonomy.MaizeRust, "b.jpg"), 4, 4)
	writeImage(t, filepath.Join(dest, "val", taxonomy.MaizeRust, "c.jpg"), 4, 4)

	s := must.M1(Summarize(dest))
	assert.Len(t, s.Classes, len(taxonomy.Classes))
	assert.Equal(t, 2, s.Counts[split.Train][taxonomy.MaizeRust])
	assert.Equal(t, 1, s.Total(split.Val))
	table := s.Table()
	assert.Contains(t, table, taxonomy.MaizeRust)
	assert.Contains(t, table, "33.3")
}

func TestPlanRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), PlanFile)
	records := []PlanRecord{
		{Split: "val", Class: "maize__rust", Source: "/pv/Corn___Common_rust/b.jpg", Dest: "out/val/maize__rust/maize__rust_00001.jpg", SourceLabel: "Corn___Common_rust", Origin: OriginPlantVillage},
		{Split: "train", Class: "maize__rust", Source: "/pv/Corn___Common_rust/a, b.jpg", Dest: "out/train/maize__rust/maize__rust_00000.jpg", SourceLabel: "Corn___Common_rust", Origin: OriginPlantVillage},
	}
	SortPlan(records)
	assert.Equal(t, "train", records[0].Split)
	require.NoError(t, WritePlan(path, records))
	got := must.M1(ReadPlan(path))
	assert.Equal(t, records, got)

	require.NoError(t, WritePlan(path, nil))
	got = must.M1(ReadPlan(path))
	assert.Empty(t, got)
}

func TestCreateTarArchive(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "ccmt_cls")
	require.NoError(t, CreateClassDirs(dest, []string{taxonomy.TomatoHealthy}))
	writeImage(t, filepath.Join(dest, "train", taxonomy.TomatoHealthy, "a.jpg"), 4, 4)

	for _, gzipped := range []bool{false, true} {
		tarPath := TarPath(dest, gzipped)
		require.NoError(t, CreateTarArchive(dest, tarPath, gzipped))

		f := must.M1(os.Open(tarPath))
		var r io.Reader = f
		if gzipped {
			r = must.M1(gzip.NewReader(f))
		}
		tr := tar.NewReader(r)
		var names []string
		for {
			h, err := tr.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			names = append(names, h.Name)
		}
		_ = f.Close()
		sort.Strings(names)
		assert.Contains(t, names, "train/tomato__healthy/a.jpg")
		assert.Contains(t, names, "val/tomato__healthy/")
	}
	assert.True(t, strings.HasSuffix(TarPath(dest, true), "ccmt_cls.tar.gz"))
}

func TestProcessClassesParallel(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		var ran atomic.Int32
		jobs := []Job{
			{Name: "a", Run: func(ctx context.Context) error { ran.Add(1); return nil }},
			{Name: "b", Run: func(ctx context.Context) error { ran.Add(1); return errors.New("boom") }},
			{Name: "c", Run: func(ctx context.Context) error { ran.Add(1); return nil }},
		}
		err := ProcessClassesParallel(context.Background(), concurrency, jobs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1クラス")
		assert.Equal(t, int32(3), ran.Load())

		require.NoError(t, ProcessClassesParallel(context.Background(), concurrency, jobs[:1]))
	}
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, ModeCopy, ModeFor(OriginLocal))
	assert.Equal(t, ModeEncode, ModeFor(OriginPlantVillage))
	assert.Equal(t, ModeEncode, ModeFor(""))
}

func TestProcessClassesParallelCancelled(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var ran atomic.Int32
		jobs := make([]Job, 5)
		for i := range jobs {
			jobs[i] = Job{Name: string(rune('a' + i)), Run: func(ctx context.Context) error { ran.Add(1); return nil }}
		}
		err := ProcessClassesParallel(ctx, concurrency, jobs)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(0), ran.Load(), "concurrency=%d", concurrency)
	}

	// 途中でキャンセルされたら残りのクラスは実行しない
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ran atomic.Int32
	jobs := make([]Job, 4)
	for i := range jobs {
		jobs[i] = Job{Name: string(rune('a' + i)), Run: func(ctx context.Context) error {
			ran.Add(1)
			cancel()
			return nil
		}}
	}
	require.ErrorIs(t, ProcessClassesParallel(ctx, 1, jobs), context.Canceled)
	assert.Equal(t, int32(1), ran.Load())
}

func TestWriteSplitCancelled(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	examples := makeExamples(t, src, taxonomy.MaizeRust, ".png", 6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &Writer{DestDir: dest, Workers: 2}
	_, err := w.WriteSplit(ctx, split.Train, taxonomy.MaizeRust, examples, ModeEncode)
	require.ErrorIs(t, err, context.Canceled)
	entries := must.M1(os.ReadDir(filepath.Join(dest, split.Train, taxonomy.MaizeRust)))
	assert.Empty(t, entries)
}

func TestDestPathByMode(t *testing.T) {
	w := &Writer{DestDir: "out"}
	pv := source.Example{Class: taxonomy.MaizeRust, Path: "/pv/a.jpg", Index: 0, Origin: OriginPlantVillage}
	local := source.Example{Class: taxonomy.MaizeRust, Path: "/local/a.jpg", Index: 0, Origin: OriginLocal}
	encoded := w.DestPath(split.Train, taxonomy.MaizeRust, ModeFor(pv.Origin), 0, pv)
	copied := w.DestPath(split.Train, taxonomy.MaizeRust, ModeFor(local.Origin), 0, local)
	assert.Equal(t, filepath.Join("out", "train", "maize__rust", "maize__rust_00000.jpg"), encoded)
	assert.Equal(t, filepath.Join("out", "train", "maize__rust", "maize__rust_local_00000.jpg"), copied)
}

package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"leaflens-dataset/internal/source"
	"leaflens-dataset/internal/split"
	"leaflens-dataset/internal/utils"
)

// Mode は画像の書き出し方法
type Mode int

const (
	// ModeEncode は画像をデコードしてJPEGで保存し直す（PlantVillage用）
	ModeEncode Mode = iota
	// ModeCopy は元ファイルをそのままコピーする（ローカル画像用）
	ModeCopy
)

// ModeFor は例の出どころに対応する書き出し方法を返す。ローカル画像はそのままコピーする。
func ModeFor(origin string) Mode {
	if origin == OriginLocal {
		return ModeCopy
	}
	return ModeEncode
}

// Writer はクラスごとの分割結果を <DestDir>/<split>/<class>/ に書き出す
type Writer struct {
	DestDir  string
	Quality  int
	Resize   int
	Workers  int
	Progress bool
}

// copyPrefix はコピーした画像の名前に付ける接頭辞。
// ローカル画像がPlantVillageと同じクラスに入っても名前が重ならない。
const copyPrefix = "local"

// DestPath は i 番目（分割内の位置）の例の出力先を返す。
// ModeEncode は例の連番を使って <class>_<index>.jpg、
// ModeCopy は分割内の位置と元の拡張子を使って <class>_local_<i><ext>。
func (w *Writer) DestPath(splitName, class string, mode Mode, i int, e source.Example) string {
	var name string
	if mode == ModeEncode {
		name = fmt.Sprintf("%s_%05d.jpg", class, e.Index)
	} else {
		name = fmt.Sprintf("%s_%s_%05d%s", class, copyPrefix, i, filepath.Ext(e.Path))
	}
	return filepath.Join(w.DestDir, splitName, class, name)
}

// WriteResult は1クラス分の書き出し結果
func (w *Writer) WriteResult(ctx context.Context, r split.Result[source.Example], mode Mode) ([]PlanRecord, error) {
	var records []PlanRecord
	for _, s := range []struct {
		name     string
		examples []source.Example
	}{{split.Train, r.Train}, {split.Val, r.Val}} {
		recs, err := w.WriteSplit(ctx, s.name, r.Class, s.examples, mode)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

// WriteSplit は例を並列に書き出し、割り当ての記録を返す
func (w *Writer) WriteSplit(ctx context.Context, splitName, class string, examples []source.Example, mode Mode) ([]PlanRecord, error) {
	if len(examples) == 0 {
		return nil, nil
	}
	destDir := filepath.Join(w.DestDir, splitName, class)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "ディレクトリの作成に失敗: %q", destDir)
	}

	records := make([]PlanRecord, len(examples))
	for i, e := range examples {
		records[i] = PlanRecord{
			Split:       splitName,
			Class:       class,
			Source:      e.Path,
			Dest:        w.DestPath(splitName, class, mode, i, e),
			SourceLabel: e.SourceLabel,
			Origin:      e.Origin,
		}
	}

	bar := progressbar.NewOptions(len(examples),
		progressbar.OptionSetDescription(fmt.Sprintf("%s/%s", splitName, class)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetVisibility(w.Progress),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
	)
	defer func() { _ = bar.Close() }()

	sem := utils.NewSemaphore(w.Workers)
	var wg sync.WaitGroup
	errs := make(chan error, len(examples))

	for i := range records {
		// キャンセル後は新しい書き出しを始めない
		if err := sem.Acquire(ctx); err != nil {
			errs <- err
			break
		}
		wg.Add(1)
		go func(rec PlanRecord) {
			defer wg.Done()
			defer sem.Release()
			if err := w.writeOne(rec.Source, rec.Dest, mode); err != nil {
				errs <- err
			}
			_ = bar.Add(1)
		}(records[i])
	}

	wg.Wait()
	close(errs)

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "%s/%s: 書き出しを中断しました", splitName, class)
	}
	var failed int
	var first error
	for err := range errs {
		klog.Warningf("%+v", err)
		if first == nil {
			first = err
		}
		failed++
	}
	if failed > 0 {
		return nil, errors.WithMessagef(first, "%s/%s: %d件の書き出しに失敗しました", splitName, class, failed)
	}
	return records, nil
}

func (w *Writer) writeOne(src, dst string, mode Mode) error {
	if mode == ModeCopy {
		return copyFile(src, dst)
	}
	return w.encodeFile(src, dst)
}

// encodeFile は画像をデコードし、必要ならリサイズしてJPEGで保存する
func (w *Writer) encodeFile(src, dst string) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return errors.Wrapf(err, "画像の読み込みに失敗: %q", src)
	}
	if w.Resize > 0 {
		img = imaging.Fit(img, w.Resize, w.Resize, imaging.Lanczos)
	}
	quality := w.Quality
	if quality == 0 {
		quality = 95
	}
	if err := imaging.Save(img, dst, imaging.JPEGQuality(quality)); err != nil {
		return errors.Wrapf(err, "画像の保存に失敗: %q", dst)
	}
	return nil
}

// copyFile は単一ファイルをコピーし、更新時刻を引き継ぐ
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "ファイルを開けません: %q", src)
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "ファイルの作成に失敗: %q", dst)
	}
	if _, err = io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return errors.Wrapf(err, "ファイルのコピーに失敗 %s -> %s", src, dst)
	}
	if err = dstFile.Close(); err != nil {
		return errors.Wrapf(err, "ファイルのクローズに失敗: %q", dst)
	}
	if info, err := os.Stat(src); err == nil {
		_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	return nil
}

// CreateClassDirs は全分割・全クラスのディレクトリを作成する。空のクラスも残す。
func CreateClassDirs(destDir string, classes []string) error {
	for _, s := range split.Splits {
		for _, class := range classes {
			dir := filepath.Join(destDir, s, class)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.Wrapf(err, "ディレクトリの作成に失敗: %q", dir)
			}
		}
	}
	return nil
}

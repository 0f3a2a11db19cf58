// Package downloader はデータセットのアーカイブを取得して展開する。
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"leaflens-dataset/internal/utils"
)

// ExtractedSubDir は展開先のサブディレクトリ名
const ExtractedSubDir = "plantvillage"

// Download は url からファイルを取得して filePath に保存する。保存先のディレクトリは作成する。
func Download(ctx context.Context, rawURL, filePath string, showProgressBar bool) (size int64, err error) {
	if err = os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return 0, errors.Wrapf(err, "ディレクトリの作成に失敗: %q", filepath.Dir(filePath))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "リクエストの作成に失敗: %q", rawURL)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "ダウンロードに失敗: %q", rawURL)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("ダウンロードに失敗: %q: %s", rawURL, resp.Status)
	}

	// 途中で失敗したファイルを残さないよう一時ファイルに書いてから移動する
	tmpPath := filePath + ".partial"
	file, err := os.Create(tmpPath)
	if err != nil {
		return 0, errors.Wrapf(err, "ファイルの作成に失敗: %q", tmpPath)
	}
	var w io.Writer = file
	if showProgressBar && resp.ContentLength > 0 {
		bar := progressbar.DefaultBytes(resp.ContentLength, path.Base(filePath))
		w = io.MultiWriter(file, bar)
		defer func() { _ = bar.Close() }()
	}
	size, err = io.Copy(w, resp.Body)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return 0, errors.Wrapf(err, "ダウンロード中に失敗: %q -> %q", rawURL, filePath)
	}
	if err = file.Close(); err != nil {
		return 0, errors.Wrapf(err, "ファイルのクローズに失敗: %q", tmpPath)
	}
	if err = os.Rename(tmpPath, filePath); err != nil {
		return 0, errors.Wrapf(err, "ファイルの移動に失敗: %q", filePath)
	}
	return size, nil
}

// DownloadIfMissing はファイルが無い場合だけダウンロードする。
// checksum が指定されていればSHA-256を検証する。
func DownloadIfMissing(ctx context.Context, rawURL, filePath, checksum string) error {
	exists, err := utils.FileExists(filePath)
	if err != nil {
		return err
	}
	if !exists {
		klog.Infof("ダウンロード中: %s", rawURL)
		size, err := Download(ctx, rawURL, filePath, true)
		if err != nil {
			return err
		}
		klog.Infof("ダウンロード完了: %s (%s)", filePath, humanize.Bytes(uint64(size)))
	}
	if checksum == "" {
		return nil
	}
	return ValidateChecksum(filePath, checksum)
}

// ValidateChecksum はファイルのSHA-256が一致するかを確認
func ValidateChecksum(filePath, checksum string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "ファイルを開けません: %q", filePath)
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return errors.Wrapf(err, "ファイルの読み込みに失敗: %q", filePath)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, checksum) {
		return errors.Errorf("チェックサムが一致しません %q: 期待値 %s, 実際 %s", filePath, checksum, got)
	}
	return nil
}

// ArchiveName はURLからアーカイブのファイル名を決める
func ArchiveName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrapf(err, "URLの解析に失敗: %q", rawURL)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", errors.Errorf("URLからファイル名を決められません: %q", rawURL)
	}
	return name, nil
}

// EnsurePlantVillage はPlantVillageのアーカイブを cacheDir に取得・展開し、
// ラベルディレクトリが並ぶルートを返す。展開済みならダウンロードしない。
func EnsurePlantVillage(ctx context.Context, rawURL, cacheDir, checksum string) (string, error) {
	cacheDir, err := utils.ReplaceTildeInDir(cacheDir)
	if err != nil {
		return "", err
	}
	extracted := filepath.Join(cacheDir, ExtractedSubDir)
	if !utils.IsDir(extracted) {
		name, err := ArchiveName(rawURL)
		if err != nil {
			return "", err
		}
		archive := filepath.Join(cacheDir, name)
		if err := DownloadIfMissing(ctx, rawURL, archive, checksum); err != nil {
			return "", err
		}
		klog.Infof("展開中: %s", archive)
		if err := Extract(archive, extracted); err != nil {
			_ = os.RemoveAll(extracted)
			return "", err
		}
	}
	return FindLabelRoot(extracted)
}

// FindLabelRoot はサブディレクトリが1つだけの階層を降りて、ラベルディレクトリが並ぶ場所を返す
func FindLabelRoot(dir string) (string, error) {
	for {
		subDirs, err := utils.GetClassDirectories(dir)
		if err != nil {
			return "", err
		}
		if len(subDirs) != 1 {
			if len(subDirs) == 0 {
				return "", errors.Errorf("展開結果にラベルディレクトリがありません: %s", dir)
			}
			return dir, nil
		}
		images, err := utils.GetImageFiles(dir)
		if err != nil {
			return "", err
		}
		if len(images) > 0 {
			return dir, nil
		}
		dir = subDirs[0]
	}
}

package downloader

import (
	"archive/tar"
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Extract はアーカイブを destDir に展開する。拡張子で形式を判断する（.zip, .tar, .tar.gz, .tgz）。
func Extract(archive, destDir string) error {
	lower := strings.ToLower(archive)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(archive, destDir)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return extractTar(archive, destDir, true)
	case strings.HasSuffix(lower, ".tar"):
		return extractTar(archive, destDir, false)
	}
	return errors.Errorf("未対応のアーカイブ形式: %q", archive)
}

// safeJoin は展開先の外へ出るパスを拒否する
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("アーカイブ内の不正なパス: %q", name)
	}
	return target, nil
}

func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrapf(err, "ディレクトリの作成に失敗: %q", filepath.Dir(target))
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0200)
	if err != nil {
		return errors.Wrapf(err, "ファイルの作成に失敗: %q", target)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "ファイルの書き込みに失敗: %q", target)
	}
	return f.Close()
}

func extractZip(archive, destDir string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return errors.Wrapf(err, "zipを開けません: %q", archive)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Wrapf(err, "ディレクトリの作成に失敗: %q", target)
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return errors.Wrapf(err, "zip内のファイルを開けません: %q", f.Name)
		}
		err = writeEntry(target, rc, f.Mode())
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(archive, destDir string, gzipped bool) error {
	file, err := os.Open(archive)
	if err != nil {
		return errors.Wrapf(err, "tarを開けません: %q", archive)
	}
	defer func() { _ = file.Close() }()

	var r io.Reader = file
	if gzipped {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return errors.Wrapf(err, "gzipの展開に失敗: %q", archive)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "tarの読み込みに失敗: %q", archive)
		}
		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Wrapf(err, "ディレクトリの作成に失敗: %q", target)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, os.FileMode(header.Mode)); err != nil {
				return err
			}
		}
	}
	return nil
}

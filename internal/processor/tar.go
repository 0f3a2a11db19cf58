package processor

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TarPath は出力ディレクトリに対応するtarファイル名を返す（ディレクトリ名 + .tar / .tar.gz）
func TarPath(sourceDir string, gzipped bool) string {
	name := filepath.Clean(sourceDir) + ".tar"
	if gzipped {
		name += ".gz"
	}
	return name
}

// CreateTarArchive は sourceDir 以下を tarPath にまとめる。パスは sourceDir からの相対パス。
func CreateTarArchive(sourceDir, tarPath string, gzipped bool) (err error) {
	klog.Infof("tarファイルの作成を開始: %s", tarPath)

	tarFile, err := os.Create(tarPath)
	if err != nil {
		return errors.Wrapf(err, "tarファイルの作成に失敗: %q", tarPath)
	}
	defer func() {
		if cerr := tarFile.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "tarファイルのクローズに失敗: %q", tarPath)
		}
	}()

	var out io.Writer = tarFile
	var gz *gzip.Writer
	if gzipped {
		gz = gzip.NewWriter(tarFile)
		out = gz
	}
	tarWriter := tar.NewWriter(out)

	// ディレクトリ内のファイルを再帰的にtarに追加
	err = filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// ソースディレクトリ自体はスキップ
		if path == sourceDir {
			return nil
		}

		relPath, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		// ディレクトリの場合はファイル内容を書き込まない
		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = file.Close() }()

		_, err = io.Copy(tarWriter, file)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "ファイルのtar化に失敗: %q", sourceDir)
	}

	if err := tarWriter.Close(); err != nil {
		return errors.Wrapf(err, "tarの書き込みに失敗: %q", tarPath)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return errors.Wrapf(err, "gzipの書き込みに失敗: %q", tarPath)
		}
	}

	klog.Infof("tarファイルが作成されました: %s", tarPath)
	return nil
}

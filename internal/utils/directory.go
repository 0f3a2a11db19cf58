package utils

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ImageExtensions は収集対象の画像拡張子
var ImageExtensions = []string{".jpg", ".jpeg", ".png"}

// GetClassDirectories はルートディレクトリ直下のクラスディレクトリを名前順で取得
func GetClassDirectories(rootDir string) ([]string, error) {
	var classDirs []string
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, errors.Wrapf(err, "ディレクトリの読み込みに失敗: %q", rootDir)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			// .DS_Storeなどの隠しディレクトリを除外
			if !strings.HasPrefix(entry.Name(), ".") {
				classDirs = append(classDirs, filepath.Join(rootDir, entry.Name()))
			}
		}
	}
	sort.Strings(classDirs)
	return classDirs, nil
}

// HasExtension はパスの拡張子が exts のいずれかに一致するかを返す（大文字小文字は区別しない）
func HasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// GetImageFiles は指定されたディレクトリ直下の画像ファイルを名前順で取得
func GetImageFiles(dir string) ([]string, error) {
	return GetFiles(dir, ImageExtensions)
}

// GetFiles はディレクトリ直下で拡張子が exts のいずれかに一致するファイルを名前順で取得
func GetFiles(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "ファイル一覧の取得に失敗: %q", dir)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if HasExtension(entry.Name(), exts) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// CountFiles はディレクトリ直下の通常ファイル数を返す
func CountFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrapf(err, "ファイル一覧の取得に失敗: %q", dir)
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			n++
		}
	}
	return n, nil
}

// GetClassName はディレクトリパスからクラス名を取得
func GetClassName(dirPath string) string {
	return filepath.Base(dirPath)
}

// FileExists はファイルまたはディレクトリが存在するかを返す
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "ファイルの確認に失敗: %q", path)
}

// IsDir はパスが存在するディレクトリかを返す
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ReplaceTildeInDir は先頭の "~" をホームディレクトリに置き換える
func ReplaceTildeInDir(dir string) (string, error) {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "ホームディレクトリの取得に失敗: %q", dir)
	}
	return filepath.Join(home, dir[1:]), nil
}

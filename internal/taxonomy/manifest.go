package taxonomy

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// DefaultLabels はフォルダ名からアプリ側ラベル（"Crop:condition"）への対応表
var DefaultLabels = map[string]string{
	CocoaBlackPod:     "Cocoa:cocoa_black_pod",
	CocoaHealthy:      "Cocoa:healthy",
	MaizeRust:         "Maize:maize_rust",
	MaizeHealthy:      "Maize:healthy",
	TomatoEarlyBlight: "Tomato:tomato_early_blight",
	TomatoHealthy:     "Tomato:healthy",
}

// LabelFor は既定の対応表でフォルダ名のラベルを返す
func LabelFor(folder string) string {
	return labelFrom(DefaultLabels, folder)
}

// labelFrom は対応表を引き、無ければ "crop__condition" を変換する。
// condition が healthy なら "Crop:healthy"、それ以外は "Crop:crop_condition"。
// "__" を含まない名前はそのまま返す。
func labelFrom(table map[string]string, folder string) string {
	if label, ok := table[folder]; ok {
		return label
	}
	crop := Crop(folder)
	if crop == "" {
		return folder
	}
	condition := strings.TrimPrefix(folder, crop+folderSeparator)
	if condition == healthyCondition {
		return capitalize(crop) + ":" + healthyCondition
	}
	return capitalize(crop) + ":" + crop + "_" + condition
}

// capitalize は先頭を大文字、残りを小文字にする
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// GenerateLabels はモデルのクラス順に並んだフォルダ名からラベル一覧を作る。
// table が nil の場合は DefaultLabels を使う。
func GenerateLabels(folders []string, table map[string]string) []string {
	if table == nil {
		table = DefaultLabels
	}
	labels := make([]string, 0, len(folders))
	for _, name := range folders {
		labels = append(labels, labelFrom(table, name))
	}
	return labels
}

// WriteManifest はラベルを改行区切り（末尾改行なし）で書き出す。親ディレクトリは作成する。
func WriteManifest(path string, labels []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "ディレクトリの作成に失敗: %q", filepath.Dir(path))
	}
	content := strings.Join(labels, "\n")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return errors.Wrapf(err, "ラベルファイルの書き込みに失敗: %q", path)
	}
	return nil
}

// ReadManifest はラベルファイルを読み込む。末尾の空行は無視する。
func ReadManifest(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "ラベルファイルの読み込みに失敗: %q", path)
	}
	content := strings.TrimRight(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if content == "" {
		return nil, nil
	}
	return strings.Split(content, "\n"), nil
}

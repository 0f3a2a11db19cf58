// Package taxonomy はアプリ側の6クラス分類体系と、公開データセットのラベル名から
// クラスへの対応付けを定義する。
package taxonomy

import (
	"sort"
	"strings"
)

// クラスフォルダ名
const (
	CocoaBlackPod     = "cocoa__black_pod"
	CocoaHealthy      = "cocoa__healthy"
	MaizeRust         = "maize__rust"
	MaizeHealthy      = "maize__healthy"
	TomatoEarlyBlight = "tomato__early_blight"
	TomatoHealthy     = "tomato__healthy"

	folderSeparator  = "__"
	healthyCondition = "healthy"
)

// Classes は固定された6クラスの順序。ファインチューナーのラベル順もこれに従う。
var Classes = []string{
	CocoaBlackPod,
	CocoaHealthy,
	MaizeRust,
	MaizeHealthy,
	TomatoEarlyBlight,
	TomatoHealthy,
}

// IsClass は name が閉じたクラス集合に含まれるかを返す
func IsClass(name string) bool {
	return Index(name) >= 0
}

// Index は name の Classes 内の位置を返す。含まれない場合は -1。
func Index(name string) int {
	for i, c := range Classes {
		if c == name {
			return i
		}
	}
	return -1
}

// TaxonomyOrder は固定順のクラス一覧のコピーを返す
func TaxonomyOrder() []string {
	out := make([]string, len(Classes))
	copy(out, Classes)
	return out
}

// ModelOrder はYOLO分類器のクラスインデックス順（フォルダ名のソート順）を返す
func ModelOrder(folders []string) []string {
	out := make([]string, len(folders))
	copy(out, folders)
	sort.Strings(out)
	return out
}

// Crop はフォルダ名から作物名を取り出す（"maize__rust" -> "maize"）
func Crop(folder string) string {
	crop, _, found := strings.Cut(folder, folderSeparator)
	if !found {
		return ""
	}
	return crop
}

// Package source は入力データセットから学習用の例（画像ファイル）を収集する。
package source

import (
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"leaflens-dataset/internal/taxonomy"
	"leaflens-dataset/internal/utils"
)

// 例の出どころ
const (
	OriginPlantVillage = "plantvillage"
	OriginLocal        = "local"
)

// Example は1枚の画像と割り当てられたクラス
type Example struct {
	Class       string // クラスフォルダ名
	Path        string // 元画像のパス
	SourceLabel string // 元データセットのラベル名（ディレクトリ名）
	Origin      string // OriginPlantVillage または OriginLocal
	Index       int    // 一致した全例を通した連番（出力ファイル名に使う）
}

// Key は分割の並び順を決めるキー
func Key(e Example) string {
	return e.Path
}

// GroupByClass は例をクラスごとにまとめる
func GroupByClass(examples []Example) map[string][]Example {
	out := make(map[string][]Example)
	for _, e := range examples {
		out[e.Class] = append(out[e.Class], e)
	}
	return out
}

// PlantVillageDir はラベルごとのディレクトリを持つPlantVillageから、規則に一致するラベルの画像を集める。
// 一致しないラベルは黙って除外する。root が存在しない場合はエラー。
func PlantVillageDir(root string, matcher *taxonomy.Matcher) ([]Example, error) {
	if !utils.IsDir(root) {
		return nil, errors.Errorf("PlantVillageのディレクトリが存在しません: %s", root)
	}
	labelDirs, err := utils.GetClassDirectories(root)
	if err != nil {
		return nil, err
	}

	var examples []Example
	count := 0
	for _, dir := range labelDirs {
		label := utils.GetClassName(dir)
		class, ok := matcher.Match(label)
		if !ok {
			klog.V(1).Infof("ラベル %q は対象外のため除外", label)
			continue
		}
		klog.Infof("  %s -> %s", label, class)

		files, err := utils.GetImageFiles(dir)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			examples = append(examples, Example{Class: class, Path: f, SourceLabel: label, Origin: OriginPlantVillage, Index: count})
			count++
		}
	}
	klog.Infof("PlantVillageから %d 件の画像を抽出", count)
	return examples, nil
}

// LocalClasses はローカルの画像ディレクトリ（root/<subdir>）を対応表に従って集める。
// 存在しない、または画像が無いサブディレクトリはスキップする。found は1件以上見つかったかどうか。
func LocalClasses(root string, mapping []taxonomy.LocalMapping) (examples []Example, found bool, err error) {
	for _, m := range mapping {
		dir := filepath.Join(root, m.SubDir)
		if !utils.IsDir(dir) {
			klog.V(1).Infof("ローカル画像ディレクトリが無いためスキップ: %s", dir)
			continue
		}
		files, err := utils.GetImageFiles(dir)
		if err != nil {
			return nil, false, err
		}
		if len(files) == 0 {
			continue
		}
		found = true
		for i, f := range files {
			examples = append(examples, Example{Class: m.Class, Path: f, SourceLabel: m.SubDir, Origin: OriginLocal, Index: i})
		}
	}
	return examples, found, nil
}

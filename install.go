package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"leaflens-dataset/internal/taxonomy"
	"leaflens-dataset/internal/utils"
)

// アプリ側に配置するファイル名
const (
	DefaultAssetsDir = "app/src/main/assets"
	ModelFileName    = "model.tflite"
	LabelsFileName   = "labels.txt"
)

// findModel は path がディレクトリなら中の .tflite を探して返す
func findModel(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(err, "モデルが見つかりません: %q", path)
	}
	if !info.IsDir() {
		return path, nil
	}
	files, err := utils.GetFiles(path, []string{".tflite"})
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", errors.Errorf(".tflite ファイルが見つかりません: %s", path)
	}
	if len(files) > 1 {
		klog.Warningf("%d個の .tflite ファイルがあります。%s を使用します", len(files), files[0])
	}
	return files[0], nil
}

// copyModel はモデルを dst にコピーする
func copyModel(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "モデルの読み込みに失敗: %q", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrapf(err, "ディレクトリの作成に失敗: %q", filepath.Dir(dst))
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return errors.Wrapf(err, "モデルの書き込みに失敗: %q", dst)
	}
	return nil
}

func runInstall(args []string, out io.Writer) error {
	fs := newFlagSet("install")
	fs.SetOutput(out)
	var m manifestFlags
	m.register(fs)
	modelPath := fs.String("model", "", "学習・エクスポート済みのモデル（ファイル、または .tflite を含むディレクトリ）")
	assetsDir := fs.String("assets", DefaultAssetsDir, "アプリのassetsディレクトリ")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelPath == "" {
		return errors.New("-model が指定されていません")
	}

	src, err := findModel(*modelPath)
	if err != nil {
		return err
	}
	folders, labels, err := m.labels()
	if err != nil {
		return err
	}
	printClasses(out, folders, labels)

	dstModel := filepath.Join(*assetsDir, ModelFileName)
	if err := copyModel(src, dstModel); err != nil {
		return err
	}
	fmt.Fprintf(out, "モデルをコピーしました: %s\n", dstModel)

	dstLabels := filepath.Join(*assetsDir, LabelsFileName)
	if err := taxonomy.WriteManifest(dstLabels, labels); err != nil {
		return err
	}
	fmt.Fprintf(out, "ラベルを書き出しました: %s\n", dstLabels)
	fmt.Fprintln(out, "完了しました。アプリを再ビルドすると新しいモデルが使われます。")
	return nil
}

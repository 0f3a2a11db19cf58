package main

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"leaflens-dataset/internal/config"
	"leaflens-dataset/internal/split"
	"leaflens-dataset/internal/taxonomy"
	"leaflens-dataset/internal/utils"
)

// クラス順
const (
	OrderModel    = "model"
	OrderTaxonomy = "taxonomy"
)

// manifestFlags は labels / install / verify で共通のラベル関連フラグ
type manifestFlags struct {
	dataset    string
	names      string
	order      string
	configFile string
}

func (m *manifestFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&m.dataset, "dataset", config.DefaultDestDir, "prepare で作成したデータセット")
	fs.StringVar(&m.names, "names", "", "モデルのクラス名をインデックス順にカンマ区切りで指定（-dataset より優先）")
	fs.StringVar(&m.order, "order", OrderModel, "クラス順: model（フォルダ名のソート順）または taxonomy（固定順）")
	fs.StringVar(&m.configFile, "config", "", "ラベルの上書きを含むHCL設定ファイル（任意）")
}

// classOrder はモデルのクラスインデックス順のフォルダ名を返す
func (m *manifestFlags) classOrder() ([]string, error) {
	if m.names != "" {
		var names []string
		for _, n := range strings.Split(m.names, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		return names, nil
	}
	switch m.order {
	case OrderTaxonomy:
		return taxonomy.TaxonomyOrder(), nil
	case OrderModel:
	default:
		return nil, errors.Errorf("不明なクラス順 %q (model または taxonomy)", m.order)
	}

	trainDir := filepath.Join(m.dataset, split.Train)
	if !utils.IsDir(trainDir) {
		return nil, errors.Errorf("データセットが見つかりません: %s (先に prepare を実行してください)", m.dataset)
	}
	dirs, err := utils.GetClassDirectories(trainDir)
	if err != nil {
		return nil, err
	}
	folders := make([]string, len(dirs))
	for i, d := range dirs {
		folders[i] = utils.GetClassName(d)
	}
	return taxonomy.ModelOrder(folders), nil
}

// labelTable は設定ファイルのラベル上書きを反映した対応表を返す
func (m *manifestFlags) labelTable() (map[string]string, error) {
	cfg := config.NewDefaultConfig()
	if m.configFile != "" {
		if err := cfg.LoadFile(m.configFile); err != nil {
			return nil, err
		}
	}
	return cfg.LabelTable(), nil
}

// labels はクラス順とラベル一覧を返す
func (m *manifestFlags) labels() (folders, labels []string, err error) {
	folders, err = m.classOrder()
	if err != nil {
		return nil, nil, err
	}
	table, err := m.labelTable()
	if err != nil {
		return nil, nil, err
	}
	return folders, taxonomy.GenerateLabels(folders, table), nil
}

func printClasses(out io.Writer, folders, labels []string) {
	fmt.Fprintf(out, "モデルのクラス (%d):\n", len(folders))
	for i := range folders {
		fmt.Fprintf(out, "  %d: %s -> %s\n", i, folders[i], labels[i])
	}
}

func runLabels(args []string, out io.Writer) error {
	fs := newFlagSet("labels")
	fs.SetOutput(out)
	var m manifestFlags
	m.register(fs)
	outPath := fs.String("out", "labels.txt", "出力するラベルファイル")
	if err := fs.Parse(args); err != nil {
		return err
	}

	folders, labels, err := m.labels()
	if err != nil {
		return err
	}
	printClasses(out, folders, labels)
	if err := taxonomy.WriteManifest(*outPath, labels); err != nil {
		return err
	}
	fmt.Fprintf(out, "ラベルを書き出しました: %s\n", *outPath)
	return nil
}

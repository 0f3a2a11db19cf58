package main

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pkg/errors"

	"leaflens-dataset/internal/config"
	"leaflens-dataset/internal/split"
	"leaflens-dataset/internal/taxonomy"
	"leaflens-dataset/internal/utils"
	"leaflens-dataset/internal/verify"
)

func runVerify(args []string, out io.Writer) error {
	fs := newFlagSet("verify")
	fs.SetOutput(out)
	var m manifestFlags
	m.register(fs)
	labelsPath := fs.String("labels", "", "確認するラベルファイル（任意）")
	onnxPath := fs.String("onnx", "", "出力クラス数を確認するONNXモデル（任意）")
	ortLib := fs.String("ort-lib", "", "onnxruntimeの共有ライブラリのパス")
	seed := fs.Int64("seed", split.DefaultSeed, "分割のシード（既定は "+config.ParamsFile+" の記録）")
	valRatio := fs.Float64("val-ratio", split.DefaultValRatio, "検証データ比率（既定は "+config.ParamsFile+" の記録）")
	strategy := fs.String("strategy", config.StrategyStratified, "分割方式（既定は "+config.ParamsFile+" の記録）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params, err := splitParams(m.dataset)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			params.Seed = *seed
		case "val-ratio":
			params.ValRatio = *valRatio
		case "strategy":
			params.Strategy = *strategy
		}
	})
	if err := params.Validate(); err != nil {
		return err
	}

	report, err := verify.Dataset(m.dataset, verify.Options{
		ValRatio:   params.ValRatio,
		Seed:       params.Seed,
		Stratified: params.Stratified(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, report.Summary.Table())
	problems := report.Problems

	if *labelsPath != "" {
		labels, err := taxonomy.ReadManifest(*labelsPath)
		if err != nil {
			return err
		}
		folders, err := m.classOrder()
		if err != nil {
			return err
		}
		table, err := m.labelTable()
		if err != nil {
			return err
		}
		problems = append(problems, verify.Manifest(labels, folders, table)...)

		if *onnxPath != "" {
			modelProblems, err := verify.CheckModel(*onnxPath, *ortLib, len(labels))
			if err != nil {
				return err
			}
			problems = append(problems, modelProblems...)
		}
	} else if *onnxPath != "" {
		return errors.New("-onnx には -labels が必要です")
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(out, "NG: %s\n", p)
		}
		return errors.Errorf("%d件の問題が見つかりました", len(problems))
	}
	fmt.Fprintln(out, "OK: 問題は見つかりませんでした")
	return nil
}

// splitParams は prepare が記録した分割条件を読む。記録が無ければ既定値。
func splitParams(dataset string) (config.SplitParams, error) {
	path := filepath.Join(dataset, config.ParamsFile)
	exists, err := utils.FileExists(path)
	if err != nil {
		return config.SplitParams{}, err
	}
	if !exists {
		return config.DefaultSplitParams(), nil
	}
	return config.ReadParams(path)
}

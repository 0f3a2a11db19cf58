package config

import (
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"

	"leaflens-dataset/internal/split"
)

// ParamsFile は出力ディレクトリに置く分割条件のファイル名
const ParamsFile = "split.hcl"

// SplitParams は分割の再現に必要な条件
type SplitParams struct {
	Seed     int64   `hcl:"seed"`
	ValRatio float64 `hcl:"val_ratio"`
	Strategy string  `hcl:"strategy"`
}

// DefaultSplitParams は prepare の既定値と同じ条件を返す
func DefaultSplitParams() SplitParams {
	return SplitParams{Seed: split.DefaultSeed, ValRatio: split.DefaultValRatio, Strategy: StrategyStratified}
}

// Validate は分割方式と比率を確認する
func (p SplitParams) Validate() error {
	switch p.Strategy {
	case StrategyStratified:
		return split.ValidateRatio(p.ValRatio)
	case StrategyModulo:
		return split.ValidateModuloRatio(p.ValRatio)
	}
	return errors.Errorf("不明な分割方式 %q (stratified または modulo)", p.Strategy)
}

// Stratified はクラスごとの分割かどうか
func (p SplitParams) Stratified() bool {
	return p.Strategy == StrategyStratified
}

// Params は設定のうち分割条件を返す
func (c *Config) Params() SplitParams {
	return SplitParams{Seed: c.Seed, ValRatio: c.GetValidationRatio(), Strategy: c.Strategy}
}

// WriteParams は分割条件をHCLで書き出す
func WriteParams(path string, p SplitParams) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	body.SetAttributeValue("seed", cty.NumberIntVal(p.Seed))
	body.SetAttributeValue("val_ratio", cty.NumberFloatVal(p.ValRatio))
	body.SetAttributeValue("strategy", cty.StringVal(p.Strategy))
	if err := os.WriteFile(path, f.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, "分割条件の書き込みに失敗: %q", path)
	}
	return nil
}

// ReadParams は WriteParams で書き出した分割条件を読み込む
func ReadParams(path string) (SplitParams, error) {
	var p SplitParams
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return p, errors.Wrapf(diags, "分割条件の解析に失敗: %s", path)
	}
	if diags = gohcl.DecodeBody(file.Body, nil, &p); diags.HasErrors() {
		return p, errors.Wrapf(diags, "分割条件のデコードに失敗: %s", path)
	}
	return p, nil
}

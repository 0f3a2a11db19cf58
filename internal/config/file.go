package config

import (
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"

	"leaflens-dataset/internal/taxonomy"
)

// hclFile は設定ファイル（HCL）のトップレベル構造
type hclFile struct {
	Seed      *int64      `hcl:"seed,optional"`
	ValRatio  *float64    `hcl:"val_ratio,optional"`
	Strategy  *string     `hcl:"strategy,optional"`
	RuleSet   *string     `hcl:"rules,optional"`
	Quality   *int        `hcl:"quality,optional"`
	Resize    *int        `hcl:"resize,optional"`
	Rules     []*hclRule  `hcl:"rule,block"`
	Locals    []*hclLocal `hcl:"local,block"`
	LabelDefs []*hclLabel `hcl:"label,block"`
}

// hclRule は rule ブロック: rule "maize__rust" { match = [["corn"], ["common_rust"]] }
type hclRule struct {
	Class string     `hcl:"class,label"`
	Match [][]string `hcl:"match"`
}

// hclLocal は local ブロック: local "healthy" { class = "cocoa__healthy" }
type hclLocal struct {
	SubDir string `hcl:"subdir,label"`
	Class  string `hcl:"class"`
}

// hclLabel は label ブロック: label "maize__rust" { text = "Maize:maize_rust" }
type hclLabel struct {
	Folder string `hcl:"folder,label"`
	Text   string `hcl:"text"`
}

// LoadFile はHCL設定ファイルを読み込み、指定された項目だけを c に上書きする。
// rule / local ブロックが1つでもあれば既定の規則・対応を置き換える。
func (c *Config) LoadFile(path string) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return errors.Wrapf(diags, "設定ファイルの解析に失敗: %s", path)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return errors.Wrapf(diags, "設定ファイルのデコードに失敗: %s", path)
	}

	if parsed.Seed != nil {
		c.Seed = *parsed.Seed
	}
	if parsed.ValRatio != nil {
		c.ValRatio = *parsed.ValRatio
	}
	if parsed.Strategy != nil {
		c.Strategy = *parsed.Strategy
	}
	if parsed.RuleSet != nil {
		c.RuleSet = *parsed.RuleSet
	}
	if parsed.Quality != nil {
		c.Quality = *parsed.Quality
	}
	if parsed.Resize != nil {
		c.Resize = *parsed.Resize
	}
	if len(parsed.Rules) > 0 {
		c.Rules = make([]taxonomy.Rule, 0, len(parsed.Rules))
		for _, r := range parsed.Rules {
			c.Rules = append(c.Rules, taxonomy.NewRule(r.Class, r.Match...))
		}
	}
	if len(parsed.Locals) > 0 {
		c.LocalMapping = make([]taxonomy.LocalMapping, 0, len(parsed.Locals))
		for _, l := range parsed.Locals {
			c.LocalMapping = append(c.LocalMapping, taxonomy.LocalMapping{SubDir: l.SubDir, Class: l.Class})
		}
	}
	if len(parsed.LabelDefs) > 0 {
		if c.Labels == nil {
			c.Labels = make(map[string]string, len(parsed.LabelDefs))
		}
		for _, l := range parsed.LabelDefs {
			c.Labels[l.Folder] = l.Text
		}
	}
	return nil
}

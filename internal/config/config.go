package config

import (
	"runtime"

	"github.com/pkg/errors"

	"leaflens-dataset/internal/split"
	"leaflens-dataset/internal/taxonomy"
)

// 分割方式
const (
	StrategyStratified = "stratified"
	StrategyModulo     = "modulo"
)

// 既定値
const (
	DefaultDestDir  = "datasets/ccmt_cls"
	DefaultLocalDir = "data/Cocoa"
	DefaultCacheDir = "~/.cache/leaflens"
	DefaultQuality  = 95
)

// Config はデータセット作成の設定情報を保持
type Config struct {
	PlantVillageDir      string  // フォルダ構成のPlantVillage（ラベルごとのディレクトリ）
	PlantVillageURL      string  // PlantVillageDir が無い場合のダウンロード元
	PlantVillageChecksum string  // ダウンロードファイルのSHA-256（空なら検証しない）
	CacheDir             string  // ダウンロードと展開先
	LocalDir             string  // ローカルのカカオ画像ディレクトリ（任意）
	DestDir              string  // 出力先ディレクトリ
	ValRatio             float64 // 検証データ比率
	Seed                 int64   // 乱数シード
	Strategy             string  // stratified または modulo
	RuleSet              string  // strict または loose
	Quality              int     // JPEG再エンコードの品質
	Resize               int     // 長辺をこのサイズに収める（0で無効）
	TarOutput            bool    // tar出力フラグ
	GzipTar              bool    // tarをgzip圧縮
	MaxConcurrent        int     // 最大並列度（クラス単位）
	MaxCopyWorkers       int     // 最大コピーワーカー数
	KeepExisting         bool    // 既存の出力を削除しない

	Rules        []taxonomy.Rule         // ラベル対応規則
	LocalMapping []taxonomy.LocalMapping // ローカル画像のサブディレクトリ対応
	Labels       map[string]string       // フォルダ名→ラベルの上書き
}

// NewDefaultConfig はデフォルト設定を返す
func NewDefaultConfig() *Config {
	maxConcurrent := runtime.NumCPU() / 2
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Config{
		CacheDir:       DefaultCacheDir,
		LocalDir:       DefaultLocalDir,
		DestDir:        DefaultDestDir,
		ValRatio:       split.DefaultValRatio,
		Seed:           split.DefaultSeed,
		Strategy:       StrategyStratified,
		RuleSet:        "strict",
		Quality:        DefaultQuality,
		MaxConcurrent:  maxConcurrent,
		MaxCopyWorkers: runtime.NumCPU(),
		LocalMapping:   taxonomy.DefaultLocalMapping,
	}
}

// Validate は設定の妥当性をチェックし、規則セットを解決する
func (c *Config) Validate() error {
	if c.PlantVillageDir == "" && c.PlantVillageURL == "" {
		return errors.Errorf("PlantVillageのディレクトリまたはダウンロードURLが指定されていません")
	}
	if c.DestDir == "" {
		return errors.Errorf("出力先ディレクトリが指定されていません")
	}
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if c.Quality < 1 || c.Quality > 100 {
		return errors.Errorf("JPEG品質は1から100の間である必要があります: %d", c.Quality)
	}
	if c.Resize < 0 {
		return errors.Errorf("リサイズ値は0以上である必要があります: %d", c.Resize)
	}
	if c.MaxConcurrent < 1 {
		return errors.Errorf("最大並列度は1以上である必要があります")
	}
	if c.MaxCopyWorkers < 1 {
		return errors.Errorf("最大コピーワーカー数は1以上である必要があります")
	}
	if len(c.Rules) == 0 {
		rules, err := taxonomy.RulesByName(c.RuleSet)
		if err != nil {
			return err
		}
		c.Rules = rules
	}
	for _, m := range c.LocalMapping {
		if !taxonomy.IsClass(m.Class) {
			return errors.Errorf("ローカル画像 %q のクラス %q は分類体系に含まれていません", m.SubDir, m.Class)
		}
	}
	return nil
}

// GetValidationRatio は検証データ比率を返す
func (c *Config) GetValidationRatio() float64 {
	return c.ValRatio
}

// GetMaxConcurrent は最大並列度を返す
func (c *Config) GetMaxConcurrent() int {
	return c.MaxConcurrent
}

// GetMaxCopyWorkers は最大コピーワーカー数を返す
func (c *Config) GetMaxCopyWorkers() int {
	return c.MaxCopyWorkers
}

// LabelTable はラベルの上書きを既定の対応表に重ねたものを返す
func (c *Config) LabelTable() map[string]string {
	table := make(map[string]string, len(taxonomy.DefaultLabels)+len(c.Labels))
	for k, v := range taxonomy.DefaultLabels {
		table[k] = v
	}
	for k, v := range c.Labels {
		table[k] = v
	}
	return table
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"leaflens-dataset/internal/config"
	"leaflens-dataset/internal/downloader"
	"leaflens-dataset/internal/processor"
	"leaflens-dataset/internal/source"
	"leaflens-dataset/internal/split"
	"leaflens-dataset/internal/taxonomy"
	"leaflens-dataset/internal/utils"
)

// parsePrepareFlags は prepare コマンドの引数を解析する
func parsePrepareFlags(args []string, out io.Writer) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	fs := newFlagSet("prepare")
	fs.SetOutput(out)

	var configFile string
	fs.StringVar(&configFile, "config", "", "HCL設定ファイル（任意）。フラグより先に適用される")
	fs.StringVar(&cfg.PlantVillageDir, "plantvillage", "", "PlantVillageのディレクトリ（ラベルごとのサブディレクトリ）")
	fs.StringVar(&cfg.PlantVillageURL, "plantvillage-url", "", "PlantVillageのアーカイブURL（-plantvillage が無い場合）")
	fs.StringVar(&cfg.PlantVillageChecksum, "checksum", "", "アーカイブのSHA-256（任意）")
	fs.StringVar(&cfg.CacheDir, "cache", cfg.CacheDir, "ダウンロードと展開に使うディレクトリ")
	fs.StringVar(&cfg.LocalDir, "cocoa", cfg.LocalDir, "ローカルのカカオ画像ディレクトリ（無ければスキップ）")
	fs.StringVar(&cfg.DestDir, "out", cfg.DestDir, "出力先ディレクトリ")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "分割の乱数シード")
	fs.Float64Var(&cfg.ValRatio, "val-ratio", cfg.ValRatio, "検証データの比率 (0.0-1.0)")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "分割方式: stratified（クラスごと）または modulo（全体を間引き）")
	fs.StringVar(&cfg.RuleSet, "rules", cfg.RuleSet, "ラベル対応規則: strict または loose（設定ファイルの rule ブロックより優先）")
	fs.IntVar(&cfg.Quality, "quality", cfg.Quality, "JPEG再エンコードの品質")
	fs.IntVar(&cfg.Resize, "resize", cfg.Resize, "画像をこのサイズ以内に縮小（0で無効）")
	fs.BoolVar(&cfg.TarOutput, "tar", false, "出力をtarファイルにまとめる")
	fs.BoolVar(&cfg.GzipTar, "gzip", false, "tarをgzip圧縮する（-tar と併用）")
	fs.BoolVar(&cfg.KeepExisting, "keep", false, "既存の出力ディレクトリを削除しない")
	fs.IntVar(&cfg.MaxConcurrent, "max-concurrent", cfg.MaxConcurrent, "同時処理するクラス数")
	fs.IntVar(&cfg.MaxCopyWorkers, "copy-workers", cfg.MaxCopyWorkers, "ファイル書き出しの並列数")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// 設定ファイルを読み、明示されたフラグで上書きする
	if configFile != "" {
		explicit := make(map[string]string)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })
		if err := cfg.LoadFile(configFile); err != nil {
			return nil, err
		}
		for name, value := range explicit {
			if err := fs.Set(name, value); err != nil {
				return nil, errors.Wrapf(err, "フラグ -%s の再適用に失敗", name)
			}
		}
		// -rules が明示されたら rule ブロックは使わない
		if _, ok := explicit["rules"]; ok {
			cfg.Rules = nil
		}
	}

	// 位置引数もサポート（PlantVillageディレクトリ、出力先）
	rest := fs.Args()
	if len(rest) >= 1 && cfg.PlantVillageDir == "" {
		cfg.PlantVillageDir = rest[0]
	}
	if len(rest) >= 2 {
		cfg.DestDir = rest[1]
	}

	for _, p := range []*string{&cfg.PlantVillageDir, &cfg.LocalDir, &cfg.DestDir, &cfg.CacheDir} {
		expanded, err := utils.ReplaceTildeInDir(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "設定エラー")
	}
	return cfg, nil
}

func runPrepare(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := parsePrepareFlags(args, out)
	if err != nil {
		return err
	}
	return prepare(ctx, cfg, out)
}

// prepare はデータセットを作成する
func prepare(ctx context.Context, cfg *config.Config, out io.Writer) error {
	klog.Infof("データセット作成を開始します...")
	klog.Infof("出力先: %s", cfg.DestDir)
	klog.Infof("検証データ比率: %.2f%% (シード %d, 方式 %s)", cfg.GetValidationRatio()*100, cfg.Seed, cfg.Strategy)
	klog.Infof("並列処理: %dクラス, %dワーカー", cfg.GetMaxConcurrent(), cfg.GetMaxCopyWorkers())

	matcher, err := taxonomy.NewMatcher(cfg.Rules)
	if err != nil {
		return err
	}

	pvDir := cfg.PlantVillageDir
	if pvDir == "" {
		pvDir, err = downloader.EnsurePlantVillage(ctx, cfg.PlantVillageURL, cfg.CacheDir, cfg.PlantVillageChecksum)
		if err != nil {
			return err
		}
	}
	klog.Infof("PlantVillageを読み込み中: %s", pvDir)
	examples, err := source.PlantVillageDir(pvDir, matcher)
	if err != nil {
		return err
	}

	klog.Infof("カカオ画像を確認中: %s", cfg.LocalDir)
	var local []source.Example
	localFound := false
	if cfg.LocalDir != "" {
		local, localFound, err = source.LocalClasses(cfg.LocalDir, cfg.LocalMapping)
		if err != nil {
			return err
		}
	}
	if !localFound {
		klog.Infof("  カカオ画像が見つかりません: %s", cfg.LocalDir)
		klog.Infof("  空のカカオフォルダを作成します（学習側では%dクラスとして扱われます）", len(taxonomy.Classes))
	}
	examples = append(examples, local...)

	// 以前の出力を削除
	if !cfg.KeepExisting && utils.IsDir(cfg.DestDir) {
		klog.Infof("既存の出力を削除: %s", cfg.DestDir)
		if err := os.RemoveAll(cfg.DestDir); err != nil {
			return errors.Wrapf(err, "既存の出力の削除に失敗: %q", cfg.DestDir)
		}
	}
	if err := processor.CreateClassDirs(cfg.DestDir, taxonomy.Classes); err != nil {
		return err
	}

	writer := &processor.Writer{
		DestDir:  cfg.DestDir,
		Quality:  cfg.Quality,
		Resize:   cfg.Resize,
		Workers:  cfg.GetMaxCopyWorkers(),
		Progress: klog.V(0).Enabled() && isTerminal(os.Stderr),
	}
	results, err := partition(examples, cfg)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var records []processor.PlanRecord
	jobs := make([]processor.Job, 0, len(results))
	for _, r := range results {
		r := r
		jobs = append(jobs, processor.Job{
			Name: r.Class + " (" + r.origin + ")",
			Run: func(ctx context.Context) error {
				recs, err := writer.WriteResult(ctx, r.Result, processor.ModeFor(r.origin))
				if err != nil {
					return err
				}
				klog.Infof("  %s: %d train, %d val (%s)", r.Class, len(r.Train), len(r.Val), r.origin)
				mu.Lock()
				records = append(records, recs...)
				mu.Unlock()
				return nil
			},
		})
	}
	if err := processor.ProcessClassesParallel(ctx, cfg.GetMaxConcurrent(), jobs); err != nil {
		return err
	}

	processor.SortPlan(records)
	planPath := filepath.Join(cfg.DestDir, processor.PlanFile)
	if err := processor.WritePlan(planPath, records); err != nil {
		return err
	}
	if err := config.WriteParams(filepath.Join(cfg.DestDir, config.ParamsFile), cfg.Params()); err != nil {
		return err
	}

	summary, err := processor.Summarize(cfg.DestDir)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "データセットの準備ができました:")
	fmt.Fprintln(out, summary.Table())
	for _, s := range split.Splits {
		fmt.Fprintf(out, "  %s: %s 枚\n", s, humanize.Comma(int64(summary.Total(s))))
	}
	fmt.Fprintf(out, "出力: %s\n", cfg.DestDir)

	if cfg.TarOutput {
		tarPath := processor.TarPath(cfg.DestDir, cfg.GzipTar)
		if err := processor.CreateTarArchive(cfg.DestDir, tarPath, cfg.GzipTar); err != nil {
			klog.Warningf("tarファイルの作成に失敗: %+v", err)
		}
	}
	return nil
}

// originResult は出どころ付きの分割結果
type originResult struct {
	split.Result[source.Example]
	origin string
}

// partition は設定された方式で例を分割し、出どころとクラスごとの結果にまとめる
func partition(examples []source.Example, cfg *config.Config) ([]originResult, error) {
	byOrigin := make(map[string][]source.Example)
	for _, e := range examples {
		byOrigin[e.Origin] = append(byOrigin[e.Origin], e)
	}

	var results []originResult
	if cfg.Strategy == config.StrategyStratified {
		for _, origin := range []string{source.OriginPlantVillage, source.OriginLocal} {
			for _, r := range split.ByClass(source.GroupByClass(byOrigin[origin]), source.Key, cfg.GetValidationRatio(), cfg.Seed) {
				results = append(results, originResult{Result: r, origin: origin})
			}
		}
		return results, nil
	}

	train, val, err := split.Modulo(examples, source.Key, split.EveryForRatio(cfg.GetValidationRatio()), cfg.Seed)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string]*originResult)
	var order []string
	get := func(e source.Example) *originResult {
		key := e.Origin + "/" + e.Class
		if r, ok := grouped[key]; ok {
			return r
		}
		r := &originResult{Result: split.Result[source.Example]{Class: e.Class}, origin: e.Origin}
		grouped[key] = r
		order = append(order, key)
		return r
	}
	for _, e := range train {
		r := get(e)
		r.Train = append(r.Train, e)
	}
	for _, e := range val {
		r := get(e)
		r.Val = append(r.Val, e)
	}
	for _, key := range order {
		results = append(results, *grouped[key])
	}
	return results, nil
}

// isTerminal は進捗バーを表示する出力先かどうかを返す
func isTerminal(f *os.File) bool {
	if strings.EqualFold(os.Getenv("TERM"), "dumb") {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

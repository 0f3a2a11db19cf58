// Package verify は作成済みデータセットとラベルファイルの整合性を確認する。
package verify

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"leaflens-dataset/internal/processor"
	"leaflens-dataset/internal/split"
	"leaflens-dataset/internal/taxonomy"
	"leaflens-dataset/internal/utils"
)

// MinExamplesForRatio 未満の件数のクラスは検証データ比率を確認しない
const MinExamplesForRatio = 10

// Options は確認の条件
type Options struct {
	ValRatio   float64
	Seed       int64
	Stratified bool // false の場合は modulo 方式として再計算する
}

// Report は確認結果
type Report struct {
	Summary  *processor.Summary
	Problems []string
}

// OK は問題が無いかを返す
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

func (r *Report) addf(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Dataset は <destDir>/<split>/<class> の構成を確認する。
// destDir や分割ディレクトリが無い場合はエラー、それ以外の不整合は Report.Problems に入る。
func Dataset(destDir string, opts Options) (*Report, error) {
	for _, s := range split.Splits {
		dir := filepath.Join(destDir, s)
		if !utils.IsDir(dir) {
			return nil, errors.Errorf("データセットが見つかりません: %s (先に prepare を実行してください)", dir)
		}
	}
	summary, err := processor.Summarize(destDir)
	if err != nil {
		return nil, err
	}
	r := &Report{Summary: summary}

	for _, s := range split.Splits {
		for class := range summary.Counts[s] {
			if !taxonomy.IsClass(class) {
				r.addf("%s/%s: 分類体系に無いクラスフォルダ", s, class)
			}
		}
		for _, class := range taxonomy.Classes {
			if _, ok := summary.Counts[s][class]; !ok {
				r.addf("%s/%s: クラスフォルダがありません", s, class)
			}
		}
	}

	if opts.Stratified {
		for _, class := range summary.Classes {
			nVal := summary.Counts[split.Val][class]
			total := summary.Counts[split.Train][class] + nVal
			if total < MinExamplesForRatio {
				continue
			}
			frac := float64(nVal) / float64(total)
			if math.Abs(frac-opts.ValRatio) > 1.0/float64(total) {
				r.addf("%s: 検証データ比率 %.3f が %.3f から外れています (%d/%d)", class, frac, opts.ValRatio, nVal, total)
			}
		}
	}

	planPath := filepath.Join(destDir, processor.PlanFile)
	exists, err := utils.FileExists(planPath)
	if err != nil {
		return nil, err
	}
	if exists {
		records, err := processor.ReadPlan(planPath)
		if err != nil {
			return nil, err
		}
		checkPlan(r, records, opts)
	}
	return r, nil
}

// checkPlan は割り当て記録とディスク上の件数、および分割の再現性を確認する
func checkPlan(r *Report, records []processor.PlanRecord, opts Options) {
	planned := make(map[string]map[string]int)
	for _, s := range split.Splits {
		planned[s] = make(map[string]int)
	}
	for _, rec := range records {
		if _, ok := planned[rec.Split]; !ok {
			r.addf("割り当て記録に不明な分割 %q", rec.Split)
			continue
		}
		planned[rec.Split][rec.Class]++
		if ok, _ := utils.FileExists(rec.Dest); !ok {
			r.addf("割り当て記録の出力ファイルがありません: %s", rec.Dest)
		}
	}
	for _, s := range split.Splits {
		for class, n := range planned[s] {
			if got := r.Summary.Counts[s][class]; got != n {
				r.addf("%s/%s: 割り当て記録は %d 件、実際は %d 件", s, class, n, got)
			}
		}
	}

	for _, mismatch := range Reproduce(records, opts) {
		r.addf("分割が再現できません: %s", mismatch)
	}
}

// Reproduce は記録された元ファイルからシードを使って分割を再計算し、記録と異なる元ファイルを返す
func Reproduce(records []processor.PlanRecord, opts Options) []string {
	assigned := make(map[string]string, len(records))
	groups := make(map[string][]string)
	var all []string
	for _, rec := range records {
		assigned[rec.Source] = rec.Split
		key := rec.Origin + "/" + rec.Class
		groups[key] = append(groups[key], rec.Source)
		all = append(all, rec.Source)
	}

	identity := func(s string) string { return s }
	expected := make(map[string]string, len(records))
	mark := func(train, val []string) {
		for _, s := range train {
			expected[s] = split.Train
		}
		for _, s := range val {
			expected[s] = split.Val
		}
	}
	if opts.Stratified {
		for _, sources := range groups {
			mark(split.Partition(sources, identity, opts.ValRatio, opts.Seed))
		}
	} else {
		train, val, err := split.Modulo(all, identity, split.EveryForRatio(opts.ValRatio), opts.Seed)
		if err != nil {
			return []string{err.Error()}
		}
		mark(train, val)
	}

	var mismatches []string
	for src, got := range assigned {
		if want := expected[src]; want != got {
			mismatches = append(mismatches, fmt.Sprintf("%s (記録 %s, 再計算 %s)", src, got, want))
		}
	}
	sort.Strings(mismatches)
	return mismatches
}

// Manifest はラベルファイルがクラス順と一致するかを確認する
func Manifest(labels, classOrder []string, table map[string]string) []string {
	var problems []string
	if len(labels) != len(classOrder) {
		problems = append(problems, fmt.Sprintf("ラベル数 %d がクラス数 %d と一致しません", len(labels), len(classOrder)))
	}
	want := taxonomy.GenerateLabels(classOrder, table)
	for i := 0; i < len(labels) && i < len(want); i++ {
		if labels[i] != want[i] {
			problems = append(problems, fmt.Sprintf("%d行目: %q (期待値 %q)", i, labels[i], want[i]))
		}
	}
	return problems
}

package taxonomy

import (
	"strings"

	"github.com/pkg/errors"
)

// Rule はソースラベルを1つのクラスに割り当てる規則。
// Groups の各グループについて、いずれかのキーワードがラベルに含まれていれば一致とみなし、
// 全グループが一致したときにルールが成立する。
type Rule struct {
	Class  string
	Groups [][]string
}

// NewRule は Rule を作成
func NewRule(class string, groups ...[]string) Rule {
	return Rule{Class: class, Groups: groups}
}

// matches は正規化済みラベルがルールに一致するかを返す
func (r Rule) matches(normalized string) bool {
	if len(r.Groups) == 0 {
		return false
	}
	for _, group := range r.Groups {
		hit := false
		for _, keyword := range group {
			if keyword != "" && strings.Contains(normalized, normalize(keyword)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// DefaultRules はフォルダ構成のデータセット作成で使う厳密な対応表
var DefaultRules = []Rule{
	NewRule(MaizeRust, []string{"corn"}, []string{"common_rust"}),
	NewRule(MaizeHealthy, []string{"corn"}, []string{"healthy"}),
	NewRule(TomatoEarlyBlight, []string{"tomato"}, []string{"early_blight"}),
	NewRule(TomatoHealthy, []string{"tomato"}, []string{"healthy"}),
}

// LooseRules はファインチューナー側の緩い対応表。maize/corn のどちらも受け付ける。
var LooseRules = []Rule{
	NewRule(TomatoEarlyBlight, []string{"tomato"}, []string{"early"}, []string{"blight"}),
	NewRule(TomatoHealthy, []string{"tomato"}, []string{"healthy"}),
	NewRule(MaizeRust, []string{"maize", "corn"}, []string{"rust", "common_rust"}),
	NewRule(MaizeHealthy, []string{"maize", "corn"}, []string{"healthy"}),
}

// RulesByName は名前から規則セットを返す（"strict" または "loose"）
func RulesByName(name string) ([]Rule, error) {
	switch strings.ToLower(name) {
	case "", "strict":
		return DefaultRules, nil
	case "loose":
		return LooseRules, nil
	}
	return nil, errors.Errorf("不明なラベル規則セット %q (strict または loose)", name)
}

// normalize は大文字小文字と区切り文字の揺れを吸収する
func normalize(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// Matcher はソースラベル名をクラスフォルダ名へ対応付ける
type Matcher struct {
	rules []Rule
}

// NewMatcher は規則を検証して Matcher を作成。規則は先頭から評価され、最初の一致が採用される。
func NewMatcher(rules []Rule) (*Matcher, error) {
	for i, r := range rules {
		if !IsClass(r.Class) {
			return nil, errors.Errorf("規則 %d のクラス %q は分類体系に含まれていません", i, r.Class)
		}
		if len(r.Groups) == 0 {
			return nil, errors.Errorf("規則 %d (%s) にキーワードがありません", i, r.Class)
		}
	}
	return &Matcher{rules: rules}, nil
}

// Match はラベル名に一致するクラスを返す。一致しない場合 ok は false。
func (m *Matcher) Match(label string) (class string, ok bool) {
	n := normalize(label)
	for _, r := range m.rules {
		if r.matches(n) {
			return r.Class, true
		}
	}
	return "", false
}

// MapLabels はラベル名の一覧からインデックス→クラスの対応を作る。一致しないラベルは含まれない。
func (m *Matcher) MapLabels(names []string) map[int]string {
	out := make(map[int]string)
	for i, name := range names {
		if class, ok := m.Match(name); ok {
			out[i] = class
		}
	}
	return out
}

// LocalMapping はローカルのカカオ画像のサブディレクトリ名とクラスの対応
type LocalMapping struct {
	SubDir string
	Class  string
}

// DefaultLocalMapping は data/Cocoa 配下の既定の対応
var DefaultLocalMapping = []LocalMapping{
	{SubDir: "cocoa_black_pod", Class: CocoaBlackPod},
	{SubDir: "healthy", Class: CocoaHealthy},
}

// Package split はクラスごとの教師/検証データ分割を行う。
// 同じシードと同じ入力集合からは常に同じ分割が得られる。
package split

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// 分割名
const (
	Train = "train"
	Val   = "val"
)

// Splits は出力される分割名の一覧
var Splits = []string{Train, Val}

// DefaultSeed と DefaultValRatio は既定値
const (
	DefaultSeed     int64   = 42
	DefaultValRatio float64 = 0.2
)

// ValidateRatio は検証データ比率が (0, 1) の範囲かを確認
func ValidateRatio(valRatio float64) error {
	if valRatio <= 0.0 || valRatio >= 1.0 {
		return errors.Errorf("検証データ比率は0.0より大きく1.0より小さい値である必要があります: %g", valRatio)
	}
	return nil
}

// ValCount は n 件のうち検証データに回す件数を返す。
// ceil(n*valRatio) を基本とし、n >= 2 のときは教師データが最低1件残るようにする。
// n < 2 のときは全件を教師データとする。
func ValCount(n int, valRatio float64) int {
	if n < 2 {
		return 0
	}
	nVal := int(math.Ceil(float64(n) * valRatio))
	if nVal < 1 {
		nVal = 1
	}
	if nVal > n-1 {
		nVal = n - 1
	}
	return nVal
}

// sortedCopy は key 順に並べたコピーを返す。入力の並び順に結果が依存しないようにするため。
func sortedCopy[T any](items []T, key func(T) string) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return key(out[i]) < key(out[j])
	})
	return out
}

// shuffle はシード固定でシャッフルする
func shuffle[T any](items []T, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}

// Partition は items を教師データと検証データに分割する
func Partition[T any](items []T, key func(T) string, valRatio float64, seed int64) (train, val []T) {
	if len(items) == 0 {
		return nil, nil
	}
	shuffled := sortedCopy(items, key)
	shuffle(shuffled, seed)

	nVal := ValCount(len(shuffled), valRatio)
	nTrain := len(shuffled) - nVal
	return shuffled[:nTrain], shuffled[nTrain:]
}

// Result はクラスごとの分割結果
type Result[T any] struct {
	Class string
	Train []T
	Val   []T
}

// Total は分割前の件数
func (r Result[T]) Total() int {
	return len(r.Train) + len(r.Val)
}

// ByClass はクラスごとに独立して Partition を適用する。結果はクラス名順。
func ByClass[T any](byClass map[string][]T, key func(T) string, valRatio float64, seed int64) []Result[T] {
	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	results := make([]Result[T], 0, len(classes))
	for _, class := range classes {
		train, val := Partition(byClass[class], key, valRatio, seed)
		results = append(results, Result[T]{Class: class, Train: train, Val: val})
	}
	return results
}

// Modulo は全体をシャッフルしたあと、every 件ごと（インデックス % every == 0）を検証データにする。
// クラスの層化はしない。
func Modulo[T any](items []T, key func(T) string, every int, seed int64) (train, val []T, err error) {
	if every < 2 {
		return nil, nil, errors.Errorf("間引き間隔は2以上である必要があります: %d", every)
	}
	shuffled := sortedCopy(items, key)
	shuffle(shuffled, seed)
	for i, item := range shuffled {
		if i%every == 0 {
			val = append(val, item)
		} else {
			train = append(train, item)
		}
	}
	return train, val, nil
}

// EveryForRatio は検証データ比率に対応する間引き間隔を返す（0.2 -> 5）
func EveryForRatio(valRatio float64) int {
	every := int(math.Round(1.0 / valRatio))
	if every < 2 {
		every = 2
	}
	return every
}

// ModuloTolerance は間引き方式で許す 1/every と比率のずれ
const ModuloTolerance = 0.01

// ValidateModuloRatio は比率が 1/k（k >= 2）で表せるかを確認する。
// 0.4 のような比率は間引き間隔に丸められて別の比率になるためエラーにする。
func ValidateModuloRatio(valRatio float64) error {
	if err := ValidateRatio(valRatio); err != nil {
		return err
	}
	every := EveryForRatio(valRatio)
	if actual := 1.0 / float64(every); math.Abs(actual-valRatio) > ModuloTolerance {
		return errors.Errorf("間引き方式では検証データ比率 %g を表せません（間隔 %d で %.3f になります）。1/k の比率を指定してください",
			valRatio, every, actual)
	}
	return nil
}

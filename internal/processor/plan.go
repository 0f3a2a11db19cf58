package processor

import (
	"bytes"
	"os"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"

	"leaflens-dataset/internal/source"
)

// PlanFile は出力ディレクトリに置く割り当て記録のファイル名
const PlanFile = "split.csv"

// PlanRecord は1枚の画像の割り当て
type PlanRecord struct {
	Split       string `dataframe:"split"`
	Class       string `dataframe:"class"`
	Source      string `dataframe:"source"`
	Dest        string `dataframe:"dest"`
	SourceLabel string `dataframe:"source_label"`
	Origin      string `dataframe:"origin"`
}

// 例の出どころ
const (
	OriginPlantVillage = source.OriginPlantVillage
	OriginLocal        = source.OriginLocal
)

var planColumns = []string{"split", "class", "source", "dest", "source_label", "origin"}

// SortPlan は分割・クラス・出力先の順に並べる
func SortPlan(records []PlanRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Split != b.Split {
			return a.Split < b.Split
		}
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		return a.Dest < b.Dest
	})
}

// WritePlan は割り当て記録をCSVで書き出す
func WritePlan(path string, records []PlanRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "割り当て記録の作成に失敗: %q", path)
	}
	defer func() { _ = f.Close() }()

	if len(records) == 0 {
		_, err = f.WriteString(strings.Join(planColumns, ",") + "\n")
		return errors.Wrapf(err, "割り当て記録の書き込みに失敗: %q", path)
	}
	df := dataframe.LoadStructs(records)
	if df.Err != nil {
		return errors.Wrap(df.Err, "割り当て記録の変換に失敗")
	}
	df = df.Select(planColumns)
	if err := df.WriteCSV(f); err != nil {
		return errors.Wrapf(err, "割り当て記録の書き込みに失敗: %q", path)
	}
	return f.Close()
}

// ReadPlan は割り当て記録を読み込む
func ReadPlan(path string) ([]PlanRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "割り当て記録を開けません: %q", path)
	}
	// ヘッダーだけのファイルは空の記録
	if strings.Count(strings.TrimRight(string(data), "\n"), "\n") == 0 {
		return nil, nil
	}

	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.HasHeader(true))
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "割り当て記録の解析に失敗: %q", path)
	}
	if df.Nrow() == 0 {
		return nil, nil
	}
	cols := make([][]string, len(planColumns))
	for i, name := range planColumns {
		col := df.Col(name)
		if col.Err != nil {
			return nil, errors.Wrapf(col.Err, "割り当て記録に列 %q がありません: %q", name, path)
		}
		cols[i] = col.Records()
	}
	records := make([]PlanRecord, df.Nrow())
	for i := range records {
		records[i] = PlanRecord{
			Split:       cols[0][i],
			Class:       cols[1][i],
			Source:      cols[2][i],
			Dest:        cols[3][i],
			SourceLabel: cols[4][i],
			Origin:      cols[5][i],
		}
	}
	return records, nil
}

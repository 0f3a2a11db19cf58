package processor

import (
	"path/filepath"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"leaflens-dataset/internal/split"
	"leaflens-dataset/internal/utils"
)

// Summary は出力ディレクトリの分割・クラスごとの画像数
type Summary struct {
	Classes []string
	Counts  map[string]map[string]int // split -> class -> 件数
}

// Summarize は destDir/<split>/<class> のファイル数を数える
func Summarize(destDir string) (*Summary, error) {
	s := &Summary{Counts: make(map[string]map[string]int)}
	seen := make(map[string]bool)
	for _, splitName := range split.Splits {
		s.Counts[splitName] = make(map[string]int)
		splitDir := filepath.Join(destDir, splitName)
		if !utils.IsDir(splitDir) {
			continue
		}
		classDirs, err := utils.GetClassDirectories(splitDir)
		if err != nil {
			return nil, err
		}
		for _, dir := range classDirs {
			class := utils.GetClassName(dir)
			n, err := utils.CountFiles(dir)
			if err != nil {
				return nil, err
			}
			s.Counts[splitName][class] = n
			if !seen[class] {
				seen[class] = true
				s.Classes = append(s.Classes, class)
			}
		}
	}
	sort.Strings(s.Classes)
	return s, nil
}

// Total は分割内の合計件数
func (s *Summary) Total(splitName string) int {
	total := 0
	for _, n := range s.Counts[splitName] {
		total += n
	}
	return total
}

// Table はクラスごとの件数表を返す
func (s *Summary) Table() string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	headers := []string{"class"}
	headers = append(headers, split.Splits...)
	headers = append(headers, "val %")
	table.Headers(headers...)

	for _, class := range s.Classes {
		row := []string{class}
		total := 0
		for _, splitName := range split.Splits {
			n := s.Counts[splitName][class]
			total += n
			row = append(row, humanize.Comma(int64(n)))
		}
		row = append(row, valPercent(s.Counts[split.Val][class], total))
		table.Row(row...)
	}

	footer := []string{"total"}
	grand := 0
	for _, splitName := range split.Splits {
		n := s.Total(splitName)
		grand += n
		footer = append(footer, humanize.Comma(int64(n)))
	}
	footer = append(footer, valPercent(s.Total(split.Val), grand))
	table.Row(footer...)
	return table.String()
}

func valPercent(val, total int) string {
	if total == 0 {
		return "-"
	}
	return strconv.FormatFloat(100*float64(val)/float64(total), 'f', 1, 64)
}

package classify

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Zhang-Henry/paper-collection/internal/domain"
	"github.com/Zhang-Henry/paper-collection/internal/extract"
)

var evaluationColumns = []string{
	"conference", "year",
	"gpt_relevant", "gpt_confidence", "gpt_relevance_score", "gpt_reasoning", "gpt_key_aspects",
}

// WriteResults emits the two classifier outputs: every evaluated paper in
// input order (failures included, evaluation cells left empty plus an
// error reason), and relevant-only sorted by descending relevance score
// then confidence.
func WriteResults(allPath, relevantPath string, results []domain.Result) error {
	extractor := extract.New(nil)

	allHeader := append(extractor.Header(), evaluationColumns...)
	allHeader = append(allHeader, "gpt_error")
	allRows := make([][]string, 0, len(results))
	for _, r := range results {
		allRows = append(allRows, resultRow(extractor, r, true))
	}
	if err := writeCSV(allPath, allHeader, allRows); err != nil {
		return fmt.Errorf("write all-evaluated output: %w", err)
	}

	relevant := make([]domain.Result, 0, len(results))
	for _, r := range results {
		if r.Err == nil && r.Evaluation.Relevant {
			relevant = append(relevant, r)
		}
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		a, b := relevant[i].Evaluation, relevant[j].Evaluation
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		return a.Confidence > b.Confidence
	})

	relevantHeader := append(extractor.Header(), evaluationColumns...)
	relevantRows := make([][]string, 0, len(relevant))
	for _, r := range relevant {
		relevantRows = append(relevantRows, resultRow(extractor, r, false))
	}
	if err := writeCSV(relevantPath, relevantHeader, relevantRows); err != nil {
		return fmt.Errorf("write relevant output: %w", err)
	}
	return nil
}

func resultRow(extractor *extract.Extractor, r domain.Result, withError bool) []string {
	row := extractor.Project(r.Paper)
	row = append(row, r.Paper.Venue, r.Paper.Year)

	if r.Err == nil {
		row = append(row,
			strconv.FormatBool(r.Evaluation.Relevant),
			strconv.FormatFloat(r.Evaluation.Confidence, 'f', -1, 64),
			strconv.Itoa(r.Evaluation.RelevanceScore),
			r.Evaluation.Reasoning,
			strings.Join(r.Evaluation.KeyAspects, extract.ListSeparator),
		)
		if withError {
			row = append(row, "")
		}
		return row
	}

	row = append(row, "", "", "", "", "")
	if withError {
		row = append(row, r.Err.Error())
	}
	return row
}

func writeCSV(path string, header []string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	writeErr := w.Write(header)
	for _, row := range rows {
		if writeErr != nil {
			break
		}
		writeErr = w.Write(row)
	}
	if writeErr == nil {
		w.Flush()
		writeErr = w.Error()
	}
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	return writeErr
}

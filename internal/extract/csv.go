package extract

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Zhang-Henry/paper-collection/internal/domain"
)

// AppendCSV appends projected papers to the aggregated output file,
// writing the header only when the file is new or empty. Successive keys
// of one run accumulate into the same file.
func AppendCSV(path string, extractor *Extractor, papers []domain.Paper) error {
	if len(papers) == 0 {
		return nil
	}
	if extractor == nil {
		extractor = New(nil)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open output %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat output %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(extractor.Header()); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, p := range papers {
		if err := w.Write(extractor.Project(p)); err != nil {
			f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

package cache

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Zhang-Henry/paper-collection/internal/domain"
	"github.com/Zhang-Henry/paper-collection/internal/extract"
	"github.com/Zhang-Henry/paper-collection/internal/ports"
)

// ErrCacheMiss signals that no usable record set exists for the key.
// Corrupt files surface as a miss, never as a user-visible failure.
var ErrCacheMiss = errors.New("cache miss")

const cacheFile = "papers.csv"

// Store keeps one CSV record set per (conference, year) key under a base
// directory, laid out as <dir>/<conference>/<year>/papers.csv.
type Store struct {
	dir       string
	extractor *extract.Extractor
}

var _ ports.PaperCache = (*Store)(nil)

// NewStore roots a cache at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, extractor: extract.New(nil)}
}

// Path returns the cache file location for a key.
func (s *Store) Path(key domain.VenueKey) string {
	return filepath.Join(s.dir, key.Conference, key.Year, cacheFile)
}

// ShouldFetch reports whether a fresh fetch is required: forced runs always
// refetch, otherwise presence of the persisted file means fresh.
func (s *Store) ShouldFetch(key domain.VenueKey, force bool) bool {
	if force {
		return true
	}
	info, err := os.Stat(s.Path(key))
	if err != nil || info.IsDir() {
		return true
	}
	return false
}

// Save atomically replaces the record set for a key. The rows are written
// to a temp file in the target directory and renamed into place, so a
// crash mid-write never leaves a half-written papers.csv behind.
func (s *Store) Save(key domain.VenueKey, papers []domain.Paper) error {
	path := s.Path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, cacheFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write(s.extractor.Header())
	for _, p := range papers {
		if writeErr != nil {
			break
		}
		writeErr = w.Write(s.extractor.Project(p))
	}
	if writeErr == nil {
		w.Flush()
		writeErr = w.Error()
	}
	if writeErr == nil {
		writeErr = tmp.Sync()
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write cache for %s: %w", key, writeErr)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace cache for %s: %w", key, err)
	}
	return nil
}

// Load returns the persisted record set, or ErrCacheMiss when the file is
// absent or not a valid cache file (wrong header, malformed CSV).
func (s *Store) Load(key domain.VenueKey) ([]domain.Paper, error) {
	f, err := os.Open(s.Path(key))
	if err != nil {
		return nil, ErrCacheMiss
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil || len(rows) == 0 {
		return nil, ErrCacheMiss
	}

	header := rows[0]
	if !sameHeader(header, s.extractor.Header()) {
		return nil, ErrCacheMiss
	}

	papers := make([]domain.Paper, 0, len(rows)-1)
	for _, row := range rows[1:] {
		papers = append(papers, paperFromRow(header, row))
	}
	return papers, nil
}

// Keys walks the cache directory and returns every (conference, year) key
// that has a persisted record set, in lexical order.
func (s *Store) Keys() ([]domain.VenueKey, error) {
	var keys []domain.VenueKey
	conferences, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache dir: %w", err)
	}
	for _, conf := range conferences {
		if !conf.IsDir() {
			continue
		}
		years, err := os.ReadDir(filepath.Join(s.dir, conf.Name()))
		if err != nil {
			continue
		}
		for _, year := range years {
			if !year.IsDir() {
				continue
			}
			key := domain.VenueKey{Conference: conf.Name(), Year: year.Name()}
			if _, err := os.Stat(s.Path(key)); err == nil {
				keys = append(keys, key)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Conference != keys[j].Conference {
			return keys[i].Conference < keys[j].Conference
		}
		return keys[i].Year < keys[j].Year
	})
	return keys, nil
}

func sameHeader(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func paperFromRow(header, row []string) domain.Paper {
	cell := func(name string) string {
		for i, h := range header {
			if h == name && i < len(row) {
				return row[i]
			}
		}
		return ""
	}

	return domain.Paper{
		Title:     cell("title"),
		Authors:   extract.SplitList(cell("authors")),
		AuthorIDs: extract.SplitList(cell("authorids")),
		Abstract:  cell("abstract"),
		Keywords:  extract.SplitList(cell("keywords")),
		Forum:     cell("forum"),
		PDF:       cell("pdf"),
		Venue:     cell("venue"),
		Year:      cell("year"),
		Match:     extract.SplitList(cell("match")),
	}
}

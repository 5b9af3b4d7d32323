package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/Zhang-Henry/paper-collection/internal/domain"
	"github.com/Zhang-Henry/paper-collection/internal/ports"
)

// Catalog persists collected papers into Postgres for cross-run dedup and
// audit. All methods tolerate a nil db (catalog disabled).
type Catalog struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

var _ ports.PaperCatalog = (*Catalog)(nil)

// NewCatalog wires a sql.DB implementation.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Known returns a map with the forums that already exist in the catalog.
func (c *Catalog) Known(ctx context.Context, forums []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if c.db == nil || len(forums) == 0 {
		return result, nil
	}

	query, args, err := c.qb.
		Select("forum").
		From("collected_papers").
		Where(sq.Eq{"forum": forums}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build known query: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query known forums: %w", err)
	}

	for rows.Next() {
		var forum string
		if err := rows.Scan(&forum); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan forum: %w", err)
		}
		result[forum] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// Record upserts each paper's snapshot under its (conference, year) key.
func (c *Catalog) Record(ctx context.Context, key domain.VenueKey, papers []domain.Paper) error {
	if c.db == nil || len(papers) == 0 {
		return nil
	}

	for _, paper := range papers {
		query, args, err := c.qb.
			Insert("collected_papers").
			Columns("forum", "title", "abstract", "authors", "keywords", "pdf",
				"conference", "year", "match_filters").
			Values(paper.Forum, paper.Title, paper.Abstract,
				pq.Array(paper.Authors), pq.Array(paper.Keywords), paper.PDF,
				key.Conference, key.Year, pq.Array(paper.Match)).
			Suffix(`ON CONFLICT (forum) DO UPDATE
                SET title = EXCLUDED.title,
                    abstract = EXCLUDED.abstract,
                    authors = EXCLUDED.authors,
                    keywords = EXCLUDED.keywords,
                    match_filters = EXCLUDED.match_filters,
                    updated_at = NOW()`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert for %s: %w", paper.Forum, err)
		}

		if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert paper %s: %w", paper.Forum, err)
		}
	}

	return nil
}

package load

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/wiki-etl/pkg/config"
	"github.com/Sriram-PR/wiki-etl/pkg/metrics"
	"github.com/Sriram-PR/wiki-etl/pkg/models"
	"github.com/Sriram-PR/wiki-etl/pkg/utils"
)

type beginCloser interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresLoader writes the staging tables and production views in one transaction
type PostgresLoader struct {
	pool             beginCloser
	minContentLength int
	metrics          *metrics.Metrics
	log              *logrus.Entry
}

// NewPostgresLoader connects a pool for cfg.DSN
func NewPostgresLoader(ctx context.Context, cfg config.DatabaseConfig, m *metrics.Metrics, log *logrus.Entry) (*PostgresLoader, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: database.dsn is required", utils.ErrConfigValidation)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres dsn: %w", utils.ErrDatabase, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %w", utils.ErrDatabase, err)
	}
	return NewPostgresLoaderWithPool(pool, cfg.MinContentLength, m, log)
}

// NewPostgresLoaderWithPool constructs a loader from an existing pool (primarily for testing).
func NewPostgresLoaderWithPool(pool beginCloser, minContentLength int, m *metrics.Metrics, log *logrus.Entry) (*PostgresLoader, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if minContentLength < 0 {
		return nil, fmt.Errorf("%w: min_content_length cannot be negative", utils.ErrConfigValidation)
	}
	return &PostgresLoader{
		pool:             pool,
		minContentLength: minContentLength,
		metrics:          m,
		log:              log,
	}, nil
}

// Close closes the underlying pool
func (l *PostgresLoader) Close() {
	l.pool.Close()
}

// Load replaces the staging tables with pages and links and rebuilds the
// production views. Nothing is visible to readers until the commit.
func (l *PostgresLoader) Load(ctx context.Context, pages []models.PageRecord, links []models.LinkRecord) (stats LoadStats, err error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("%w: begin: %w", utils.ErrDatabase, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			l.log.Warnf("Rollback failed: %v", rbErr)
		}
		stats = LoadStats{}
	}()

	if err = execAll(ctx, tx, setupStatements); err != nil {
		return stats, err
	}

	stats.PagesLoaded, err = copyChunked(ctx, tx, pagesTable, pageColumns, pageRows(pages))
	if err != nil {
		return stats, err
	}
	stats.LinksLoaded, err = copyChunked(ctx, tx, pageLinksTable, linkColumns, linkRows(links))
	if err != nil {
		return stats, err
	}

	if err = execAll(ctx, tx, indexStatements); err != nil {
		return stats, err
	}
	if err = execAll(ctx, tx, viewStatements(l.minContentLength)); err != nil {
		return stats, err
	}

	if err = tx.Commit(ctx); err != nil {
		return stats, fmt.Errorf("%w: commit: %w", utils.ErrDatabase, err)
	}
	committed = true

	l.metrics.AddLoadedRows(pagesTable, stats.PagesLoaded)
	l.metrics.AddLoadedRows(pageLinksTable, stats.LinksLoaded)
	l.log.WithFields(logrus.Fields{
		"pages": stats.PagesLoaded,
		"links": stats.LinksLoaded,
	}).Info("Load committed")
	return stats, nil
}

func execAll(ctx context.Context, tx pgx.Tx, statements []string) error {
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: exec %q: %w", utils.ErrDatabase, firstLine(stmt), err)
		}
	}
	return nil
}

// copyChunked streams rows into staging.<table> in batches of copyChunkSize
func copyChunked(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) (int64, error) {
	var total int64
	for start := 0; start < len(rows); start += copyChunkSize {
		end := min(start+copyChunkSize, len(rows))
		n, err := tx.CopyFrom(ctx, pgx.Identifier{stagingSchema, table}, columns, pgx.CopyFromRows(rows[start:end]))
		if err != nil {
			return total, fmt.Errorf("%w: copy into %s.%s: %w", utils.ErrDatabase, stagingSchema, table, err)
		}
		total += n
	}
	return total, nil
}

func pageRows(pages []models.PageRecord) [][]any {
	rows := make([][]any, 0, len(pages))
	for _, p := range pages {
		var parent any
		if p.ParentURL != "" {
			parent = p.ParentURL
		}
		rows = append(rows, []any{
			p.URL, p.Title, p.Summary, p.Content, p.WordCount,
			p.Depth, parent, p.LastModified, p.CrawledAt,
		})
	}
	return rows
}

func linkRows(links []models.LinkRecord) [][]any {
	rows := make([][]any, 0, len(links))
	for _, l := range links {
		rows = append(rows, []any{l.SourceURL, l.TargetURL, l.AnchorText})
	}
	return rows
}

func firstLine(stmt string) string {
	for i, r := range stmt {
		if r == '\n' {
			return stmt[:i]
		}
	}
	return stmt
}

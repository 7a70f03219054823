package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/advisor/pkg/logger"
	"github.com/selivandex/advisor/pkg/metrics"
)

// Writer implements metrics.Writer on top of ClickHouse
type Writer struct {
	db *sqlx.DB
}

// NewWriter creates new ClickHouse metrics writer
func NewWriter(db *sqlx.DB) *Writer {
	return &Writer{db: db}
}

// Write inserts a batch of metrics into the named table
func (w *Writer) Write(ctx context.Context, tableName string, batch []metrics.Metric) error {
	if len(batch) == 0 {
		return nil
	}

	columnCount := len(batch[0].Values())
	if columnCount == 0 {
		return fmt.Errorf("metric %s has no columns", tableName)
	}

	placeholders := make([]string, len(batch))
	args := make([]interface{}, 0, len(batch)*columnCount)

	rowPlaceholders := make([]string, columnCount)
	for j := range rowPlaceholders {
		rowPlaceholders[j] = "?"
	}
	row := "(" + strings.Join(rowPlaceholders, ", ") + ")"

	for i, m := range batch {
		values := m.Values()
		if len(values) != columnCount {
			return fmt.Errorf("row %d has wrong column count: expected %d, got %d", i, columnCount, len(values))
		}
		placeholders[i] = row
		args = append(args, values...)
	}

	query := fmt.Sprintf("INSERT INTO %s VALUES %s", tableName, strings.Join(placeholders, ", "))

	if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clickhouse insert failed: %w", err)
	}

	logger.Debug("metrics written to clickhouse",
		zap.String("table", tableName),
		zap.Int("count", len(batch)),
	)

	return nil
}

// Close closes the underlying connection
func (w *Writer) Close() error {
	return w.db.Close()
}

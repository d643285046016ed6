package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dbvigil/dbvigil/logger"
)

type traceKey struct{}

type traceData struct {
	sql   string
	start time.Time
}

// queryTracer logs every statement with its duration when query logging
// is enabled in the configuration.
type queryTracer struct{}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceData{sql: data.SQL, start: time.Now()})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	td, ok := ctx.Value(traceKey{}).(traceData)
	if !ok {
		return
	}
	if data.Err != nil {
		logger.Debug("Query failed", "sql", td.sql, "duration", time.Since(td.start), "error", data.Err)
		return
	}
	logger.Debug("Query completed", "sql", td.sql, "duration", time.Since(td.start), "rows", data.CommandTag.RowsAffected())
}

// Package sqlanalyze captures slow queries, grades their severity, and
// derives optimization suggestions from the query shape.
package sqlanalyze

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dbvigil/dbvigil/helpers"
	"github.com/dbvigil/dbvigil/pkg/metrics"
)

// Severity grades how damaging a slow query is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SlowQuery is one captured slow query occurrence, with the accumulated
// frequency of its pattern.
type SlowQuery struct {
	ID            string        `json:"id"`
	Database      string        `json:"database"`
	QueryText     string        `json:"query_text"`
	QueryHash     string        `json:"query_hash"`
	ExecutionTime time.Duration `json:"execution_time"`
	RowsExamined  int64         `json:"rows_examined"`
	RowsSent      int64         `json:"rows_sent"`
	Timestamp     time.Time     `json:"timestamp"`
	Severity      Severity      `json:"severity"`
	Suggestions   []string      `json:"suggestions"`
	Frequency     int           `json:"frequency"`
}

// Analyzer keeps a bounded set of slow query patterns keyed by hash.
// Repeat occurrences of a pattern bump its frequency and keep the worst
// observed execution.
type Analyzer struct {
	mu         sync.Mutex
	maxEntries int
	byHash     map[string]*SlowQuery
}

func NewAnalyzer(maxEntries int) *Analyzer {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &Analyzer{
		maxEntries: maxEntries,
		byHash:     make(map[string]*SlowQuery),
	}
}

// Analyze grades a slow query and records it. The returned SlowQuery is a
// copy reflecting the pattern's accumulated frequency.
func (a *Analyzer) Analyze(database, queryText string, execTime time.Duration, rowsExamined, rowsSent int64) SlowQuery {
	queryText = helpers.SanitizeUTF8(queryText)
	severity := gradeSeverity(execTime, rowsExamined)
	hash := PatternHash(queryText)
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.byHash[hash]
	if ok {
		entry.Frequency++
		entry.Timestamp = now
		if execTime > entry.ExecutionTime {
			entry.ExecutionTime = execTime
			entry.RowsExamined = rowsExamined
			entry.RowsSent = rowsSent
			entry.Severity = severity
			entry.Suggestions = suggest(queryText, rowsExamined)
		}
	} else {
		if len(a.byHash) >= a.maxEntries {
			a.evictOldest()
		}
		entry = &SlowQuery{
			ID:            uuid.NewString(),
			Database:      database,
			QueryText:     helpers.TruncateString(queryText, 2000),
			QueryHash:     hash,
			ExecutionTime: execTime,
			RowsExamined:  rowsExamined,
			RowsSent:      rowsSent,
			Timestamp:     now,
			Severity:      severity,
			Suggestions:   suggest(queryText, rowsExamined),
			Frequency:     1,
		}
		a.byHash[hash] = entry
	}

	metrics.SlowQueriesTotal.WithLabelValues(database, string(severity)).Inc()
	return *entry
}

// Queries returns captured queries sorted by execution time, worst first.
func (a *Analyzer) Queries() []SlowQuery {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]SlowQuery, 0, len(a.byHash))
	for _, q := range a.byHash {
		out = append(out, *q)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExecutionTime > out[j].ExecutionTime
	})
	return out
}

// QueriesSince returns captured queries last seen after cutoff.
func (a *Analyzer) QueriesSince(cutoff time.Time) []SlowQuery {
	all := a.Queries()
	out := all[:0]
	for _, q := range all {
		if q.Timestamp.After(cutoff) {
			out = append(out, q)
		}
	}
	return out
}

// evictOldest drops the least recently seen pattern. Caller holds the lock.
func (a *Analyzer) evictOldest() {
	var oldestHash string
	var oldest time.Time
	for hash, q := range a.byHash {
		if oldestHash == "" || q.Timestamp.Before(oldest) {
			oldestHash = hash
			oldest = q.Timestamp
		}
	}
	if oldestHash != "" {
		delete(a.byHash, oldestHash)
	}
}

// gradeSeverity bands a query by execution time and rows examined:
// critical above 10s or 100k rows, high above 5s or 50k, medium above
// 2s or 10k, otherwise low. The worse of the two dimensions wins.
func gradeSeverity(execTime time.Duration, rowsExamined int64) Severity {
	switch {
	case execTime > 10*time.Second || rowsExamined > 100_000:
		return SeverityCritical
	case execTime > 5*time.Second || rowsExamined > 50_000:
		return SeverityHigh
	case execTime > 2*time.Second || rowsExamined > 10_000:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

var sargBreakers = []string{"UPPER(", "LOWER(", "DATE(", "SUBSTR(", "SUBSTRING(", "CAST(", "COALESCE("}

// suggest derives independent optimization suggestions from the query
// shape. Rules are heuristic; each fires at most once.
func suggest(queryText string, rowsExamined int64) []string {
	upper := strings.ToUpper(queryText)
	var out []string

	whereIdx := strings.Index(upper, " WHERE ")
	if whereIdx >= 0 {
		clause := upper[whereIdx:]
		if strings.ContainsAny(clause, "<>=") || strings.Contains(clause, " LIKE ") {
			out = append(out, "Check for a missing index on the columns filtered in WHERE")
		}
		for _, fn := range sargBreakers {
			if strings.Contains(clause, fn) {
				out = append(out, "Avoid wrapping indexed columns in functions; the predicate cannot use an index")
				break
			}
		}
	}

	if strings.Contains(upper, " JOIN ") && !strings.Contains(upper, " ON ") && whereIdx < 0 {
		out = append(out, "JOIN without ON or WHERE produces a cartesian product; add a join condition")
	}

	if rowsExamined > 10_000 {
		out = append(out, "Query examines a large row set; consider LIMIT, pagination, or a more selective filter")
	}

	if strings.Contains(upper, "IN (SELECT") {
		out = append(out, "Rewrite IN (SELECT ...) as a JOIN or EXISTS; correlated subqueries scale poorly")
	}

	return out
}

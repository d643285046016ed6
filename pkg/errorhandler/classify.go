package errorhandler

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Category is the failure taxonomy used to pick a recovery action.
type Category string

const (
	CategoryConnection   Category = "connection"
	CategoryDeadlock     Category = "deadlock"
	CategoryTimeout      Category = "timeout"
	CategoryIntegrity    Category = "integrity"
	CategoryInternal     Category = "internal"
	CategoryUnclassified Category = "unclassified"
)

// Severity orders failures for logging and notification.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Classification is the outcome of classifying one error.
type Classification struct {
	Category Category
	Severity Severity
}

// Classifier turns a raw driver error into a Classification. Implementations
// return false when they cannot decide, letting the next classifier in the
// chain try.
type Classifier interface {
	Classify(err error) (Classification, bool)
}

// PgxClassifier classifies by PostgreSQL SQLSTATE codes. It runs before the
// phrase table so structured codes win over message heuristics.
type PgxClassifier struct{}

func (PgxClassifier) Classify(err error) (Classification, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return Classification{}, false
	}

	code := pgErr.Code
	switch {
	case code == "40P01": // deadlock_detected
		return Classification{CategoryDeadlock, SeverityHigh}, true
	case code == "40001": // serialization_failure, retried like a deadlock
		return Classification{CategoryDeadlock, SeverityHigh}, true
	case strings.HasPrefix(code, "08"): // connection exception class
		return Classification{CategoryConnection, SeverityCritical}, true
	case strings.HasPrefix(code, "28"): // invalid authorization
		return Classification{CategoryConnection, SeverityCritical}, true
	case strings.HasPrefix(code, "23"): // integrity constraint violation
		return Classification{CategoryIntegrity, SeverityMedium}, true
	case code == "57014": // query_canceled
		return Classification{CategoryTimeout, SeverityHigh}, true
	case strings.HasPrefix(code, "53"): // insufficient resources
		return Classification{CategoryInternal, SeverityHigh}, true
	case strings.HasPrefix(code, "XX"): // internal error
		return Classification{CategoryInternal, SeverityHigh}, true
	case strings.HasPrefix(code, "22"): // data exception
		return Classification{CategoryIntegrity, SeverityMedium}, true
	}

	return Classification{}, false
}

// phraseRule maps message substrings to a classification. First match wins;
// the table is ordered most-severe first.
type phraseRule struct {
	phrases        []string
	classification Classification
}

var phraseRules = []phraseRule{
	{
		phrases:        []string{"connection refused", "could not connect", "connection reset", "server closed the connection", "broken pipe", "no such host"},
		classification: Classification{CategoryConnection, SeverityCritical},
	},
	{
		phrases:        []string{"authentication failed", "password authentication", "permission denied", "access denied"},
		classification: Classification{CategoryConnection, SeverityCritical},
	},
	{
		phrases:        []string{"deadlock found", "deadlock detected", "lock wait timeout", "could not obtain lock"},
		classification: Classification{CategoryDeadlock, SeverityHigh},
	},
	{
		phrases:        []string{"timeout", "timed out", "canceling statement due to statement timeout"},
		classification: Classification{CategoryTimeout, SeverityHigh},
	},
	{
		phrases:        []string{"too many connections", "out of memory", "out of shared memory", "disk full", "no space left"},
		classification: Classification{CategoryInternal, SeverityHigh},
	},
	{
		phrases:        []string{"duplicate key", "unique constraint", "foreign key constraint", "violates check constraint", "not-null constraint", "invalid input syntax"},
		classification: Classification{CategoryIntegrity, SeverityMedium},
	},
}

// PhraseClassifier classifies by vendor-agnostic message substrings.
type PhraseClassifier struct{}

func (PhraseClassifier) Classify(err error) (Classification, bool) {
	message := strings.ToLower(err.Error())
	for _, rule := range phraseRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(message, phrase) {
				return rule.classification, true
			}
		}
	}
	return Classification{}, false
}

// ChainClassifier tries each classifier in order. Unclassified errors come
// out as low severity.
type ChainClassifier struct {
	classifiers []Classifier
}

func NewChainClassifier(classifiers ...Classifier) *ChainClassifier {
	return &ChainClassifier{classifiers: classifiers}
}

// DefaultClassifier layers the SQLSTATE classifier before the phrase table
// and a network-error fallback behind both.
func DefaultClassifier() *ChainClassifier {
	return NewChainClassifier(PgxClassifier{}, PhraseClassifier{}, netClassifier{})
}

func (c *ChainClassifier) Classify(err error) (Classification, bool) {
	for _, classifier := range c.classifiers {
		if classification, ok := classifier.Classify(err); ok {
			return classification, true
		}
	}
	return Classification{CategoryUnclassified, SeverityLow}, true
}

// netClassifier picks up generic network failures the phrase table misses.
type netClassifier struct{}

func (netClassifier) Classify(err error) (Classification, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{CategoryTimeout, SeverityHigh}, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Classification{CategoryTimeout, SeverityHigh}, true
		}
		return Classification{CategoryConnection, SeverityCritical}, true
	}
	return Classification{}, false
}

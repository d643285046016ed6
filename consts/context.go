package consts

// ContextKey is a custom type for context keys to avoid collisions between packages.
type ContextKey string

const (
	// UsePrimaryDBKey is the context key for the "use_primary" boolean value.
	// It signals to the database layer that a query must be executed on the
	// primary (write) connection pool, bypassing any read replica pool. This
	// matters for recovery statements and read-your-writes consistency.
	UsePrimaryDBKey = ContextKey("use_primary")
)

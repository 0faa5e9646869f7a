package constants

import "time"

// Redis keys and TTLs used by TableBook
// Pattern: tablebook:{module}:{operation}:{identifier}

// ================== CACHE TTL DURATIONS ==================

const (
	TTL_TABLE_LOOKUP  = 5 * time.Minute  // table details by id
	TTL_TABLE_LIST    = 2 * time.Minute  // table list per business
	TTL_IDEMPOTENCY   = 24 * time.Hour   // completed command results
	TTL_PENDING_CLAIM = 30 * time.Second // a claim whose owner died frees up after this
)

// ================== REDIS KEY PREFIXES ==================

const (
	CACHE_PREFIX = "tablebook"
)

// ================== TABLES MODULE ==================

const (
	CACHE_KEY_TABLE_BY_ID = CACHE_PREFIX + ":tables:detail:" // + business-id:table-id
	CACHE_KEY_TABLES_LIST = CACHE_PREFIX + ":tables:list:"   // + business-id

	CACHE_PATTERN_TABLES_ALL = CACHE_PREFIX + ":tables:*"
)

// ================== RESERVATIONS MODULE ==================

const (
	CACHE_KEY_IDEMPOTENCY = CACHE_PREFIX + ":reservations:idempotency:" // + business-id:key
)

// ================== KEY BUILDERS ==================

func BuildTableByIDKey(businessID, tableID string) string {
	return CACHE_KEY_TABLE_BY_ID + businessID + ":" + tableID
}

func BuildTablesListKey(businessID string) string {
	return CACHE_KEY_TABLES_LIST + businessID
}

// BuildTablePatternForBusiness matches every cached table detail of one business
func BuildTablePatternForBusiness(businessID string) string {
	return CACHE_KEY_TABLE_BY_ID + businessID + ":*"
}

// BuildIdempotencyKey scopes a client key to its business
func BuildIdempotencyKey(businessID, key string) string {
	return CACHE_KEY_IDEMPOTENCY + businessID + ":" + key
}

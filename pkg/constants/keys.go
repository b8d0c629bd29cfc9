package constants

import "github.com/google/uuid"

type ContextKey string

const (
	PoolKey    ContextKey = "pool"
	TxKey      ContextKey = "tx"
	LoggerKey  ContextKey = "logger"
	ParamsKey  ContextKey = "params"
	TenantKey  ContextKey = "tenant"
	LoadersKey ContextKey = "loaders"

	RequestStart ContextKey = "requestStart"
)

// SuperTenantID marks a tenant-agnostic administrative context. Rows owned by
// it are exempt from per-tenant filtering.
var SuperTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

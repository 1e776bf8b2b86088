package database

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
)

// Health is the reachability of the two stores sign-in depends on: MariaDB
// for accounts and Redis for sessions.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// OK reports whether both stores answered.
func (h Health) OK() bool {
	return h.Status == "ok"
}

// CheckHealth pings MariaDB and Redis within ctx's deadline.
func CheckHealth(ctx context.Context, db *sql.DB, rdb *redis.Client) Health {
	h := Health{Status: "ok", Database: "ok", Redis: "ok"}
	if err := db.PingContext(ctx); err != nil {
		h.Database = "unreachable"
		h.Status = "degraded"
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		h.Redis = "unreachable"
		h.Status = "degraded"
	}
	return h
}

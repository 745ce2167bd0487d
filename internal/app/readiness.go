package app

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/usecase"
)

// Pinger is anything that can report liveness.
type Pinger interface{ Ping(ctx context.Context) error }

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// SQLPinger adapts *sql.DB.
func SQLPinger(db *sql.DB) Pinger { return PingFunc(db.PingContext) }

// RedisPinger adapts a go-redis client.
func RedisPinger(rdb redis.UniversalClient) Pinger {
	return PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
}

// Dependencies lists what readiness probes. Nil entries are not configured
// for this deployment and are left out.
type Dependencies struct {
	DB     Pinger
	Redis  Pinger
	Qdrant Pinger
	Tika   Pinger
}

// BuildProbes returns one probe per configured dependency.
func BuildProbes(d Dependencies) []usecase.Probe {
	var out []usecase.Probe
	add := func(name string, p Pinger) {
		if p != nil {
			out = append(out, usecase.Probe{Name: name, Check: p.Ping})
		}
	}
	add("db", d.DB)
	add("redis", d.Redis)
	add("qdrant", d.Qdrant)
	add("tika", d.Tika)
	return out
}

package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// PostgresConfig is the persistence configuration surface needed to open
// a Postgres-backed client.
type PostgresConfig interface {
	GetDebug() bool
	GetDriver() string
	GetServer() string
	GetPingTimeout() time.Duration
	GetOtelIdentifier() string
}

// NewPostgresClient opens a lib/pq connection from cfg.GetServer() and
// wraps it in a persistence client speaking the Postgres dialect. The
// caller owns the returned client and must Close it.
func NewPostgresClient(cfg PostgresConfig) (*persistence.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sqlstore: postgres config is required")
	}
	sqlDB, err := sql.Open("postgres", cfg.GetServer())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres connection: %w", err)
	}
	client, err := persistence.New(cfg, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	return client, nil
}

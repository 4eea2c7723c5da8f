package corpus

import (
	"context"
	"fmt"
	"os"

	"levi/internal/config"
)

// Open returns the source selected by cfg and a function releasing it.
func Open(ctx context.Context, cfg config.CorpusConfig) (Source, func(), error) {
	switch cfg.Source {
	case "jsonl", "":
		return JSONLSource{Path: cfg.EmbeddingsPath}, func() {}, nil
	case "sqlite":
		src, err := OpenSQLite(cfg.SQLitePath, cfg.SQLiteTable)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	case "postgres":
		dsn := os.Getenv(cfg.PostgresDSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("corpus: %s is not set", cfg.PostgresDSNEnv)
		}
		src, err := OpenPostgres(ctx, dsn, cfg.PostgresQuery)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		return nil, nil, fmt.Errorf("corpus: unknown source %q", cfg.Source)
	}
}

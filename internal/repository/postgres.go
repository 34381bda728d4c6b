package repository

import (
	"cmp"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// postgresDSN builds a key/value connection string, filling in local defaults.
func postgresDSN(cfg domain.RepositoryConfig) string {
	host := cmp.Or(cfg.PostgresHost, "localhost")
	port := cmp.Or(cfg.PostgresPort, 5432)
	dbname := cmp.Or(cfg.PostgresDB, "kestrel")
	sslmode := cmp.Or(cfg.PostgresSSLMode, "disable")

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port,
		quoteValue(cfg.PostgresUser),
		quoteValue(cfg.PostgresPassword),
		dbname, sslmode,
	)
}

// quoteValue quotes a connection-string value when it is empty or contains spaces or quotes.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

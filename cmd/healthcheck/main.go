// Command healthcheck verifies the relational and vector stores are up
// and ready for writes. The scheduler treats a non-zero exit as a
// failed check.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aluiziolira/go-catalog-ingest/config"
	"github.com/aluiziolira/go-catalog-ingest/health"
)

func main() {
	dsnDefault, _ := config.EnvString("POSTGRES_DSN")
	vectorDefault := "http://localhost:6333"
	if value, ok := config.EnvString("QDRANT_URL"); ok {
		vectorDefault = value
	}

	postgresDSN := flag.String("pg-dsn", dsnDefault, "Postgres DSN")
	vectorURL := flag.String("vector-url", vectorDefault, "Vector store base URL")
	timeoutSec := flag.Int("timeout", 30, "Overall check timeout (seconds)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *postgresDSN == "" {
		slog.Error("postgres DSN is required (flag -pg-dsn or POSTGRES_DSN)")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeoutSec)*time.Second)
	defer cancel()

	failed := false

	pgStatus, err := health.CheckPostgres(ctx, *postgresDSN)
	if err != nil {
		slog.Error("postgres check failed", slog.Any("error", err))
		failed = true
	} else {
		slog.Info("postgres healthy",
			slog.String("version", pgStatus.Version),
			slog.Any("tables", pgStatus.Tables),
			slog.Int("product_count", pgStatus.ProductCount),
		)
	}

	vectorStatus, err := health.CheckVectorStore(ctx, *vectorURL, nil)
	if err != nil {
		slog.Error("vector store check failed", slog.Any("error", err))
		failed = true
	} else {
		slog.Info("vector store healthy",
			slog.String("version", vectorStatus.Version),
			slog.Any("collections", vectorStatus.Collections),
			slog.Any("created", vectorStatus.Created),
		)
	}

	if failed {
		os.Exit(1)
	}
	fmt.Println("all health checks passed")
}

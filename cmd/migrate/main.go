package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var (
		direction string
		dbURL     string
		path      string
	)

	flag.StringVar(&direction, "direction", "up", "Migration direction: up, down or version")
	flag.StringVar(&dbURL, "db", "", "Database URL (defaults to DATABASE_URL, then the database.* config)")
	flag.StringVar(&path, "path", "internal/infrastructure/postgres/migrations", "Path to migration files")
	flag.Parse()

	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "No -db given and config failed to load: %v\n", err)
			os.Exit(1)
		}
		dbURL = cfg.Database.MigrationURL()
	}

	m, err := migrate.New("file://"+path, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrate instance: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	switch direction {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fmt.Fprintf(os.Stderr, "Migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied successfully")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fmt.Fprintf(os.Stderr, "Migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations rolled back successfully")
	case "version":
		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			fmt.Fprintf(os.Stderr, "Reading version failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
	default:
		fmt.Fprintf(os.Stderr, "Unknown direction: %s (use 'up', 'down' or 'version')\n", direction)
		os.Exit(1)
	}
}

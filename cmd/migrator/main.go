package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/technosupport/ts-licensing/internal/config"
)

func main() {
	up := flag.Bool("up", false, "Apply all pending migrations")
	down := flag.Bool("down", false, "Roll back all migrations")
	steps := flag.Int("steps", 0, "Apply (+n) or roll back (-n) n migrations")
	force := flag.Int("force", -1, "Mark the schema as clean at this version after a failed migration")
	configPath := flag.String("config", "config/default.yaml", "Path to config file")
	sourceURL := flag.String("source", "file://db/migrations", "Migration source URL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		log.Fatalf("Migrate driver error: %v", err)
	}
	m, err := migrate.NewWithDatabaseInstance(*sourceURL, "postgres", driver)
	if err != nil {
		log.Fatalf("Migrate init error: %v", err)
	}

	start := time.Now()
	switch {
	case *force >= 0:
		err = run("FORCE", func() error { return m.Force(*force) })
	case *up:
		err = run("UP", m.Up)
	case *down:
		err = run("DOWN", m.Down)
	case *steps != 0:
		err = run(fmt.Sprintf("STEPS %+d", *steps), func() error { return m.Steps(*steps) })
	default:
		log.Println("No command given (-up, -down, -steps, -force); reporting version only")
	}
	if err != nil {
		log.Fatalf("%v", err)
	}

	version, dirty, verr := m.Version()
	switch {
	case errors.Is(verr, migrate.ErrNilVersion):
		log.Println("Schema has no migrations applied")
	case verr != nil:
		log.Printf("Could not read schema version: %v", verr)
	default:
		log.Printf("Schema version %d (dirty=%v), took %v", version, dirty, time.Since(start))
	}
}

// run executes one migrate operation. ErrNoChange is reported as success.
func run(name string, op func() error) error {
	log.Printf("Running %s...", name)
	if err := op(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration %s failed: %w", name, err)
	}
	log.Printf("Migration %s completed", name)
	return nil
}

package main

import (
	"database/sql"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-tickets/internal/database/migrations"
)

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", "./migrations", "directory containing migration files")
	down := flag.Bool("down", false, "roll back all migrations instead of applying them")
	flag.Parse()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN not set")
	}

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open PostgreSQL: %v", err)
	}
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	runner := migrations.NewRunner(bunDB, *dir)
	defer runner.Close()

	if *down {
		if err := runner.Down(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("✅ Migrations rolled back")
		return
	}

	if err := runner.Up(); err != nil {
		log.Fatalf("Migration up failed: %v", err)
	}
	log.Println("✅ Migrations applied")
}

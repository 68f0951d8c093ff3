package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/moonmind/moonmind/migrations"
)

var (
	databaseURL = flag.String("database-url", "", "PostgreSQL connection URL (default: MOONMIND_DATABASE_URL)")
	command     = flag.String("command", "up", "Migration command: up, down, status, or version")
	timeout     = flag.Duration("timeout", 5*time.Minute, "Overall timeout for the migration run")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("MoonMind Database Migration Tool")
	log.Println("================================")

	url := *databaseURL
	if url == "" {
		url = os.Getenv("MOONMIND_DATABASE_URL")
	}
	if url == "" {
		log.Fatalf("No database URL given. Set --database-url or MOONMIND_DATABASE_URL.")
	}

	log.Printf("Command: %s", *command)

	db, err := sql.Open("postgres", url)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("✓ Database connection established")

	if err := migrations.Run(ctx, db, *command); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Printf("✓ Migration command %q completed successfully", *command)
}

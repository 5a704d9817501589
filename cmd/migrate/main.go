package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"pageinbox/internal/migrations"
	"pageinbox/internal/security"
)

func main() {
	dbPath := flag.String("db", "./pageinbox.db", "Path to the database file")
	status := flag.Bool("status", false, "List applied and pending migrations without applying them")
	flag.Parse()

	if err := security.ValidateDatabasePath(*dbPath); err != nil {
		log.Fatalf("Invalid database path: %v", err)
	}
	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		log.Fatalf("Database file not found: %s", *dbPath)
	}

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	if *status {
		printStatus(ctx, db)
		return
	}

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	if len(applied) == 0 {
		fmt.Println("Schema is up to date")
		return
	}
	for _, v := range applied {
		fmt.Printf("Applied migration %d\n", v)
	}
	fmt.Println("Database schema updated. You can now restart PageInbox.")
}

func printStatus(ctx context.Context, db *sql.DB) {
	all, err := migrations.List()
	if err != nil {
		log.Fatalf("Failed to list migrations: %v", err)
	}

	// A fresh database has no schema_migrations table yet.
	applied, err := migrations.Applied(ctx, db)
	if err != nil {
		applied = nil
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range all {
		state := "pending"
		if done[m.Version] {
			state = "applied"
		}
		fmt.Printf("%03d  %-8s %s\n", m.Version, state, m.Name)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"marketplace-chat/config"
	"marketplace-chat/internal/repository"
	"marketplace-chat/pkg/database"

	"gorm.io/gorm"
)

const usage = `
Marketplace Chat - Database CLI Tool

Usage:
  migrate [flags] [command]

Commands:
  up          Create or update all tables
  status      Show database connection status and table sizes
  seed-dev    Seed with development/test data
  reset       Drop all tables, recreate them and seed (DANGEROUS)

Flags:
  -users int      Test users to seed (default 5)
  -products int   Listings per seeded user (default 2)
  -debug          Log every SQL statement

Examples:
  go run ./cmd/migrate up
  go run ./cmd/migrate -users 8 seed-dev
  go run ./cmd/migrate reset
`

func main() {
	users := flag.Int("users", 5, "Test users to seed")
	products := flag.Int("products", 2, "Listings per seeded user")
	debug := flag.Bool("debug", false, "Log every SQL statement")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	db, err := database.Connect(cfg.Database, *debug)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer database.Close(db)

	seedCfg := &database.SeedConfig{TestUserCount: *users, ProductsPerUser: *products}

	switch command {
	case "up":
		runMigrationsUp(db)
	case "status":
		showStatus(db)
	case "seed-dev":
		runSeedDevelopment(db, seedCfg)
	case "reset":
		runReset(db, seedCfg)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(db *gorm.DB) {
	log.Println("🚀 Running migrations...")

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func showStatus(db *gorm.DB) {
	log.Println("🔍 Checking database status...")

	if err := database.HealthCheck(context.Background(), db); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	migrator := db.Migrator()
	for _, model := range repository.Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			log.Printf("⚠️  Error reading model %T: %v", model, err)
			continue
		}
		table := stmt.Schema.Table
		if !migrator.HasTable(model) {
			log.Printf("❌ Table %-20s does not exist", table)
			continue
		}
		var count int64
		db.Model(model).Count(&count)
		log.Printf("✅ Table %-20s exists (%d rows)", table, count)
	}
}

func runSeedDevelopment(db *gorm.DB, cfg *database.SeedConfig) {
	log.Println("🌱 Seeding database (development mode)...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	result, err := database.Seed(ctx, db, cfg)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}
	printSummary(result)
}

func runReset(db *gorm.DB, cfg *database.SeedConfig) {
	log.Println("⚠️  WARNING: This will DROP all tables and reseed!")
	log.Println("⚠️  Press Ctrl+C within 5 seconds to cancel...")
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := database.ClearAndReseed(ctx, db, cfg)
	if err != nil {
		log.Fatalf("❌ Reset failed: %v", err)
	}
	printSummary(result)
	log.Println("✅ Database reset completed!")
}

func printSummary(result *database.SeedResult) {
	log.Println("📊 Seed Summary:")
	log.Printf("   - Users: %d", len(result.Users))
	log.Printf("   - Products: %d", len(result.Products))
	log.Printf("   - Chats: %d", len(result.Chats))
	log.Printf("   - Messages: %d", result.Messages)
	log.Printf("   - Notifications: %d", result.Notifications)
	log.Println("✅ Development seeding completed!")
}

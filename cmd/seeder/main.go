package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return errors.New("command required")
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "seed":
		return seedCommand(args)
	case "bootstrap":
		return bootstrapCommand(args)
	case "nuke":
		return nukeCommand(args)
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func connect(ctx context.Context) (*database.Database, error) {
	cfg := config.Load()
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func seedCommand(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", "", "YAML file to seed from")
	dir := fs.String("dir", "", "Directory of YAML files to seed from")
	dryRun := fs.Bool("dry-run", false, "Validate files without making database changes")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	files, err := resolveFiles(*file, *dir)
	if err != nil {
		return err
	}

	seedData, err := loadSeedData(files)
	if err != nil {
		return fmt.Errorf("failed to load seed data: %w", err)
	}
	if err := validateSeedData(seedData); err != nil {
		return err
	}

	if *dryRun {
		fmt.Printf("dry run: %d user(s) are valid\n", len(seedData.Users))
		return nil
	}

	ctx := context.Background()
	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("seeding database from %d file(s)\n", len(files))
	if err := ensureSuperAdmin(ctx, db.Queries(), os.Stdout); err != nil {
		return err
	}
	return applySeedData(ctx, db.Queries(), seedData, os.Stdout)
}

func bootstrapCommand(args []string) error {
	fs := flag.NewFlagSet("bootstrap", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	ctx := context.Background()
	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	return ensureSuperAdmin(ctx, db.Queries(), os.Stdout)
}

func nukeCommand(args []string) error {
	fs := flag.NewFlagSet("nuke", flag.ExitOnError)
	force := fs.Bool("force", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	if !*force && !confirmNuke() {
		fmt.Println("operation cancelled")
		return nil
	}

	ctx := context.Background()
	cfg := config.Load()
	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	fmt.Println("rolling back and re-applying all migrations...")
	if err := db.Reset(ctx); err != nil {
		return err
	}
	fmt.Println("database reset complete - ready for seeding")
	return nil
}

func confirmNuke() bool {
	fmt.Print("warning: this will delete all data from the database. are you sure? (yes/no): ")

	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}

	return strings.ToLower(strings.TrimSpace(response)) == "yes"
}

func printUsage() {
	fmt.Println("Seeder Tool - Database seeding utility for TailingsIQ")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  seeder <command> [flags]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  seed        Seed users from YAML files")
	fmt.Println("  bootstrap   Create the default super admin if none exists")
	fmt.Println("  nuke        Delete all data from database")
	fmt.Println("  help        Show this help message")
	fmt.Println()
	fmt.Println("SEED FLAGS:")
	fmt.Println("  --file      Path to a single YAML file")
	fmt.Println("  --dir       Path to directory containing YAML files")
	fmt.Println("  --dry-run   Validate files without making database changes")
	fmt.Println()
	fmt.Println("NUKE FLAGS:")
	fmt.Println("  --force     Skip confirmation prompt")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  seeder bootstrap")
	fmt.Println("  seeder seed --file dev-users.yaml")
	fmt.Println("  seeder seed --dir ./seed-data/ --dry-run")
	fmt.Println("  seeder nuke --force")
}

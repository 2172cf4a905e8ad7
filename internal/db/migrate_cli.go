package db

import (
	"fmt"
	"log"
	"strconv"
)

// RunMigrateCommand executes one migration verb against the database at
// dbPath and returns once it completes. It backs the daemon's -migrate
// flag; args is the flag value split into fields, e.g. ["force", "2"].
func RunMigrateCommand(args []string, dbPath, migrationsDir string) error {
	if len(args) == 0 {
		printMigrateUsage()
		return fmt.Errorf("no migration command given")
	}

	db, err := NewDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	switch args[0] {
	case "up":
		if err := db.MigrateUp(migrationsDir); err != nil {
			return err
		}
		version, _, err := db.MigrateVersion(migrationsDir)
		if err != nil {
			return err
		}
		log.Printf("✓ Database migrated to version %d", version)
		return nil

	case "down":
		if err := db.MigrateDown(migrationsDir); err != nil {
			return err
		}
		version, _, err := db.MigrateVersion(migrationsDir)
		if err != nil {
			return err
		}
		log.Printf("✓ Rolled back one migration, now at version %d", version)
		return nil

	case "version", "status":
		version, dirty, err := db.MigrateVersion(migrationsDir)
		if err != nil {
			return err
		}
		latest, err := LatestMigrationVersion(migrationsDir)
		if err != nil {
			return err
		}
		log.Printf("Database version: %d of %d", version, latest)
		if dirty {
			log.Printf("⚠️  Database is in a dirty state; use 'force N' to recover")
		}
		return nil

	case "force":
		if len(args) < 2 {
			printMigrateUsage()
			return fmt.Errorf("force requires a version number")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := db.MigrateForce(migrationsDir, version); err != nil {
			return err
		}
		log.Printf("✓ Migration version forced to %d", version)
		return nil

	case "to":
		if len(args) < 2 {
			printMigrateUsage()
			return fmt.Errorf("to requires a version number")
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := db.MigrateTo(migrationsDir, uint(version)); err != nil {
			return err
		}
		log.Printf("✓ Database migrated to version %d", version)
		return nil

	case "help":
		printMigrateUsage()
		return nil

	default:
		printMigrateUsage()
		return fmt.Errorf("unknown migration command %q", args[0])
	}
}

func printMigrateUsage() {
	log.Printf("Migration commands:")
	log.Printf("  up         apply all pending migrations")
	log.Printf("  down       roll back the most recent migration")
	log.Printf("  version    show current and latest schema versions")
	log.Printf("  force N    overwrite the recorded version (dirty-state recovery)")
	log.Printf("  to N       migrate up or down to version N")
}

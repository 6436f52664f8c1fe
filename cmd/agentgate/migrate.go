package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BaSui01/agentgate/internal/migration"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

func runMigrate(args []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		printMigrateUsage()
		os.Exit(1)
	}
	sub := args[0]
	if sub == "help" {
		printMigrateUsage()
		return
	}

	// 位置参数（如 goto 的版本号）在 flag 之前
	rest := args[1:]
	var positional []string
	for len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		positional = append(positional, rest[0])
		rest = rest[1:]
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ExitOnError)
	migrator, err := createMigrator(fs, rest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	if err := migration.NewCLI(migrator).Run(context.Background(), sub, positional); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", sub, err)
		migrator.Close()
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Println(`Usage: agentgate migrate <subcommand> [args] [options]

Subcommands:
  up, down, reset, status, info, version
  steps <n>, goto <version>, force <version>

Options:
  --config <path>    Path to config file
  --db-type <type>   Database type (mysql, postgres, sqlite)
  --db-url <url>     Database connection URL

Examples:
  agentgate migrate up
  agentgate migrate goto 2 --config config.yaml
  agentgate migrate force 0`)
}

// createMigrator 根据命令行参数或配置文件创建迁移器
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (mysql, postgres, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dbType != "" && *dbURL != "" {
		return migration.NewMigratorFromURL(*dbType, *dbURL)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}

	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

// cmd/main.go - Program entry
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"metadb-builder/internal/analyzer"
	"metadb-builder/internal/config"
	"metadb-builder/internal/database"
	"metadb-builder/internal/reconciler"
	"metadb-builder/internal/repository"
	"metadb-builder/internal/resolver"
	"metadb-builder/internal/scanner"
	"metadb-builder/internal/service"
	"metadb-builder/pkg/logger"
)

var (
	// set by the linker during build
	version string
)

func main() {
	if version != "" {
		fmt.Printf("Version: %s\n", version)
	}

	projectPath := flag.String("project", "", "project root directory to index")
	dataDir := flag.String("data", defaultDataDir(), "data directory for database and logs")
	configPath := flag.String("config", "", "analyzer config file (toml)")
	catalogPath := flag.String("catalog", "", "table catalog file (json)")
	logLevel := flag.String("loglevel", "info", "log level (debug, info, warn, error)")
	listProjects := flag.Bool("list", false, "list indexed projects and exit")
	flag.Parse()

	if *projectPath == "" && !*listProjects {
		fmt.Println("missing required -project flag")
		flag.Usage()
		os.Exit(1)
	}

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		fmt.Printf("failed to create data directory: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(filepath.Join(*dataDir, "logs"), *logLevel)

	analyzerConfig, err := config.LoadAnalyzerConfig(*configPath)
	if err != nil {
		log.Fatal("failed to load analyzer config: %v", err)
	}
	catalog, err := config.LoadTableCatalog(*catalogPath)
	if err != nil {
		log.Fatal("failed to load table catalog: %v", err)
	}
	if catalog.Size() > 0 {
		log.Info("table catalog loaded with %d tables", catalog.Size())
	}

	dbManager := database.NewSQLiteManager(config.DefaultDatabaseConfig(*dataDir), log)
	if err := dbManager.Initialize(); err != nil {
		log.Fatal("failed to initialize database: %v", err)
	}
	defer dbManager.Close()

	projectRepo := repository.NewProjectRepository(dbManager, log)
	if *listProjects {
		projects, err := projectRepo.ListProjects()
		if err != nil {
			log.Fatal("failed to list projects: %v", err)
		}
		for _, p := range projects {
			fmt.Printf("%s\t%d files\t%s\n", p.ProjectPath, p.TotalFiles, p.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return
	}


	fileRepo := repository.NewFileRepository(dbManager, log)
	classRepo := repository.NewClassRepository(dbManager, log)
	componentRepo := repository.NewComponentRepository(dbManager, log)
	tableRepo := repository.NewTableRepository(dbManager, log)
	relRepo := repository.NewRelationshipRepository(dbManager, log)

	indexer := service.NewIndexer(
		analyzerConfig,
		scanner.NewFileScanner(&analyzerConfig.Scan, log),
		analyzer.NewDispatcher(analyzerConfig, log),
		resolver.NewRelationshipResolver(&analyzerConfig.Layer, log),
		reconciler.NewReconciler(dbManager, projectRepo, fileRepo, classRepo, componentRepo, tableRepo, relRepo, catalog, log),
		projectRepo,
		fileRepo,
		componentRepo,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn("received signal %v, canceling", sig)
		cancel()
	}()

	absPath, err := filepath.Abs(*projectPath)
	if err != nil {
		log.Fatal("invalid project path %s: %v", *projectPath, err)
	}

	stats, err := indexer.IndexProject(ctx, absPath)
	if err != nil {
		log.Fatal("index run failed: %v", err)
	}

	fmt.Printf("indexed %s: %d changed, %d unchanged, %d deleted, %d failed files\n",
		absPath, stats.FilesChanged, stats.FilesUnchanged, stats.FilesDeleted, stats.FilesFailed)
	fmt.Printf("graph: %d classes, %d components, %d tables, %d columns, %d relationships\n",
		stats.Classes, stats.Components, stats.Tables, stats.Columns, stats.Relationships)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".metadb-builder"
	}
	return filepath.Join(home, ".metadb-builder")
}

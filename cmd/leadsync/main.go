package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/config"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/logging"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := &app{cfg: cfg, db: db, logger: logger}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "deals:sync":
		app.dealsSync(ctx, cmd, args)
	case "leads:transform":
		app.leadsTransform(ctx, cmd, args)
	case "registry:update":
		app.registryUpdate(ctx, cmd, args)
	case "history:upload":
		app.historyUpload(ctx, cmd, args)
	case "interactions:validate":
		app.interactionsValidate(ctx, cmd, args)
	case "deals:dedupe":
		app.dealsDedupe(ctx, cmd, args)
	case "deals:creator-check":
		app.dealsCreatorCheck(ctx, cmd, args)
	case "runs:list":
		app.runsList(cmd, args)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: leadsync <command>")
	fmt.Println("commands:")
	fmt.Println(`  deals:sync --input=preservar.xlsx --pipeline="BT Blue Pipeline" [--output=relatorio.xlsx] [--dry-run] [--workers=5] [--no-validate]`)
	fmt.Println("  leads:transform --input=entrada.xlsx --mesa=btblue|2bativos|bbmd [--output=saida.xlsx] [--log=erros.txt] [--lookup] [--update-registry]")
	fmt.Println("  registry:update --mesa=btblue|2bativos|bbmd|all")
	fmt.Println(`  history:upload --success=todos.xlsx --errors=erros.xlsx --mesa="Mesa JPA" [--dry-run]`)
	fmt.Println("  interactions:validate --input=erros.xlsx --stage-id=N [--output=relatorio.xlsx] [--created-before=2025-01-31] [--dry-run]")
	fmt.Println("  deals:dedupe --pipeline-id=N [--dry-run]")
	fmt.Println("  deals:creator-check --input=cnjs.xlsx [--output=nao_criados.xlsx]")
	fmt.Println("  runs:list [--limit=20] [--run-id=ID]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

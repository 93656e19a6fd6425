package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/config"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/history"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/parceiros"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/pipeline"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/ploomes"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/reconcile"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/registry"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/storage"
)

type app struct {
	cfg    config.Config
	db     *storage.DB
	logger *slog.Logger
}

func (a *app) dealsSync(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	input := fs.String("input", "", "preserve list xlsx (CNJ, Erro)")
	pipelineName := fs.String("pipeline", "", strings.Join(config.PipelineNames(), "|"))
	output := fs.String("output", "", "report xlsx path")
	dryRun := fs.Bool("dry-run", a.cfg.SyncDryRun, "log mutations instead of applying them")
	workers := fs.Int("workers", a.cfg.SyncMaxWorkers, "parallel case lookups (1-10)")
	noValidate := fs.Bool("no-validate", !a.cfg.SyncValidate, "delete stale deals without checking Parceiros")
	_ = fs.Parse(args)
	if *input == "" || *pipelineName == "" {
		must(fmt.Errorf("--input and --pipeline are required"))
	}
	must(requireFile(*input))

	pipe, err := config.LookupPipeline(*pipelineName)
	must(err)
	batch, err := pipeline.LoadBatch(*input)
	must(err)
	crm, err := ploomes.NewClient(a.cfg, a.logger)
	must(err)

	opts := reconcile.Options{
		Pipeline: pipe,
		Origins:  config.OriginMappings(),
		Workers:  *workers,
		DryRun:   *dryRun,
		Logger:   a.logger,
	}
	if !*noValidate {
		partner, err := parceiros.NewClient(ctx, a.cfg, pipe.Mesa, a.logger)
		must(err)
		must(partner.Authenticate(ctx))
		opts.Validator = partner
	}

	report := reconcile.NewEngine(crm, opts).Run(ctx, batch)

	out := *output
	if out == "" {
		out = a.outputPath("relatorio_sync", ".xlsx")
	}
	must(pipeline.ExportSyncReport(report, out))
	must(a.db.InsertRun(report))

	fmt.Printf("sync done run=%s pipeline=%q moved=%d deleted=%d failed=%d skipped=%d preserved=%d purged=%d origins=%d report=%s\n",
		report.RunID, report.Pipeline, report.Moved, report.Deleted, report.Failed, report.Skipped,
		report.Preserved, report.Purged, report.OriginsMoved, out)
}

func (a *app) leadsTransform(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	input := fs.String("input", "", "input xlsx")
	mesaFlag := fs.String("mesa", "", strings.Join(config.Mesas(), "|"))
	output := fs.String("output", "", "output xlsx path")
	logPath := fs.String("log", "", "error report path")
	lookup := fs.Bool("lookup", false, "fill blank offices from Ploomes")
	updateRegistry := fs.Bool("update-registry", false, "refresh the mesa registries when older than a week")
	_ = fs.Parse(args)
	if *input == "" || *mesaFlag == "" {
		must(fmt.Errorf("--input and --mesa are required"))
	}
	must(requireFile(*input))
	mesa, err := config.NormalizeMesa(*mesaFlag)
	must(err)

	cache := registry.NewCache(a.cfg.RegistryDir, a.logger)
	if *updateRegistry {
		partner, err := parceiros.NewClient(ctx, a.cfg, mesa, a.logger)
		must(err)
		res, err := registry.NewUpdater(cache, a.db, a.logger).UpdateIfStale(ctx, mesa, partner, registry.DefaultMaxAge, false)
		must(err)
		if res != nil {
			fmt.Printf("registry updated mesa=%s offices=%d negotiators=%d\n", mesa, res.Offices, res.Negotiators)
		}
	}

	tr := &pipeline.Transformer{
		Mesa:           mesa,
		DefaultProduct: a.cfg.DefaultProduct,
		Matcher:        registry.NewMatcher(cache, a.cfg.FuzzyThreshold),
		Registry:       cache,
		Logger:         a.logger,
	}
	if *lookup {
		pipe, err := config.PipelineForMesa(mesa)
		must(err)
		crm, err := ploomes.NewClient(a.cfg, a.logger)
		must(err)
		tr.Lookup = pipeline.CRMOfficeLookup{Deals: crm, DeletionStageID: pipe.DeletionStageID}
	}

	table, err := pipeline.ReadTable(*input)
	must(err)
	rows := tr.Transform(ctx, pipeline.LeadRowsFromTable(table))

	out := *output
	if out == "" {
		out = a.outputPath("planilha_"+mesa, ".xlsx")
	}
	must(pipeline.ExportImportRows(rows, out))

	report := tr.ErrorReport()
	if *logPath != "" {
		must(os.MkdirAll(filepath.Dir(*logPath), 0o755))
		must(os.WriteFile(*logPath, []byte(report+"\n"), 0o644))
	} else if len(tr.Errors()) > 0 {
		fmt.Println(report)
	}
	fmt.Printf("transform done mesa=%s rows=%d errors=%d output=%s\n", mesa, len(rows), len(tr.Errors()), out)
}

func (a *app) registryUpdate(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	mesaFlag := fs.String("mesa", "", strings.Join(config.Mesas(), "|")+"|all")
	_ = fs.Parse(args)
	if *mesaFlag == "" {
		must(fmt.Errorf("--mesa is required"))
	}

	var mesas []string
	if strings.EqualFold(strings.TrimSpace(*mesaFlag), "all") {
		mesas = config.Mesas()
	} else {
		mesa, err := config.NormalizeMesa(*mesaFlag)
		must(err)
		mesas = []string{mesa}
	}

	updater := registry.NewUpdater(registry.NewCache(a.cfg.RegistryDir, a.logger), a.db, a.logger)
	failed := 0
	for _, mesa := range mesas {
		partner, err := parceiros.NewClient(ctx, a.cfg, mesa, a.logger)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "mesa %s: %v\n", mesa, err)
			continue
		}
		res, err := updater.Update(ctx, mesa, partner)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "mesa %s: %v\n", mesa, err)
			continue
		}
		fmt.Printf("registry updated mesa=%s leads=%d offices=%d negotiators=%d\n", mesa, res.Leads, res.Offices, res.Negotiators)
	}
	if failed == len(mesas) {
		os.Exit(1)
	}
}

func (a *app) historyUpload(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	successPath := fs.String("success", "", "xlsx with every uploaded lead")
	errorsPath := fs.String("errors", "", "xlsx with the rejected leads")
	mesa := fs.String("mesa", "", `mesa label, e.g. "Mesa JPA"`)
	dryRun := fs.Bool("dry-run", false, "process without writing to the database")
	_ = fs.Parse(args)
	if *successPath == "" || *errorsPath == "" || strings.TrimSpace(*mesa) == "" {
		must(fmt.Errorf("--success, --errors and --mesa are required"))
	}
	must(requireFile(*successPath))
	must(requireFile(*errorsPath))

	success, err := pipeline.ReadTable(*successPath)
	must(err)
	failed, err := pipeline.ReadTable(*errorsPath)
	must(err)
	ok, bad, err := history.SplitRecords(success, failed, strings.TrimSpace(*mesa), a.logger)
	must(err)

	dsn, err := a.cfg.PostgresDSN()
	if err != nil && !*dryRun {
		must(err)
	}
	n, err := history.NewUploader(dsn, a.logger).Upload(ctx, append(ok, bad...), *dryRun)
	must(err)
	fmt.Printf("history upload done success=%d errors=%d written=%d dry_run=%t\n", len(ok), len(bad), n, *dryRun)
}

func (a *app) interactionsValidate(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	input := fs.String("input", "", "xlsx with CNJ and error text")
	stageID := fs.Int64("stage-id", 0, "stage to validate")
	output := fs.String("output", "", "report xlsx path")
	dryRun := fs.Bool("dry-run", false, "log note creation instead of applying it")
	before := fs.String("created-before", "", "only deals created before this date (YYYY-MM-DD)")
	_ = fs.Parse(args)
	if *input == "" || *stageID == 0 {
		must(fmt.Errorf("--input and --stage-id are required"))
	}
	must(requireFile(*input))
	var cutoff time.Time
	if *before != "" {
		var err error
		cutoff, err = time.ParseInLocation("2006-01-02", *before, time.Local)
		must(err)
	}

	batch, err := pipeline.LoadBatch(*input, pipeline.InteractionErrorColumns...)
	must(err)
	crm, err := ploomes.NewClient(a.cfg, a.logger)
	must(err)

	validator := reconcile.NewInteractionValidator(crm, batch, *dryRun, a.logger)
	validator.CreatedBefore = cutoff
	report, err := validator.ValidateStage(ctx, *stageID)
	must(err)

	out := *output
	if out == "" {
		out = a.outputPath("relatorio_interactions", ".xlsx")
	}
	must(pipeline.ExportInteractionReport(report, out))
	fmt.Printf("interactions done total=%d correct=%d wrong=%d without=%d created=%d errors=%d report=%s\n",
		report.Total, report.Correct, report.Wrong, report.Without, report.Created, report.Errors, out)
}

func (a *app) dealsDedupe(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	pipelineID := fs.Int64("pipeline-id", 0, "pipeline to deduplicate")
	dryRun := fs.Bool("dry-run", false, "log deletions instead of applying them")
	_ = fs.Parse(args)
	if *pipelineID == 0 {
		must(fmt.Errorf("--pipeline-id is required"))
	}

	crm, err := ploomes.NewClient(a.cfg, a.logger)
	must(err)
	report, err := reconcile.RemoveDuplicates(ctx, crm, *pipelineID, *dryRun, a.logger)
	must(err)
	fmt.Printf("dedupe done pipeline=%d deals=%d duplicated=%d deleted=%d failed=%d\n",
		*pipelineID, report.Total, report.Duplicated, report.Deleted, report.Failed)
}

func (a *app) dealsCreatorCheck(ctx context.Context, cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	input := fs.String("input", "", "xlsx with a CNJ column")
	output := fs.String("output", "", "xlsx path for deals not created by the integration user")
	_ = fs.Parse(args)
	if *input == "" {
		must(fmt.Errorf("--input is required"))
	}
	must(requireFile(*input))

	batch, err := pipeline.LoadBatch(*input)
	must(err)
	crm, err := ploomes.NewClient(a.cfg, a.logger)
	must(err)
	mismatches, err := reconcile.CheckCreators(ctx, crm, batch.CNJs, a.cfg.IntegrationUserID, a.logger)
	must(err)

	if len(mismatches) == 0 {
		fmt.Printf("creator check done cnjs=%d: every deal was created by user %d\n", len(batch.CNJs), a.cfg.IntegrationUserID)
		return
	}
	out := *output
	if out == "" {
		out = a.outputPath("nao_criados_integracao", ".xlsx")
	}
	must(pipeline.ExportCreatorMismatches(mismatches, out))
	fmt.Printf("creator check done cnjs=%d mismatches=%d output=%s\n", len(batch.CNJs), len(mismatches), out)
}

func (a *app) runsList(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	limit := fs.Int("limit", 20, "max runs")
	runID := fs.String("run-id", "", "print the per-record results of one run")
	_ = fs.Parse(args)

	if *runID != "" {
		results, err := a.db.RunResults(*runID)
		must(err)
		for _, r := range results {
			fmt.Printf("%-25s deal=%-10d moved=%-5t deleted=%-5t %s\n", r.CNJ, r.DealID, r.MovedOK, r.DeletedOK, r.Error)
		}
		return
	}

	runs, err := a.db.ListRuns(*limit)
	must(err)
	for _, r := range runs {
		fmt.Printf("%s  %s  %-20s dry_run=%t moved=%d deleted=%d failed=%d purged=%d took=%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.RunID, r.Pipeline, r.DryRun,
			r.Counts["moved"], r.Counts["deleted"], r.Counts["failed"], r.Counts["purged"],
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	}
}

func (a *app) outputPath(prefix, ext string) string {
	return filepath.Join(a.cfg.OutputDir, prefix+"_"+time.Now().Format("20060102_150405")+ext)
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/envshift/config"
	"github.com/envshift/discovery"
	"github.com/envshift/export"
	"github.com/envshift/migrate"
	"github.com/envshift/store"
	"github.com/envshift/verify"
)

var (
	infoLine = color.New(color.FgCyan).PrintfFunc()
	warnLine = color.New(color.FgYellow).PrintfFunc()
	errLine  = color.New(color.FgRed).PrintfFunc()
	okLine   = color.New(color.FgGreen).PrintfFunc()
)

func usage() {
	fmt.Println(`envshift - environment-to-environment table migration

Usage:
  envshift discover [--tables a,b]          list tables in the source environment
  envshift export   [--tables a,b]          snapshot source tables to backup artifacts
  envshift import   --artifact f [--retry]  load an artifact into the target environment
  envshift verify   [--tables a,b]          compare source/target record counts
  envshift migrate  [--tables a,b]          export, import and verify in one run
  envshift check                            report suffix drift
  envshift help

Flags common to mutating commands: --dry-run, --yes, --batch-size N
--source and --target override the configured backend suffixes`)
}

type app struct {
	cfg    config.Config
	logger zerolog.Logger
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.Load("config.yml")
	if err != nil {
		errLine("config: %v\n", err)
		os.Exit(1)
	}
	a := &app{cfg: cfg, logger: logger}

	cmd := os.Args[1]
	args := os.Args[2:]

	var runErr error
	switch cmd {
	case "discover":
		runErr = a.runDiscover(args)
	case "export":
		runErr = a.runExport(args)
	case "import":
		runErr = a.runImport(args)
	case "verify":
		runErr = a.runVerify(args)
	case "migrate":
		runErr = a.runMigrate(args)
	case "check":
		runErr = a.runCheck()
	case "help", "-h", "--help":
		usage()
	default:
		errLine("unknown command %q\n", cmd)
		usage()
		os.Exit(1)
	}

	if runErr != nil {
		errLine("%v\n", runErr)
		os.Exit(1)
	}
}

func splitTables(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// sourceFlag and targetFlag register the suffix-override flags a subcommand
// accepts; applyOverrides folds them back into the config before resolution.
func sourceFlag(fs *flag.FlagSet) *string {
	return fs.String("source", "", "source backend suffix (overrides SOURCE_BACKEND_SUFFIX)")
}

func targetFlag(fs *flag.FlagSet) *string {
	return fs.String("target", "", "target backend suffix (overrides TARGET_BACKEND_SUFFIX)")
}

func (a *app) applyOverrides(source, target string) {
	if source != "" {
		a.cfg.SourceSuffix = source
	}
	if target != "" {
		a.cfg.TargetSuffix = target
	}
}

// confirmTarget gates mutating runs against protected environments behind a
// typed confirmation phrase.
func (a *app) confirmTarget(env config.Environment, yes bool) error {
	if !a.cfg.IsProduction(env.Suffix) || yes {
		return nil
	}
	phrase := fmt.Sprintf("migrate to %s", env.Suffix)
	warnLine("target %s is a protected environment.\n", env.Suffix)
	fmt.Printf("Type %q to continue: ", phrase)

	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	if strings.TrimSpace(line) != phrase {
		return fmt.Errorf("cancelled")
	}
	return nil
}

func (a *app) sourceStore(ctx context.Context) (*store.Client, config.Environment, error) {
	env, err := a.cfg.Source()
	if err != nil {
		return nil, env, err
	}
	// The source side is only ever read; Inspect makes that structural.
	st, err := store.New(ctx, env.Region, a.cfg.Database.Endpoint, store.Inspect, a.logger)
	return st, env, err
}

func (a *app) targetStore(ctx context.Context, dryRun bool) (*store.Client, config.Environment, error) {
	env, err := a.cfg.Target()
	if err != nil {
		return nil, env, err
	}
	mode := store.Mutate
	if dryRun {
		mode = store.Inspect
	}
	st, err := store.New(ctx, env.Region, a.cfg.Database.Endpoint, mode, a.logger)
	return st, env, err
}

func (a *app) runDiscover(args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	tablesFlag := fs.String("tables", "", "comma-separated logical table names (default: all)")
	srcFlag := sourceFlag(fs)
	fs.Parse(args)
	a.applyOverrides(*srcFlag, "")

	ctx := context.Background()
	st, env, err := a.sourceStore(ctx)
	if err != nil {
		return err
	}

	tables, err := discovery.Resolve(ctx, st, env, splitTables(*tablesFlag))
	if err != nil {
		return err
	}
	infoLine("environment %s (%s): %d tables\n", env.Suffix, env.Region, len(tables))
	for _, t := range tables {
		if t.Exists {
			fmt.Printf("  %-28s %s\n", t.Logical, t.Physical)
		} else {
			warnLine("  %-28s %s (not found)\n", t.Logical, t.Physical)
		}
	}
	return nil
}

func (a *app) runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	tablesFlag := fs.String("tables", "", "comma-separated logical table names (default: all)")
	srcFlag := sourceFlag(fs)
	fs.Parse(args)
	a.applyOverrides(*srcFlag, "")

	ctx := context.Background()
	st, env, err := a.sourceStore(ctx)
	if err != nil {
		return err
	}

	tables, err := discovery.Resolve(ctx, st, env, splitTables(*tablesFlag))
	if err != nil {
		return err
	}
	_, err = a.exportTables(ctx, st, env, tables)
	return err
}

func (a *app) exportTables(ctx context.Context, st *store.Client, env config.Environment, tables []discovery.Table) ([]export.Artifact, error) {
	exp := export.New(st, a.cfg.BackupDir, a.logger)
	stamp := time.Now()

	var arts []export.Artifact
	failed := 0
	for _, t := range tables {
		art, err := exp.ExportTable(ctx, t, stamp)
		if err != nil {
			// One broken table does not abort the multi-table run.
			errLine("export %s: %v\n", t.Physical, err)
			failed++
			continue
		}
		arts = append(arts, art)
	}

	manifest := export.NewManifest(env.Region, env.Suffix, stamp, arts)
	if _, err := manifest.Write(a.cfg.BackupDir); err != nil {
		return arts, err
	}
	if _, err := manifest.WriteRestoreScript(a.cfg.BackupDir); err != nil {
		return arts, err
	}

	if failed > 0 {
		warnLine("exported %d tables, %d failed\n", len(arts), failed)
	} else {
		okLine("exported %d tables to %s\n", len(arts), a.cfg.BackupDir)
	}
	return arts, nil
}

func (a *app) runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	artifactFlag := fs.String("artifact", "", "artifact file to import (required)")
	tablesFlag := fs.String("tables", "", "logical table name the artifact belongs to (required)")
	batchFlag := fs.Int("batch-size", migrate.DefaultBatchSize, "records per batch write; 1 means per-record put")
	retryFlag := fs.Bool("retry", false, "only re-import ids the previous ledger marked failed")
	dryRunFlag := fs.Bool("dry-run", false, "report without writing")
	yesFlag := fs.Bool("yes", false, "skip the confirmation prompt")
	tgtFlag := targetFlag(fs)
	fs.Parse(args)
	a.applyOverrides("", *tgtFlag)

	logical := strings.TrimSpace(*tablesFlag)
	if *artifactFlag == "" || logical == "" {
		return fmt.Errorf("import requires --artifact and --tables")
	}

	ctx := context.Background()
	st, env, err := a.targetStore(ctx, *dryRunFlag)
	if err != nil {
		return err
	}
	if !*dryRunFlag {
		if err := a.confirmTarget(env, *yesFlag); err != nil {
			return err
		}
	}

	path := *artifactFlag
	if !filepath.IsAbs(path) && !strings.ContainsRune(path, os.PathSeparator) {
		path = filepath.Join(a.cfg.BackupDir, path)
	}
	records, err := export.ReadArtifact(path)
	if err != nil {
		return err
	}

	var retry *migrate.Ledger
	if *retryFlag {
		if retry, err = migrate.ReadLedger(migrate.LedgerPath(path)); err != nil {
			return err
		}
	}

	dest := discovery.PhysicalName(logical, env)
	if *dryRunFlag {
		infoLine("[dry-run] would import %d records into %s\n", len(records), dest)
		return nil
	}

	im := migrate.New(st, a.logger, migrate.WithBatchSize(*batchFlag))
	res, err := im.Import(ctx, dest, records, retry)
	if err != nil {
		return err
	}
	if err := res.Ledger(filepath.Base(path)).Write(migrate.LedgerPath(path)); err != nil {
		return err
	}

	if res.Failed > 0 {
		warnLine("%s; re-run with --retry to target the failed subset\n", res.String())
		return nil
	}
	okLine("%s\n", res.String())
	return nil
}

func (a *app) runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	tablesFlag := fs.String("tables", "", "comma-separated logical table names (default: all)")
	srcFlag := sourceFlag(fs)
	tgtFlag := targetFlag(fs)
	fs.Parse(args)
	a.applyOverrides(*srcFlag, *tgtFlag)

	ctx := context.Background()
	src, srcEnv, err := a.sourceStore(ctx)
	if err != nil {
		return err
	}
	dst, dstEnv, err := a.targetStore(ctx, true)
	if err != nil {
		return err
	}

	tables, err := discovery.Resolve(ctx, src, srcEnv, splitTables(*tablesFlag))
	if err != nil {
		return err
	}

	report, err := a.compareTables(ctx, src, dst, srcEnv, dstEnv, tables)
	if err != nil {
		return err
	}
	report.Render(os.Stdout)
	if !report.AllMatch() {
		warnLine("count mismatches found; see DIFF rows above\n")
	}
	return nil
}

func (a *app) compareTables(ctx context.Context, src, dst *store.Client, srcEnv, dstEnv config.Environment, tables []discovery.Table) (*verify.Report, error) {
	report := &verify.Report{}
	for _, t := range tables {
		row, err := verify.Compare(ctx, src, dst, t.Logical, t.Physical, discovery.PhysicalName(t.Logical, dstEnv))
		if err != nil {
			// Mismatches and count errors are reported, never fatal.
			errLine("verify %s: %v\n", t.Logical, err)
			continue
		}
		report.Add(row)
	}
	return report, nil
}

func (a *app) runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	tablesFlag := fs.String("tables", "", "comma-separated logical table names (default: all)")
	batchFlag := fs.Int("batch-size", migrate.DefaultBatchSize, "records per batch write; 1 means per-record put")
	dryRunFlag := fs.Bool("dry-run", false, "report without writing")
	yesFlag := fs.Bool("yes", false, "skip the confirmation prompt")
	srcFlag := sourceFlag(fs)
	tgtFlag := targetFlag(fs)
	fs.Parse(args)
	a.applyOverrides(*srcFlag, *tgtFlag)

	ctx := context.Background()
	src, srcEnv, err := a.sourceStore(ctx)
	if err != nil {
		return err
	}
	dst, dstEnv, err := a.targetStore(ctx, *dryRunFlag)
	if err != nil {
		return err
	}
	if !*dryRunFlag {
		if err := a.confirmTarget(dstEnv, *yesFlag); err != nil {
			return err
		}
	}

	if drift := a.cfg.CheckDrift(); drift != nil {
		warnLine("suffix drift: app built against %s, tooling configured for %s\n",
			drift.PublicSuffix, drift.TableSuffix)
	}

	tables, err := discovery.Resolve(ctx, src, srcEnv, splitTables(*tablesFlag))
	if err != nil {
		return err
	}
	infoLine("migrating %d tables: %s -> %s\n", len(tables), srcEnv.Suffix, dstEnv.Suffix)

	arts, err := a.exportTables(ctx, src, srcEnv, tables)
	if err != nil {
		return err
	}

	im := migrate.New(dst, a.logger, migrate.WithBatchSize(*batchFlag))
	for _, art := range arts {
		path := filepath.Join(a.cfg.BackupDir, art.File)
		dest := discovery.PhysicalName(art.Logical, dstEnv)

		if *dryRunFlag {
			infoLine("[dry-run] would import %d records into %s\n", art.Records, dest)
			continue
		}

		records, err := export.ReadArtifact(path)
		if err != nil {
			return err
		}
		res, err := im.Import(ctx, dest, records, nil)
		if err != nil {
			return err
		}
		if err := res.Ledger(art.File).Write(migrate.LedgerPath(path)); err != nil {
			return err
		}
		fmt.Println(res.String())
	}

	if *dryRunFlag {
		okLine("[dry-run] no writes were performed\n")
		return nil
	}

	report, err := a.compareTables(ctx, src, dst, srcEnv, dstEnv, tables)
	if err != nil {
		return err
	}
	report.Render(os.Stdout)
	if report.AllMatch() {
		okLine("migration complete, all counts match\n")
	} else {
		warnLine("migration complete with DIFF rows; re-run affected tables\n")
	}
	return nil
}

func (a *app) runCheck() error {
	drift := a.cfg.CheckDrift()
	if drift == nil {
		okLine("no suffix drift: app and tooling agree\n")
		return nil
	}
	errLine("suffix drift detected:\n")
	fmt.Printf("  NEXT_PUBLIC_BACKEND_SUFFIX = %s\n", drift.PublicSuffix)
	fmt.Printf("  TABLE_SUFFIX               = %s\n", drift.TableSuffix)
	return fmt.Errorf("resolve the drift before running migrations")
}

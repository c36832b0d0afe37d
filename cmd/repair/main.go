package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"

	"github.com/envshift/config"
	"github.com/envshift/discovery"
	"github.com/envshift/repair"
	"github.com/envshift/store"
)

var (
	warnLine = color.New(color.FgYellow).PrintfFunc()
	errLine  = color.New(color.FgRed).PrintfFunc()
	okLine   = color.New(color.FgGreen).PrintfFunc()
)

func usage() {
	fmt.Println(`repair - in-place data repair for one backend environment

Usage:
  repair analyze  [--table T] [--limit N]   scan and report, no changes
  repair dry-run  [--table T] [--limit N]   print the planned updates
  repair test     --table T --limit N       limited single-table apply
  repair migrate  [--table T]               apply every planned update
  repair help`)
}

type runArgs struct {
	mode  string
	table string
	limit int
}

func run(ctx context.Context, args runArgs) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.Load("config.yml")
	if err != nil {
		return err
	}
	env, err := cfg.Active()
	if err != nil {
		return err
	}

	// Only the apply modes get a client that can write at all.
	mode := store.Inspect
	if args.mode == "migrate" || args.mode == "test" {
		mode = store.Mutate
	}
	st, err := store.New(ctx, env.Region, cfg.Database.Endpoint, mode, logger)
	if err != nil {
		return err
	}

	var logicals []string
	if args.table != "" {
		logicals = []string{args.table}
	}
	tables, err := discovery.Resolve(ctx, st, env, logicals)
	if err != nil {
		return err
	}

	scanner := repair.NewScanner(st, cfg.StorageBaseURL, logger)
	now := time.Now()
	totalTasks, totalApplied, totalFailed := 0, 0, 0

	for _, t := range tables {
		if !t.Exists {
			warnLine("table not found: %s\n", t.Physical)
			continue
		}
		plan, err := scanner.BuildPlan(ctx, t.Physical, args.limit, now)
		if err != nil {
			errLine("%s: %v\n", t.Logical, err)
			continue
		}
		totalTasks += len(plan.Tasks)
		renderPlan(t.Logical, plan)

		switch args.mode {
		case "analyze":
			// Report only.
		case "dry-run":
			for _, task := range plan.Tasks {
				fmt.Printf("  would set %s.%s = %v (was %v)\n", task.RecordID, task.Field, task.Corrected, task.Original)
			}
		case "test", "migrate":
			res, err := scanner.Apply(ctx, plan)
			if err != nil {
				return err
			}
			totalApplied += res.Applied
			totalFailed += res.Failed
		}
	}

	switch args.mode {
	case "analyze", "dry-run":
		okLine("%d corrections planned across %d tables, nothing written\n", totalTasks, len(tables))
	default:
		if totalFailed > 0 {
			warnLine("%d records updated, %d failed; re-run to fix\n", totalApplied, totalFailed)
		} else {
			okLine("%d records updated\n", totalApplied)
		}
	}
	return nil
}

func renderPlan(logical string, plan repair.Plan) {
	fmt.Printf("%s: scanned %d records, %d corrections", logical, plan.Scanned, len(plan.Tasks))
	if plan.Unparseable > 0 {
		fmt.Printf(", %d unparseable left as-is", plan.Unparseable)
	}
	fmt.Println()
	if len(plan.Tasks) == 0 {
		return
	}

	summary := plan.Summary()
	fields := make([]string, 0, len(summary))
	for f := range summary {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Corrections"})
	for _, f := range fields {
		table.Append([]string{f, fmt.Sprintf("%d", summary[f])})
	}
	table.Render()
}

// handleRequest is the scheduled-function entrypoint: a full analyze pass,
// so the log stream shows what drifted without touching anything.
func handleRequest(ctx context.Context) error {
	return run(ctx, runArgs{mode: "analyze"})
}

func main() {
	if _, ok := os.LookupEnv("AWS_LAMBDA_FUNCTION_NAME"); ok {
		lambda.Start(handleRequest)
		return
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	mode := os.Args[1]
	switch mode {
	case "analyze", "dry-run", "test", "migrate":
	case "help", "-h", "--help":
		usage()
		return
	default:
		errLine("unknown mode %q\n", mode)
		usage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	tableFlag := fs.String("table", "", "logical table name (default: all tables in the environment)")
	limitFlag := fs.Int("limit", 0, "cap the number of records examined")
	fs.Parse(os.Args[2:])

	if mode == "test" && (*tableFlag == "" || *limitFlag <= 0) {
		errLine("test mode requires --table and a positive --limit\n")
		os.Exit(1)
	}

	if err := run(context.Background(), runArgs{mode: mode, table: *tableFlag, limit: *limitFlag}); err != nil {
		errLine("%v\n", err)
		os.Exit(1)
	}
}

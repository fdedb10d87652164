package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rumor-ml/commons.systems/bankparse/internal/classify"
	"github.com/rumor-ml/commons.systems/bankparse/internal/dedup"
	"github.com/rumor-ml/commons.systems/bankparse/internal/domain"
	"github.com/rumor-ml/commons.systems/bankparse/internal/notify"
	"github.com/rumor-ml/commons.systems/bankparse/internal/output"
	"github.com/rumor-ml/commons.systems/bankparse/internal/pipeline"
	"github.com/rumor-ml/commons.systems/bankparse/internal/registry"
	"github.com/rumor-ml/commons.systems/bankparse/internal/rules"
	"github.com/rumor-ml/commons.systems/bankparse/internal/scanner"
	"github.com/rumor-ml/commons.systems/bankparse/internal/server"
	"github.com/rumor-ml/commons.systems/bankparse/internal/store"
	"github.com/rumor-ml/commons.systems/bankparse/internal/ui"
	"github.com/rumor-ml/commons.systems/bankparse/internal/validate"
)

const (
	version = "0.1.0"

	// localUserID owns everything written by CLI runs; the server derives
	// user IDs from auth tokens instead.
	localUserID = "local"
)

var (
	// Global flags
	versionFlag = flag.Bool("version", false, "Show version")

	// Core CLI flags
	inputDir = flag.String("input", "", "Input directory containing statements (required unless -serve)")
	dryRun   = flag.Bool("dry-run", false, "Show what would be parsed without writing")
	verbose  = flag.Bool("verbose", false, "Show detailed parsing logs")

	// Output and merge flags
	outputFile = flag.String("output", "", "Output JSON file (default: stdout)")
	mergeMode  = flag.Bool("merge", false, "Merge with existing output file")

	// Deduplication, rules and filters
	stateFile         = flag.String("state", "", "Deduplication state file")
	rulesFile         = flag.String("rules", "", "Category rules file")
	institutionFilter = flag.String("institution", "", "Filter by institution slug")

	// Persistence backends
	sqlitePath = flag.String("sqlite", "", "Also persist the ledger to this SQLite database")
	projectID  = flag.String("project", "", "GCP project ID (required for -serve, optional for Firestore persistence)")

	// Alerts
	alertThreshold = flag.Float64("alert-threshold", 0, "Warn on debits at or above this amount (0 disables)")

	// Server mode
	serveMode = flag.Bool("serve", false, "Run the HTTP API server instead of a one-shot import")
	port      = flag.String("port", "8080", "Server listen port (with -serve)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `bankparse - Bank and card statement ingestion

Usage:
  bankparse [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Parse all statements to stdout
  bankparse -input ~/statements

  # Parse to file with dedup state tracking
  bankparse -input ~/statements -output ledger.json -state state.json

  # Incremental monthly run with a local database and spending alerts
  bankparse -input ~/statements -output ledger.json -merge -state state.json -sqlite ledger.db -alert-threshold 500

  # Dry run with verbose output
  bankparse -input ~/statements -dry-run -verbose

  # Run the API server
  bankparse -serve -project my-gcp-project

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("bankparse version %s\n", version)
		os.Exit(0)
	}

	if *serveMode {
		if err := runServer(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *inputDir == "" {
		fmt.Fprintf(os.Stderr, "Error: -input flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() error {
	if *projectID == "" {
		return fmt.Errorf("-project is required with -serve")
	}

	srv, err := server.New(context.Background(), server.Options{
		ProjectID:      *projectID,
		RulesPath:      *rulesFile,
		AlertThreshold: *alertThreshold,
	})
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer srv.Close()

	addr := ":" + *port
	fmt.Fprintf(os.Stderr, "Listening on %s\n", addr)
	return http.ListenAndServe(addr, srv.Handler())
}

func run() error {
	ctx := context.Background()

	s := scanner.New(*inputDir)

	if !*verbose {
		ui.Header("Importing Bank Statements")
		ui.Step(1, 4, "Scanning directory")
	} else {
		fmt.Fprintf(os.Stderr, "Scanning directory: %s\n", *inputDir)
	}

	files, err := s.Scan()
	if err != nil {
		return fmt.Errorf("failed to scan directory %s: %w", *inputDir, err)
	}

	if *institutionFilter != "" {
		filtered := files[:0]
		for _, f := range files {
			if f.Metadata.Institution() == *institutionFilter {
				filtered = append(filtered, f)
			}
		}
		files = filtered
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Found %d statement files\n", len(files))
		for _, f := range files {
			fmt.Fprintf(os.Stderr, "  - %s (institution: %s, account: %s)\n",
				f.Path, f.Metadata.Institution(), f.Metadata.AccountNumber())
		}
	} else {
		ui.Success(fmt.Sprintf("Found %d statement files", len(files)))
	}

	if *dryRun {
		for _, f := range files {
			fmt.Printf("  would parse %s\n", f.Path)
		}
		fmt.Printf("Dry run complete. Would process %d files.\n", len(files))
		return nil
	}

	// Fail rather than silently writing an empty ledger in scripts/CI.
	if len(files) == 0 {
		return fmt.Errorf("no statement files found in %s\n\nPlease check:\n  - Directory path is correct\n  - Files have supported extensions (.pdf, .csv, .ofx, .qfx)\n  - You have read permissions on the directory and files\n\nRun with -verbose to see file discovery details", *inputDir)
	}

	if !*verbose {
		ui.Step(2, 4, "Loading deduplication state")
	}
	state, err := loadState()
	if err != nil {
		return err
	}
	if state != nil && *stateFile != "" {
		fmt.Fprintf(os.Stderr, "Deduplication enabled with state file: %s (%d existing fingerprints)\n",
			*stateFile, state.TotalFingerprints())
	}
	if state == nil {
		state = dedup.NewState()
	}

	if !*verbose {
		ui.Step(3, 4, "Loading category rules")
	}
	engine, err := loadRules()
	if err != nil {
		return err
	}

	var notifier *notify.Notifier
	if *alertThreshold > 0 {
		notifier = notify.New(*alertThreshold)
	}

	pipe := pipeline.New(registry.MustNew(), classify.New(engine), notifier, nil)
	ledger := domain.NewLedger()

	if *verbose {
		fmt.Fprintln(os.Stderr, "\nParsing and transforming statements...")
	} else {
		ui.Step(4, 4, "Parsing and transforming statements")
	}

	summary, err := pipe.ProcessFiles(ctx, "", files, ledger, state)
	if err != nil {
		return err
	}
	if summary.FilesFailed > 0 {
		for _, failure := range summary.Failures {
			ui.Error(failure.Error())
		}
		return fmt.Errorf("%d of %d files failed to import", summary.FilesFailed, len(files))
	}

	reportSummary(summary, ledger)

	if !*verbose {
		fmt.Fprintf(os.Stderr, "\n")
		ui.Info("Validating ledger...")
	} else {
		fmt.Fprintf(os.Stderr, "\nValidating ledger...\n")
	}
	if err := reportValidation(validate.ValidateLedger(ledger)); err != nil {
		return err
	}

	// Save state before writing output. If state saves but output fails,
	// a retry re-writes the output without re-parsing; the reverse order
	// would lose deduplication history on retry.
	if *stateFile != "" {
		if err := dedup.SaveState(state, *stateFile); err != nil {
			return fmt.Errorf("failed to save state file before writing output: %w", err)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Saved state with %d fingerprints to %s\n",
				state.TotalFingerprints(), *stateFile)
		}
	}

	opts := output.WriteOptions{
		MergeMode: *mergeMode,
		FilePath:  *outputFile,
	}
	if err := output.WriteLedgerToFile(ledger, opts); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if *outputFile != "" {
		if *verbose {
			fmt.Printf("\nOutput written to %s\n", *outputFile)
		} else {
			fmt.Fprintf(os.Stderr, "\n")
			ui.Success(fmt.Sprintf("Output written to %s", *outputFile))
		}
	}

	return persistLedger(ctx, ledger)
}

// loadState loads the dedup state when -state is given. A missing file
// starts fresh; a present but unloadable file aborts the run, because
// overwriting it would reprocess every transaction as new.
func loadState() (*dedup.State, error) {
	if *stateFile == "" {
		return nil, nil
	}

	state, err := dedup.LoadState(*stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			if *verbose {
				fmt.Fprintf(os.Stderr, "State file not found, creating new state\n")
			}
			return dedup.NewState(), nil
		}
		var pathErr *os.PathError
		if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrPermission) {
			return nil, fmt.Errorf("failed to load state file %q: permission denied: %w\n\nThe state file exists but cannot be read. Deleting it would cause all\ntransactions to be reprocessed as new. Check permissions first: ls -la %q",
				*stateFile, err, *stateFile)
		}
		return nil, fmt.Errorf("failed to load existing state file %q: %w\n\nThe state file exists but cannot be loaded. Deleting it would cause all\ntransactions to be reprocessed as new. Back it up before resetting:\n  cp %q %q.backup",
			*stateFile, err, *stateFile, *stateFile)
	}

	if state.TotalFingerprints() == 0 {
		fmt.Fprintf(os.Stderr, "State file has no history, all transactions will be processed as new\n")
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Loaded state with %d fingerprints\n", state.TotalFingerprints())
		if !state.Metadata.LastUpdated.IsZero() {
			fmt.Fprintf(os.Stderr, "  Last updated: %s\n", state.Metadata.LastUpdated.Format(time.RFC3339))
		}
	}
	return state, nil
}

func loadRules() (*rules.Engine, error) {
	if *rulesFile != "" {
		engine, err := rules.LoadFromFile(*rulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules file: %w", err)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Loaded custom rules from %s\n", *rulesFile)
		}
		return engine, nil
	}
	engine, err := rules.LoadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules: %w", err)
	}
	return engine, nil
}

// reportSummary prints import statistics, rule coverage and alerts.
func reportSummary(summary *pipeline.Summary, ledger *domain.Ledger) {
	if *verbose {
		fmt.Fprintf(os.Stderr, "\nTransformation complete:\n")
		fmt.Fprintf(os.Stderr, "  Institutions: %d\n", len(ledger.GetInstitutions()))
		fmt.Fprintf(os.Stderr, "  Accounts: %d\n", len(ledger.GetAccounts()))
		fmt.Fprintf(os.Stderr, "  Statements: %d\n", len(ledger.GetStatements()))
		fmt.Fprintf(os.Stderr, "  Transactions: %d\n", len(ledger.GetTransactions()))
	}

	if summary.DuplicatesSkipped > 0 {
		fmt.Fprintf(os.Stderr, "\nDeduplication:\n")
		fmt.Fprintf(os.Stderr, "  Skipped %d duplicate transactions\n", summary.DuplicatesSkipped)
	}
	if summary.RowErrors > 0 {
		ui.Warning(fmt.Sprintf("%d statement rows could not be parsed and were skipped", summary.RowErrors))
	}

	totalProcessed := summary.RulesMatched + summary.RulesUnmatched
	if totalProcessed > 0 {
		coverage := float64(summary.RulesMatched) / float64(totalProcessed) * 100
		if *verbose {
			fmt.Fprintf(os.Stderr, "\nRule matching statistics:\n")
			fmt.Fprintf(os.Stderr, "  Matched: %d (%.1f%%)\n", summary.RulesMatched, coverage)
			fmt.Fprintf(os.Stderr, "  Unmatched: %d\n", summary.RulesUnmatched)
		} else {
			fmt.Fprintf(os.Stderr, "\n")
			ui.Info(fmt.Sprintf("Rule coverage: %.1f%% (%d/%d matched)", coverage, summary.RulesMatched, totalProcessed))
		}
		if coverage < 80.0 {
			ui.Warning(fmt.Sprintf("Rule coverage %.1f%% below 80%% target (%d unmatched)", coverage, summary.RulesUnmatched))
		}
	}

	for _, alert := range summary.Alerts {
		ui.Warning(alert.Message)
	}
}

// reportValidation prints validation results. Errors abort the run;
// warnings do not.
func reportValidation(result *validate.ValidationResult) error {
	if !result.Valid() {
		if *verbose {
			fmt.Fprintf(os.Stderr, "\nValidation failed with %d errors:\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "  - %s %s [%s]: %s\n", e.Entity, e.ID, e.Field, e.Message)
			}
		} else {
			ui.Error(fmt.Sprintf("Validation failed with %d errors", len(result.Errors)))
			ui.Info("Showing first 5 errors (run with -verbose to see all):")
			for i, e := range result.Errors {
				if i >= 5 {
					ui.Error(fmt.Sprintf("... and %d more errors", len(result.Errors)-5))
					break
				}
				ui.Error(fmt.Sprintf("%s %s [%s]: %s", e.Entity, e.ID, e.Field, e.Message))
			}
		}
		return fmt.Errorf("validation failed with %d errors", len(result.Errors))
	}

	if len(result.Warnings) > 0 {
		if *verbose {
			fmt.Fprintf(os.Stderr, "Validation warnings (%d):\n", len(result.Warnings))
			for _, w := range result.Warnings {
				fmt.Fprintf(os.Stderr, "  - %s %s [%s]: %s\n", w.Entity, w.ID, w.Field, w.Message)
			}
		} else {
			ui.Warning(fmt.Sprintf("Validation produced %d warnings", len(result.Warnings)))
		}
	} else if !*verbose {
		ui.Success("Validation passed")
	} else {
		fmt.Fprintf(os.Stderr, "Validation passed\n")
	}
	return nil
}

// persistLedger writes the ledger to the optional database backends.
func persistLedger(ctx context.Context, ledger *domain.Ledger) error {
	if *sqlitePath != "" {
		db, err := store.NewSQLite(*sqlitePath)
		if err != nil {
			return fmt.Errorf("failed to open SQLite database: %w", err)
		}
		defer db.Close()
		if err := db.SaveLedger(ctx, localUserID, ledger); err != nil {
			return fmt.Errorf("failed to save ledger to SQLite: %w", err)
		}
		if !*verbose {
			ui.Success(fmt.Sprintf("Ledger saved to %s", *sqlitePath))
		}
	}

	if *projectID != "" {
		fs, err := store.NewFirestore(ctx, *projectID)
		if err != nil {
			return fmt.Errorf("failed to connect to Firestore: %w", err)
		}
		defer fs.Close()
		if err := fs.SaveLedger(ctx, localUserID, ledger); err != nil {
			return fmt.Errorf("failed to save ledger to Firestore: %w", err)
		}
		if !*verbose {
			ui.Success(fmt.Sprintf("Ledger saved to Firestore project %s", *projectID))
		}
	}

	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gestio-pm/gestio/modules"
	"github.com/gestio-pm/gestio/modules/portfolio/services"
	"github.com/gestio-pm/gestio/pkg/application"
	"github.com/gestio-pm/gestio/pkg/composables"
	"github.com/gestio-pm/gestio/pkg/configuration"
	"github.com/gestio-pm/gestio/pkg/eventbus"
)

type importFlags struct {
	tenantID  uuid.UUID
	userID    int64
	input     string
	outputDir string
	mode      string
	onError   string
	dryRun    bool
	progress  bool
}

func newImportCmd() *cobra.Command {
	var opts importFlags

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import portfolio sheets from a CSV directory or an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.input, "input", "", "Input: directory of CSV sheets or one .xlsx workbook (required)")
	cmd.Flags().StringVar(&opts.outputDir, "output", "", "Output directory for the run report (default: no report file)")
	cmd.Flags().StringVar(&opts.mode, "mode", "create", "Write policy: create or upsert")
	cmd.Flags().StringVar(&opts.onError, "on-error", "all_or_nothing", "Consistency policy: all_or_nothing or partial")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Resolve and report without writing")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "Stream per-row progress as JSON lines on stderr")
	cmd.Flags().Int64Var(&opts.userID, "user", 0, "Initiating user ID (required)")

	var tenant string
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant UUID (required)")

	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("user")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(strings.TrimSpace(tenant))
		if err != nil {
			return withCode(exitUsage, fmt.Errorf("invalid --tenant: %w", err))
		}
		opts.tenantID = id
		return nil
	}

	return cmd
}

func runImport(ctx context.Context, opts importFlags) error {
	runOpts := services.ImportOptions{
		TenantID:  opts.tenantID,
		UserID:    opts.userID,
		Mode:      services.Mode(opts.mode),
		ErrorMode: services.ErrorMode(opts.onError),
		DryRun:    opts.dryRun,
	}
	if err := runOpts.Validate(); err != nil {
		return withCode(exitUsage, err)
	}

	b, err := loadBatch(opts.input)
	if err != nil {
		return withCode(exitValidation, err)
	}
	if b.TotalRows() == 0 {
		return withCode(exitValidation, fmt.Errorf("input has no data rows"))
	}

	pool, err := connectDB(ctx)
	if err != nil {
		return withCode(exitDB, err)
	}
	defer pool.Close()

	conf := configuration.Use()
	app := application.New(pool, eventbus.NewEventPublisher(conf.Logger()))
	if err := modules.Load(app); err != nil {
		return withCode(exitDB, err)
	}
	svc := app.Service(&services.ImportService{}).(*services.ImportService)

	var sink services.ProgressFunc
	if opts.progress {
		sink = progressSink(os.Stderr)
	}

	startedAt := time.Now().UTC()
	result, err := svc.Import(composables.WithPool(ctx, pool), b, runOpts, sink)
	if err != nil {
		return withCode(exitDB, err)
	}

	report := runReport{
		RunID:      result.RunID,
		TenantID:   opts.tenantID,
		Input:      opts.input,
		Mode:       string(runOpts.Mode),
		OnError:    string(runOpts.ErrorMode),
		DryRun:     result.DryRun,
		Success:    result.Success,
		Rows:       b.TotalRows(),
		Result:     result,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}
	if opts.outputDir != "" {
		path := filepath.Join(opts.outputDir, fmt.Sprintf("import-report-%s.json", result.RunID))
		if err := writeJSONFile(path, report); err != nil {
			return withCode(exitDB, fmt.Errorf("write report: %w", err))
		}
	}
	if err := writeJSONLine(report); err != nil {
		return err
	}

	if !result.Success {
		return withCode(exitValidation, fmt.Errorf("import finished with %d row errors", len(result.Errors)))
	}
	return nil
}

type runReport struct {
	RunID      uuid.UUID              `json:"run_id"`
	TenantID   uuid.UUID              `json:"tenant_id"`
	Input      string                 `json:"input"`
	Mode       string                 `json:"mode"`
	OnError    string                 `json:"on_error"`
	DryRun     bool                   `json:"dry_run"`
	Success    bool                   `json:"success"`
	Rows       int                    `json:"rows"`
	Result     *services.ImportResult `json:"result"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

func progressSink(w *os.File) services.ProgressFunc {
	return func(ev services.ProgressEvent) {
		fmt.Fprintf(w, `{"family":%q,"row":%d,"total":%d,"status":%q}`+"\n",
			ev.Family, ev.RowIndex, ev.TotalInFamily, ev.OutcomeStatus)
	}
}

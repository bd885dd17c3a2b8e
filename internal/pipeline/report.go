// =============================================================================
// talktime - Report Pipeline
// =============================================================================
//
// Build turns a configuration into the concrete stages of the talk-time
// report:
//
//   vapro.csv + mapro.csv --combine--> combined.csv --provider--> xvapro.csv --+
//                                                                             +--reconcile--> ledger
//   pbx.csv ----------------------------------------------pbx--> xau.csv -----+
//
// plus an optional xlsx stage reading the ledger. After a successful run the
// ledger (and workbook) are archived when an archive directory is configured.
//
// =============================================================================

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/aggregator"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/combiner"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/config"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/mapping"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/reconciler"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/types"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/xlsxwriter"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/pkg/utils"
)

// BuildOptions adjusts a report beyond its configuration.
type BuildOptions struct {
	// XLSX forces the workbook export on.
	XLSX bool
}

// Report holds the stages for one configuration and collects what they
// produced.
type Report struct {
	Config *config.MainConfig
	Window types.Window

	LedgerPath string
	XLSXPath   string

	Stages []Stage

	// Filled in as stages run.
	Combined combiner.Result
	PBX      aggregator.Result
	Provider aggregator.Result
	Ledger   []types.CallerSummary
	Archived []string
}

// Build prepares the report stages for cfg. Mapping tables are loaded here so
// a bad mapping file fails before anything is written.
func Build(cfg *config.MainConfig, opts BuildOptions) (*Report, error) {
	window, err := cfg.Window.Parse()
	if err != nil {
		return nil, err
	}
	if len(cfg.Combiner.Inputs) != 2 {
		return nil, fmt.Errorf("combiner needs exactly two inputs, got %d", len(cfg.Combiner.Inputs))
	}

	pbxTable, err := mapping.Load(cfg, cfg.PBX)
	if err != nil {
		return nil, fmt.Errorf("pbx mapping: %w", err)
	}
	providerTable, err := mapping.Load(cfg, cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("provider mapping: %w", err)
	}

	r := &Report{
		Config:     cfg,
		Window:     window,
		LedgerPath: cfg.OutputPath(utils.LedgerFileName(cfg.LedgerPrefix, window.Start)),
	}

	filter := aggregator.Filter{Window: window, ValidLengths: cfg.ValidDestinationLengths}
	pbx := aggregator.NewSource(StagePBX, cfg, cfg.PBX, types.PBXSummaryLayout, pbxTable)
	provider := aggregator.NewSource(StageProvider, cfg, cfg.Provider, types.ProviderSummaryLayout, providerTable)

	combineOpts := combiner.Options{
		First:          cfg.Path(cfg.Combiner.Inputs[0]),
		Second:         cfg.Path(cfg.Combiner.Inputs[1]),
		Output:         provider.Input,
		TimestampIndex: cfg.Combiner.TimestampColumn(),
		Sentinels:      cfg.Combiner.Sentinels,
		Delimiter:      cfg.Combiner.Delimiter,
	}

	r.Stages = []Stage{
		{
			Name:      StageCombine,
			Inputs:    []string{combineOpts.First, combineOpts.Second},
			Output:    combineOpts.Output,
			Cacheable: true,
			Run: func(ctx context.Context) (int, error) {
				res, err := combiner.Combine(combineOpts)
				r.Combined = res
				return res.Rows, err
			},
		},
		aggregateStage(pbx, filter, &r.PBX),
		aggregateStage(provider, filter, &r.Provider),
		{
			Name:   StageReconcile,
			Inputs: []string{pbx.Output, provider.Output},
			Output: r.LedgerPath,
			Run: func(ctx context.Context) (int, error) {
				res, err := reconciler.Reconcile(r.LedgerPath,
					reconciler.Input{Path: pbx.Output, Layout: pbx.Layout},
					reconciler.Input{Path: provider.Output, Layout: provider.Layout},
				)
				r.Ledger = res.Rows
				return len(res.Rows), err
			},
		},
	}

	if opts.XLSX || cfg.XLSXExport {
		r.XLSXPath = strings.TrimSuffix(r.LedgerPath, ".csv") + ".xlsx"
		r.Stages = append(r.Stages, Stage{
			Name:   StageXLSX,
			Inputs: []string{r.LedgerPath},
			Output: r.XLSXPath,
			Run: func(ctx context.Context) (int, error) {
				rows, err := reconciler.ReadSummary(reconciler.Input{Path: r.LedgerPath, Layout: types.LedgerLayout})
				if err != nil {
					return 0, err
				}
				return len(rows), xlsxwriter.Write(r.XLSXPath, rows, xlsxwriter.DefaultOptions())
			},
		})
	}

	return r, nil
}

func aggregateStage(src aggregator.Source, f aggregator.Filter, out *aggregator.Result) Stage {
	return Stage{
		Name:          src.Name,
		Inputs:        []string{src.Input},
		Output:        src.Output,
		SkipIfMissing: true,
		Run: func(ctx context.Context) (int, error) {
			res, err := aggregator.Run(src, f)
			*out = res
			return res.Stats.Callers, err
		},
	}
}

// Only restricts the report to the named stages.
func (r *Report) Only(names ...string) error {
	stages, err := Select(r.Stages, names...)
	if err != nil {
		return err
	}
	r.Stages = stages
	return nil
}

func (r *Report) has(name string) bool {
	for _, s := range r.Stages {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Execute runs the report with c and archives the outputs on success.
func (r *Report) Execute(ctx context.Context, c *Coordinator) (*Result, error) {
	return c.Execute(ctx, r.Stages, RunInfo{Window: r.Window}, r.finalize)
}

func (r *Report) finalize(ctx context.Context) (string, error) {
	if !r.has(StageReconcile) {
		return "", nil
	}
	if r.Config.ArchiveDir == "" {
		return r.LedgerPath, nil
	}

	fm := utils.NewFileManager(r.Config.Path(r.Config.ArchiveDir))
	files := []string{r.LedgerPath}
	if r.has(StageXLSX) {
		files = append(files, r.XLSXPath)
	}
	for _, f := range files {
		archived, err := fm.ArchiveOutputFile(f)
		if err != nil {
			return r.LedgerPath, fmt.Errorf("archive: %w", err)
		}
		r.Archived = append(r.Archived, archived)
	}
	return r.LedgerPath, nil
}

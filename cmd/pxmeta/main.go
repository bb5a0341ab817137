package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hlatlas/pxmeta/internal/pkg/application/charts"
	"github.com/hlatlas/pxmeta/internal/pkg/application/pipeline"
	"github.com/hlatlas/pxmeta/internal/pkg/application/report"
	"github.com/hlatlas/pxmeta/internal/pkg/application/services/pride"
	"github.com/hlatlas/pxmeta/internal/pkg/application/services/systemhc"
	"github.com/hlatlas/pxmeta/internal/pkg/application/taxonomy"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/o11y"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/o11y/logging"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/repositories/snapshots"
	"github.com/hlatlas/pxmeta/internal/pkg/presentation"
	"github.com/spf13/cobra"
)

const serviceName = "pxmeta"

var serviceVersion = "develop"

var (
	dataDir       string
	validationDir string
	outputDir     string
	taxonomyFile  string

	prideAPIURL     string
	prideArchiveURL string
	systemhcURL     string
	fetchDelay      time.Duration

	datasetListFile string
	templateFile    string
	servicePort     string
)

var rootCmd = &cobra.Command{
	Use:   "pxmeta",
	Short: "Curation pipeline for immunopeptidomics dataset metadata",
	Long: `pxmeta harvests dataset metadata from the large proteomics
repositories (PRIDE, MassIVE, jPOST, PeptideAtlas), classifies every
dataset by HLA class, sample type and disease, cross-references the
table against the SysteMHC Atlas and renders curated reports.

Each stage persists a snapshot, so stages can be run one at a time and
always pick up from the most-processed table on disk.`,
	SilenceUsage: true,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetch metadata for every dataset in the id list",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := pipeline.ReadDatasetList(datasetListFile)
		if err != nil {
			return err
		}

		p, err := newPipeline(cmd.Context())
		if err != nil {
			return err
		}

		records, err := p.Collect(cmd.Context(), ids)
		if err != nil {
			return err
		}

		log := logging.GetFromContext(cmd.Context())
		log.Info().Msgf("collected %d records", len(records))
		return nil
	},
}

var sdrfCmd = &cobra.Command{
	Use:   "sdrf",
	Short: "Download and merge per-sample sheets into the table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
			return p.MergeSampleSheets(ctx, records)
		})
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify HLA class, sample type and disease for every record",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
			return p.Classify(ctx, records)
		})
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Normalize disease fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
			return p.CleanDiseases(ctx, records)
		})
	},
}

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Infer disease labels for records that are still unknown",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
			return p.InferDiseases(ctx, records)
		})
	},
}

var crosscheckCmd = &cobra.Command{
	Use:   "crosscheck",
	Short: "Cross-reference the table against the SysteMHC Atlas",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
			return p.Crosscheck(ctx, records)
		})
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Gap-fill verified records from SysteMHC detail pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
			return p.EnrichFromSysteMHC(ctx, records)
		})
	},
}

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write the manual curation template for unresolved records",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd.Context())
		if err != nil {
			return err
		}

		records, _, err := p.LoadLatest()
		if err != nil {
			return err
		}

		count, err := p.WriteManualTemplate(cmd.Context(), records, templateFile)
		if err != nil {
			return err
		}

		log := logging.GetFromContext(cmd.Context())
		log.Info().Msgf("wrote %d template rows to %s", count, templateFile)
		return nil
	},
}

var mergeManualCmd = &cobra.Command{
	Use:   "merge-manual",
	Short: "Merge a hand-edited curation template back into the table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
			return p.MergeManualTemplate(ctx, records, templateFile)
		})
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Recompute metadata quality scores in place",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd.Context())
		if err != nil {
			return err
		}

		store := snapshots.NewStore(dataDir)
		records, stage, err := p.LoadLatest()
		if err != nil {
			return err
		}

		p.Rescore(records)

		return store.Save(stage, records)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the curation workbook and quality report",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd.Context())
		if err != nil {
			return err
		}

		records, stage, err := p.LoadLatest()
		if err != nil {
			return err
		}

		if err = os.MkdirAll(outputDir, 0o755); err != nil {
			return err
		}

		workbookPath := filepath.Join(outputDir, "curated_datasets.xlsx")
		if err = report.WriteWorkbook(workbookPath, records); err != nil {
			return err
		}

		reportPath := filepath.Join(outputDir, "quality_report.txt")
		if err = report.WriteQualityReport(reportPath, records); err != nil {
			return err
		}

		log := logging.GetFromContext(cmd.Context())
		log.Info().Msgf("rendered %s and %s from the %s snapshot", workbookPath, reportPath, stage)
		return nil
	},
}

var chartsCmd = &cobra.Command{
	Use:   "charts",
	Short: "Render summary charts",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd.Context())
		if err != nil {
			return err
		}

		records, _, err := p.LoadLatest()
		if err != nil {
			return err
		}

		return charts.WriteAll(filepath.Join(outputDir, "charts"), records)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every automatic stage in order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ids, err := pipeline.ReadDatasetList(datasetListFile)
		if err != nil {
			return err
		}

		p, err := newPipeline(ctx)
		if err != nil {
			return err
		}

		records, err := p.Collect(ctx, ids)
		if err != nil {
			return err
		}

		stages := []func(context.Context, []domain.DatasetRecord) ([]domain.DatasetRecord, error){
			p.MergeSampleSheets, p.Classify, p.CleanDiseases,
			p.InferDiseases, p.Crosscheck, p.EnrichFromSysteMHC,
		}

		for _, stage := range stages {
			if records, err = stage(ctx, records); err != nil {
				return err
			}
		}

		if err = os.MkdirAll(outputDir, 0o755); err != nil {
			return err
		}

		if err = report.WriteWorkbook(filepath.Join(outputDir, "curated_datasets.xlsx"), records); err != nil {
			return err
		}

		if err = report.WriteQualityReport(filepath.Join(outputDir, "quality_report.txt"), records); err != nil {
			return err
		}

		return charts.WriteAll(filepath.Join(outputDir, "charts"), records)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the curated table over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		router := chi.NewRouter()
		api := presentation.NewAPI(cmd.Context(), router, snapshots.NewStore(dataDir))

		return api.Start(servicePort)
	},
}

func newPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	log := logging.GetFromContext(ctx)

	tax, err := taxonomy.Load(taxonomyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	return pipeline.New(pipeline.Config{
		Store:         snapshots.NewStore(dataDir),
		ValidationDir: validationDir,
		Taxonomy:      tax,
		PrideService:  pride.NewProjectService(ctx, log, prideAPIURL, prideArchiveURL),
		CrossRefSvc:   systemhc.NewCrossReferenceService(ctx, log, systemhcURL),
		FetchDelay:    fetchDelay,
		Logger:        log,
	}), nil
}

func runStage(ctx context.Context, stage func(context.Context, *pipeline.Pipeline, []domain.DatasetRecord) ([]domain.DatasetRecord, error)) error {
	p, err := newPipeline(ctx)
	if err != nil {
		return err
	}

	records, from, err := p.LoadLatest()
	if err != nil {
		return err
	}

	log := logging.GetFromContext(ctx)
	log.Info().Msgf("resuming from the %s snapshot (%d records)", from, len(records))

	_, err = stage(ctx, p, records)

	return err
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data-dir", "data", "directory for per-stage table snapshots")
	pf.StringVar(&validationDir, "validation-dir", "validation", "directory for stage reports")
	pf.StringVar(&outputDir, "output-dir", "output", "directory for rendered reports and charts")
	pf.StringVar(&taxonomyFile, "taxonomy", "", "optional YAML file extending the built-in keyword taxonomy")
	pf.StringVar(&prideAPIURL, "pride-api-url", pride.DefaultAPIURL, "PRIDE archive API base URL")
	pf.StringVar(&prideArchiveURL, "pride-archive-url", pride.DefaultArchiveURL, "PRIDE file archive base URL")
	pf.StringVar(&systemhcURL, "systemhc-url", systemhc.DefaultBaseURL, "SysteMHC Atlas base URL")
	pf.DurationVar(&fetchDelay, "fetch-delay", time.Second, "pause between per-dataset remote fetches")

	collectCmd.Flags().StringVar(&datasetListFile, "datasets", "datasets.txt", "file with one dataset id per line")
	runCmd.Flags().StringVar(&datasetListFile, "datasets", "datasets.txt", "file with one dataset id per line")
	templateCmd.Flags().StringVar(&templateFile, "template", "systemhc_manual_template.csv", "path of the curation template")
	mergeManualCmd.Flags().StringVar(&templateFile, "template", "systemhc_manual_template.csv", "path of the curation template")
	serveCmd.Flags().StringVar(&servicePort, "port", envOrDefault("SERVICE_PORT", "8880"), "port to listen on")

	rootCmd.AddCommand(
		collectCmd, sdrfCmd, classifyCmd, cleanCmd, inferCmd,
		crosscheckCmd, enrichCmd, templateCmd, mergeManualCmd,
		scoreCmd, reportCmd, chartsCmd, runCmd, serveCmd,
	)
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}

	return fallback
}

func main() {
	ctx, log, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion)
	defer cleanup()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

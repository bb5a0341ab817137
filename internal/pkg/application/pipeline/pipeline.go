package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hlatlas/pxmeta/internal/pkg/application/classify"
	"github.com/hlatlas/pxmeta/internal/pkg/application/diseases"
	"github.com/hlatlas/pxmeta/internal/pkg/application/quality"
	"github.com/hlatlas/pxmeta/internal/pkg/application/reconcile"
	"github.com/hlatlas/pxmeta/internal/pkg/application/sdrf"
	"github.com/hlatlas/pxmeta/internal/pkg/application/services/pride"
	"github.com/hlatlas/pxmeta/internal/pkg/application/services/systemhc"
	"github.com/hlatlas/pxmeta/internal/pkg/application/taxonomy"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/o11y/tracing"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/repositories/snapshots"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("pxmeta/pipeline")

// Pipeline threads one record table through the named curation stages,
// persisting a snapshot after each stage. Failures are local to a single
// dataset: a dataset that cannot be fetched becomes a degraded record and
// flows through the remaining stages unchanged.
type Pipeline struct {
	store         *snapshots.Store
	validationDir string

	tax        *taxonomy.Taxonomy
	classifier *classify.Classifier
	cleaner    *diseases.Cleaner
	inferencer *diseases.Inferencer
	reconciler *reconcile.Reconciler

	prideSvc    pride.ProjectService
	crossRefSvc systemhc.CrossReferenceService

	// fetchDelay rate-limits the per-dataset remote fetch loops.
	fetchDelay time.Duration

	log zerolog.Logger
}

type Config struct {
	Store         *snapshots.Store
	ValidationDir string
	Taxonomy      *taxonomy.Taxonomy
	PrideService  pride.ProjectService
	CrossRefSvc   systemhc.CrossReferenceService
	FetchDelay    time.Duration
	Logger        zerolog.Logger
}

func New(cfg Config) *Pipeline {
	return &Pipeline{
		store:         cfg.Store,
		validationDir: cfg.ValidationDir,
		tax:           cfg.Taxonomy,
		classifier:    classify.New(cfg.Taxonomy),
		cleaner:       diseases.NewCleaner(cfg.Taxonomy),
		inferencer:    diseases.NewInferencer(cfg.Taxonomy),
		reconciler:    reconcile.New(cfg.Taxonomy),
		prideSvc:      cfg.PrideService,
		crossRefSvc:   cfg.CrossRefSvc,
		fetchDelay:    cfg.FetchDelay,
		log:           cfg.Logger,
	}
}

// ReadDatasetList reads the line-oriented dataset id list.
func ReadDatasetList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset list: %w", err)
	}
	defer file.Close()

	ids := []string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if len(id) > 3 {
			ids = append(ids, id)
		}
	}

	return ids, scanner.Err()
}

// Collect resolves every dataset id against its repository. PRIDE ids get
// a full metadata fetch; the other repositories have no public JSON API,
// so their records are created with identity and a source URL and queued
// for manual curation.
func (p *Pipeline) Collect(ctx context.Context, datasetIDs []string) ([]domain.DatasetRecord, error) {
	var err error
	ctx, span := tracer.Start(ctx, "collect")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	records := make([]domain.DatasetRecord, 0, len(datasetIDs))

	for i, id := range datasetIDs {
		repo, repoErr := domain.RepositoryFromDatasetID(id)
		if repoErr != nil {
			p.log.Warn().Msgf("skipping %s: %s", id, repoErr.Error())
			continue
		}

		if repo != domain.RepositoryPRIDE {
			records = append(records, manualRecord(id, repo))
			continue
		}

		record, fetchErr := p.prideSvc.GetProject(ctx, id)
		if fetchErr != nil {
			p.log.Error().Err(fetchErr).Msgf("failed to fetch metadata for %s", id)
			records = append(records, domain.DatasetRecord{
				DatasetID:  id,
				Repository: repo,
				Error:      "Failed to fetch metadata",
			})
		} else {
			records = append(records, *record)
		}

		if i < len(datasetIDs)-1 {
			time.Sleep(p.fetchDelay)
		}
	}

	err = p.store.Save(snapshots.StageRaw, records)

	return records, err
}

func manualRecord(id string, repo domain.Repository) domain.DatasetRecord {
	record := domain.DatasetRecord{
		DatasetID:    id,
		Repository:   repo,
		ManualReview: true,
	}

	switch repo {
	case domain.RepositoryMassIVE:
		record.SourceURL = "https://massive.ucsd.edu/ProteoSAFe/dataset.jsp?task=" + id
	case domain.RepositoryJPOST:
		record.SourceURL = "https://repository.jpostdb.org/entry/" + id
	case domain.RepositoryPeptideAtlas:
		record.SourceURL = "http://www.peptideatlas.org/PASS/" + id
	}

	return record
}

// MergeSampleSheets downloads and flattens the per-sample sheet for every
// PRIDE record that has one. A malformed sheet is logged and skipped; the
// record just proceeds without that contribution.
func (p *Pipeline) MergeSampleSheets(ctx context.Context, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
	var err error
	ctx, span := tracer.Start(ctx, "merge-sample-sheets")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	for i := range records {
		r := &records[i]
		if r.Repository != domain.RepositoryPRIDE || r.Error != "" {
			continue
		}

		sheet, fetchErr := p.prideSvc.GetSampleSheet(ctx, r.DatasetID)
		if fetchErr != nil {
			if !errors.Is(fetchErr, pride.ErrNotFound) {
				p.log.Warn().Err(fetchErr).Msgf("failed to download sample sheet for %s", r.DatasetID)
			}
			continue
		}

		summary, parseErr := sdrf.Parse(bytes.NewReader(sheet))
		if parseErr != nil {
			p.log.Warn().Err(parseErr).Msgf("failed to parse sample sheet for %s", r.DatasetID)
			continue
		}

		sdrf.MergeIntoRecord(r, summary)

		time.Sleep(p.fetchDelay)
	}

	err = p.store.Save(snapshots.StageEnriched, records)

	return records, err
}

// Classify runs all three classification axes plus the quality score over
// every record.
func (p *Pipeline) Classify(ctx context.Context, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
	var err error
	_, span := tracer.Start(ctx, "classify")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	for i := range records {
		p.classifier.Apply(&records[i])
		quality.Apply(&records[i])
	}

	err = p.store.Save(snapshots.StageClassified, records)

	return records, err
}

// CleanDiseases normalizes the disease fields and recomputes categories.
func (p *Pipeline) CleanDiseases(ctx context.Context, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
	var err error
	_, span := tracer.Start(ctx, "clean-diseases")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	for i := range records {
		p.cleaner.Apply(&records[i])
		records[i].NeedsManualReview = classify.DeriveNeedsManualReview(&records[i])
	}

	err = p.store.Save(snapshots.StageCleaned, records)

	return records, err
}

// InferDiseases fills in disease labels for records that are still Unknown
// and writes the inference report.
func (p *Pipeline) InferDiseases(ctx context.Context, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
	var err error
	_, span := tracer.Start(ctx, "infer-diseases")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	inferred := 0
	for i := range records {
		if p.inferencer.Apply(&records[i]) {
			inferred++
			records[i].NeedsManualReview = classify.DeriveNeedsManualReview(&records[i])
		}
	}

	p.log.Info().Msgf("inferred disease labels for %d of %d records", inferred, len(records))

	if err = p.writeInferenceReport(records); err != nil {
		p.log.Warn().Err(err).Msg("failed to write inference report")
	}

	err = p.store.Save(snapshots.StageInferred, records)

	return records, err
}

// Crosscheck marks every record that appears in the cross-reference
// database and writes the crosscheck report.
func (p *Pipeline) Crosscheck(ctx context.Context, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
	var err error
	ctx, span := tracer.Start(ctx, "crosscheck")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	ids, err := p.crossRefSvc.ListDatasetIDs(ctx)
	if err != nil {
		return records, fmt.Errorf("failed to list cross-reference datasets: %w", err)
	}

	found := 0
	for i := range records {
		if _, ok := ids[records[i].DatasetID]; ok {
			records[i].InSysteMHC = true
			records[i].SysteMHCVerified = true
			found++
		}
	}

	p.log.Info().Msgf("%d of %d records verified against SysteMHC (%d SysteMHC entries total)", found, len(records), len(ids))

	if err = p.writeCrosscheckReport(records, len(ids)); err != nil {
		p.log.Warn().Err(err).Msg("failed to write crosscheck report")
	}

	err = p.store.Save(snapshots.StageCrosschecked, records)

	return records, err
}

// EnrichFromSysteMHC scrapes per-dataset detail pages for records that are
// verified but still carry unresolved fields, and gap-fills them.
func (p *Pipeline) EnrichFromSysteMHC(ctx context.Context, records []domain.DatasetRecord) ([]domain.DatasetRecord, error) {
	var err error
	ctx, span := tracer.Start(ctx, "enrich-from-systemhc")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	unresolvedBefore := countUnresolved(records)
	enriched := 0

	for i := range records {
		r := &records[i]
		if !r.InSysteMHC || !needsEnrichment(r) {
			continue
		}

		info, fetchErr := p.crossRefSvc.GetSampleInfo(ctx, r.DatasetID)
		if fetchErr != nil {
			p.log.Warn().Err(fetchErr).Msgf("failed to fetch SysteMHC details for %s", r.DatasetID)
			continue
		}

		sampleType, tissues, cellTypes, alleles := systemhc.MapSampleInfo(info)
		incoming := reconcile.Incoming{
			HLAAlleles: alleles,
			SampleType: sampleType,
			Tissues:    tissues,
			CellTypes:  cellTypes,
		}

		if p.reconciler.Merge(r, incoming, domain.InferredFromSysteMHC) {
			enriched++
			r.NeedsManualReview = classify.DeriveNeedsManualReview(r)
		}

		time.Sleep(p.fetchDelay)
	}

	p.log.Info().Msgf("enriched %d records from SysteMHC (unresolved fields %d -> %d)",
		enriched, unresolvedBefore, countUnresolved(records))

	if err = p.writeEnrichmentReport(records, unresolvedBefore); err != nil {
		p.log.Warn().Err(err).Msg("failed to write enrichment report")
	}

	err = p.store.Save(snapshots.StageSysteMHCEnriched, records)

	return records, err
}

// WriteManualTemplate emits the curation template for verified records
// that still need review, pre-filled from their titles.
func (p *Pipeline) WriteManualTemplate(ctx context.Context, records []domain.DatasetRecord, path string) (int, error) {
	_, span := tracer.Start(ctx, "write-manual-template")
	defer span.End()

	filler := systemhc.NewFiller()

	rows := []systemhc.TemplateRow{}
	for i := range records {
		r := &records[i]
		if r.InSysteMHC && needsEnrichment(r) {
			rows = append(rows, filler.Fill(r))
		}
	}

	return len(rows), systemhc.WriteTemplate(path, rows)
}

// MergeManualTemplate merges a hand-edited curation template back into the
// table under the same gap-fill rules as any other source, marks the
// touched records as verified and clears their review flag.
func (p *Pipeline) MergeManualTemplate(ctx context.Context, records []domain.DatasetRecord, path string) ([]domain.DatasetRecord, error) {
	var err error
	_, span := tracer.Start(ctx, "merge-manual-template")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	rows, err := systemhc.ReadTemplate(path)
	if err != nil {
		return records, err
	}

	byID := map[string]*domain.DatasetRecord{}
	for i := range records {
		byID[records[i].DatasetID] = &records[i]
	}

	merged := 0
	for _, row := range rows {
		r, ok := byID[row.DatasetID]
		if !ok {
			p.log.Warn().Msgf("template row for unknown dataset %s ignored", row.DatasetID)
			continue
		}

		incoming := reconcile.Incoming{
			HLAAlleles:  row.HLAAllelesFound,
			DiseaseType: row.DiseasesFound,
			SampleType:  sampleTypeFromTemplate(row),
			Tissues:     row.TissuesFound,
			CellTypes:   row.CellTypesFound,
		}

		if p.reconciler.Merge(r, incoming, domain.InferredFromSysteMHCManual) {
			merged++
		}

		r.SysteMHCVerified = true
		r.NeedsManualReview = false
	}

	p.log.Info().Msgf("merged manual template: %d of %d rows contributed data", merged, len(rows))

	err = p.store.Save(snapshots.StageManuallyEnriched, records)

	return records, err
}

// Rescore recomputes the derived quality level over the whole table. The
// review flag is left alone here: manual merges clear it authoritatively.
func (p *Pipeline) Rescore(records []domain.DatasetRecord) {
	for i := range records {
		quality.Apply(&records[i])
	}
}

// LoadLatest resumes from the most-processed snapshot on disk.
func (p *Pipeline) LoadLatest() ([]domain.DatasetRecord, snapshots.Stage, error) {
	return p.store.LoadLatest()
}

func sampleTypeFromTemplate(row systemhc.TemplateRow) string {
	if row.CellTypesFound != "" {
		return "Cell line (" + row.CellTypesFound + ")"
	}
	if row.TissuesFound != "" {
		return "Tissue (" + row.TissuesFound + ")"
	}
	return ""
}

func needsEnrichment(r *domain.DatasetRecord) bool {
	return r.HLAType == domain.HLATypeNeedsReview || r.HLANeedsReview ||
		domain.IsUnresolved(r.SampleType) || domain.IsUnresolved(r.DiseaseType) ||
		strings.TrimSpace(r.HLAAlleles) == ""
}

func countUnresolved(records []domain.DatasetRecord) int {
	count := 0
	for i := range records {
		r := &records[i]
		if r.HLAType == domain.HLATypeNeedsReview {
			count++
		}
		if domain.IsUnresolved(r.SampleType) {
			count++
		}
		if domain.IsUnresolved(r.DiseaseType) {
			count++
		}
	}

	return count
}

func (p *Pipeline) writeInferenceReport(records []domain.DatasetRecord) error {
	var report strings.Builder

	inferred := 0
	unknown := 0
	sources := map[domain.InferenceSource]int{}

	for i := range records {
		if records[i].DiseaseInferred {
			inferred++
			sources[records[i].InferenceSource]++
		}
		if domain.IsUnresolved(records[i].DiseaseType) {
			unknown++
		}
	}

	fmt.Fprintf(&report, "Disease inference report\n\n")
	fmt.Fprintf(&report, "Total datasets:    %d\n", len(records))
	fmt.Fprintf(&report, "Inferred:          %d\n", inferred)
	fmt.Fprintf(&report, "Still unknown:     %d\n\n", unknown)

	fmt.Fprintf(&report, "Inference sources:\n")
	for _, source := range []domain.InferenceSource{domain.InferredFromTitle, domain.InferredFromDescription, domain.InferredFromTissue} {
		if sources[source] > 0 {
			fmt.Fprintf(&report, "  %-12s %d\n", source, sources[source])
		}
	}

	return p.writeValidationFile("disease_inference_report.txt", report.String())
}

func (p *Pipeline) writeCrosscheckReport(records []domain.DatasetRecord, totalInSysteMHC int) error {
	var report strings.Builder

	verified := []string{}
	missing := []string{}
	for i := range records {
		if records[i].InSysteMHC {
			verified = append(verified, records[i].DatasetID)
		} else {
			missing = append(missing, records[i].DatasetID)
		}
	}

	fmt.Fprintf(&report, "SysteMHC crosscheck report\n\n")
	fmt.Fprintf(&report, "SysteMHC entries:  %d\n", totalInSysteMHC)
	fmt.Fprintf(&report, "Verified:          %d\n", len(verified))
	fmt.Fprintf(&report, "Not in SysteMHC:   %d\n\n", len(missing))

	fmt.Fprintf(&report, "Datasets not found in SysteMHC:\n")
	for _, id := range missing {
		fmt.Fprintf(&report, "  %s\n", id)
	}

	return p.writeValidationFile("systemhc_crosscheck_report.txt", report.String())
}

func (p *Pipeline) writeEnrichmentReport(records []domain.DatasetRecord, unresolvedBefore int) error {
	var report strings.Builder

	fmt.Fprintf(&report, "SysteMHC enrichment report\n\n")
	fmt.Fprintf(&report, "Unresolved fields before: %d\n", unresolvedBefore)
	fmt.Fprintf(&report, "Unresolved fields after:  %d\n\n", countUnresolved(records))

	fmt.Fprintf(&report, "Records still needing review:\n")
	for i := range records {
		if records[i].InSysteMHC && needsEnrichment(&records[i]) {
			fmt.Fprintf(&report, "  %s\n", records[i].DatasetID)
		}
	}

	return p.writeValidationFile("systemhc_enrichment_report.txt", report.String())
}

func (p *Pipeline) writeValidationFile(name, content string) error {
	if err := os.MkdirAll(p.validationDir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(p.validationDir, name), []byte(content), 0o644)
}

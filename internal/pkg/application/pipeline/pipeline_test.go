package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hlatlas/pxmeta/internal/pkg/application/services/pride"
	"github.com/hlatlas/pxmeta/internal/pkg/application/services/systemhc"
	"github.com/hlatlas/pxmeta/internal/pkg/application/taxonomy"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/repositories/snapshots"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestThatCollectResolvesEveryRepository(t *testing.T) {
	is, p, _ := testSetup(t)

	records, err := p.Collect(context.Background(), []string{"PXD012348", "MSV000084172", "JPST000317", "PASS00270", "bogus"})
	is.NoErr(err)

	is.Equal(len(records), 4) // the unrecognized id is skipped

	is.Equal(records[0].Repository, domain.RepositoryPRIDE)
	is.Equal(records[0].Title, "HLA-A*02:01 immunopeptidome of HeLa cells")

	is.Equal(records[1].Repository, domain.RepositoryMassIVE)
	is.True(records[1].ManualReview)
	is.Equal(records[1].SourceURL, "https://massive.ucsd.edu/ProteoSAFe/dataset.jsp?task=MSV000084172")

	is.Equal(records[2].SourceURL, "https://repository.jpostdb.org/entry/JPST000317")
	is.Equal(records[3].SourceURL, "http://www.peptideatlas.org/PASS/PASS00270")
}

func TestThatFetchFailuresDegradeToErrorRecords(t *testing.T) {
	is, p, _ := testSetup(t)

	records, err := p.Collect(context.Background(), []string{"PXD999999"})
	is.NoErr(err)

	is.Equal(len(records), 1)
	is.Equal(records[0].DatasetID, "PXD999999")
	is.Equal(records[0].Error, "Failed to fetch metadata")
}

func TestThatSampleSheetsAreMergedIn(t *testing.T) {
	is, p, _ := testSetup(t)

	records, err := p.Collect(context.Background(), []string{"PXD012348"})
	is.NoErr(err)

	records, err = p.MergeSampleSheets(context.Background(), records)
	is.NoErr(err)

	is.True(records[0].HasSDRF)
	is.Equal(records[0].SampleCount, 2)
	is.Equal(records[0].GetExtra("sdrf_organism"), "Homo sapiens")
}

func TestThatClassificationAndScoringRunOverTheWholeTable(t *testing.T) {
	is, p, _ := testSetup(t)

	records := []domain.DatasetRecord{
		{
			DatasetID:  "PXD012348",
			Repository: domain.RepositoryPRIDE,
			Title:      "HLA-A*02:01 immunopeptidome of HeLa cells",
			Diseases:   "Melanoma",
		},
		{DatasetID: "PXD999999", Repository: domain.RepositoryPRIDE, Error: "Failed to fetch metadata"},
	}

	records, err := p.Classify(context.Background(), records)
	is.NoErr(err)

	is.Equal(records[0].HLAType, domain.HLATypeClassI)
	is.Equal(records[0].SampleType, "Cell line (HeLa)")
	is.Equal(records[0].DiseaseType, "Melanoma")

	is.Equal(records[1].HLAType, domain.HLATypeNone)
	is.True(records[1].NeedsManualReview)
	is.Equal(records[1].MetadataQuality, domain.QualityLow)
}

func TestThatCleaningAndInferenceFollowClassification(t *testing.T) {
	is, p, _ := testSetup(t)

	records := []domain.DatasetRecord{{
		DatasetID:  "PXD000001",
		Repository: domain.RepositoryPRIDE,
		Title:      "Immunopeptidomic analysis of melanoma tissue",
		Diseases:   `[{"@type":"CvParam","name":"Disease"}]`,
	}}

	records, err := p.Classify(context.Background(), records)
	is.NoErr(err)

	records, err = p.CleanDiseases(context.Background(), records)
	is.NoErr(err)
	is.Equal(records[0].Diseases, domain.Unknown)

	records, err = p.InferDiseases(context.Background(), records)
	is.NoErr(err)
	is.Equal(records[0].DiseaseType, "Melanoma")
	is.Equal(records[0].InferenceSource, domain.InferredFromTitle)
	is.True(records[0].DiseaseInferred)
}

func TestThatCrosscheckMarksVerifiedRecords(t *testing.T) {
	is, p, _ := testSetup(t)

	records := []domain.DatasetRecord{
		{DatasetID: "PXD012348", Repository: domain.RepositoryPRIDE},
		{DatasetID: "PXD555555", Repository: domain.RepositoryPRIDE},
	}

	records, err := p.Crosscheck(context.Background(), records)
	is.NoErr(err)

	is.True(records[0].InSysteMHC)
	is.True(records[0].SysteMHCVerified)
	is.True(!records[1].InSysteMHC)
}

func TestThatEnrichmentFillsGapsOnly(t *testing.T) {
	is, p, _ := testSetup(t)

	records := []domain.DatasetRecord{{
		DatasetID:  "PXD012348",
		Repository: domain.RepositoryPRIDE,
		InSysteMHC: true,
		HLAType:    domain.HLATypeNeedsReview,
		SampleType: domain.Unknown,
		Tissues:    "kidney",
	}}

	records, err := p.EnrichFromSysteMHC(context.Background(), records)
	is.NoErr(err)

	is.Equal(records[0].HLAType, domain.HLATypeClassI)
	is.Equal(records[0].SampleType, "Cell line (C1R)")
	is.Equal(records[0].HLAAlleles, "HLA-B*57:01")
	is.Equal(records[0].Tissues, "kidney") // already resolved, never overwritten
}

func TestThatManualTemplatesMergeBackAsVerified(t *testing.T) {
	is, p, dir := testSetup(t)
	path := filepath.Join(dir, "template.csv")

	records := []domain.DatasetRecord{{
		DatasetID:         "JPST000317",
		Repository:        domain.RepositoryJPOST,
		Title:             "HLA-B*51:01 peptides",
		InSysteMHC:        true,
		HLAType:           domain.HLATypeNeedsReview,
		NeedsManualReview: true,
	}}

	count, err := p.WriteManualTemplate(context.Background(), records, path)
	is.NoErr(err)
	is.Equal(count, 1)

	records, err = p.MergeManualTemplate(context.Background(), records, path)
	is.NoErr(err)

	is.Equal(records[0].HLAType, domain.HLATypeClassI)
	is.Equal(records[0].HLAAlleles, "HLA-B*51:01")
	is.True(records[0].SysteMHCVerified)
	is.True(!records[0].NeedsManualReview)
}

func TestThatRescoreRecomputesQualityInPlace(t *testing.T) {
	is, p, _ := testSetup(t)

	records := []domain.DatasetRecord{{
		DatasetID:  "PXD012348",
		Repository: domain.RepositoryPRIDE,
		Title:      "HLA-A*02:01 immunopeptidome of HeLa cells",
	}}

	p.Rescore(records)

	is.Equal(records[0].MetadataQuality, domain.QualityLow)
}

func TestThatEveryStageLeavesASnapshotBehind(t *testing.T) {
	is, p, dir := testSetup(t)

	records, err := p.Collect(context.Background(), []string{"PXD012348"})
	is.NoErr(err)

	_, err = p.Classify(context.Background(), records)
	is.NoErr(err)

	_, err = os.Stat(filepath.Join(dir, "snapshots", "all_metadata_raw.json"))
	is.NoErr(err)
	_, err = os.Stat(filepath.Join(dir, "snapshots", "all_metadata_classified.csv"))
	is.NoErr(err)

	loaded, stage, err := p.LoadLatest()
	is.NoErr(err)
	is.Equal(stage, snapshots.StageClassified)
	is.Equal(len(loaded), 1)
}

func TestThatDatasetListsAreRead(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "ids.txt")

	is.NoErr(os.WriteFile(path, []byte("PXD012348\n\n  MSV000084172  \nx\n"), 0o644))

	ids, err := ReadDatasetList(path)
	is.NoErr(err)
	is.Equal(ids, []string{"PXD012348", "MSV000084172"})
}

func testSetup(t *testing.T) (*is.I, *Pipeline, string) {
	t.Helper()
	dir := t.TempDir()

	p := New(Config{
		Store:         snapshots.NewStore(filepath.Join(dir, "snapshots")),
		ValidationDir: filepath.Join(dir, "validation"),
		Taxonomy:      taxonomy.Default(),
		PrideService:  &stubPrideSvc{},
		CrossRefSvc:   &stubCrossRefSvc{},
		FetchDelay:    time.Duration(0),
		Logger:        zerolog.Nop(),
	})

	return is.New(t), p, dir
}

type stubPrideSvc struct{}

func (s *stubPrideSvc) GetProject(ctx context.Context, datasetID string) (*domain.DatasetRecord, error) {
	if datasetID != "PXD012348" {
		return nil, pride.ErrNotFound
	}

	return &domain.DatasetRecord{
		DatasetID:  datasetID,
		Repository: domain.RepositoryPRIDE,
		Title:      "HLA-A*02:01 immunopeptidome of HeLa cells",
		Diseases:   "Melanoma",
	}, nil
}

func (s *stubPrideSvc) GetSampleSheet(ctx context.Context, datasetID string) ([]byte, error) {
	if datasetID != "PXD012348" {
		return nil, pride.ErrNotFound
	}

	return []byte("source name\tcharacteristics[organism]\nsample 1\tHomo sapiens\nsample 2\tHomo sapiens\n"), nil
}

type stubCrossRefSvc struct{}

func (s *stubCrossRefSvc) ListDatasetIDs(ctx context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{"PXD012348": {}, "JPST000317": {}}, nil
}

func (s *stubCrossRefSvc) GetSampleInfo(ctx context.Context, datasetID string) (*systemhc.SampleInfo, error) {
	return &systemhc.SampleInfo{
		Organisms: []string{"Homo sapiens"},
		CellTypes: []string{"C1R"},
		Alleles:   []string{"HLA-B*57:01"},
	}, nil
}

package snapshots

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Stage names a pipeline position. Snapshots are written after every stage
// under a fixed naming convention so that a pipeline can be resumed from
// the most-processed table available on disk.
type Stage string

const (
	StageRaw              Stage = "raw"
	StageEnriched         Stage = "enriched"
	StageClassified       Stage = "classified"
	StageCleaned          Stage = "cleaned"
	StageInferred         Stage = "inferred"
	StageCrosschecked     Stage = "crosschecked"
	StageSysteMHCEnriched Stage = "systemhc_enriched"
	StageManuallyEnriched Stage = "manually_enriched"
)

// LoadPriority is ordered most-processed first.
var LoadPriority = []Stage{
	StageManuallyEnriched,
	StageSysteMHCEnriched,
	StageCrosschecked,
	StageInferred,
	StageCleaned,
	StageClassified,
	StageEnriched,
	StageRaw,
}

var ErrNoSnapshot = errors.New("no snapshot found")

// Store persists full-table snapshots in a directory, in both a structured
// record form (JSON, authoritative for loading) and a tabular form (CSV,
// for spreadsheets and hand inspection).
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) jsonPath(stage Stage) string {
	return filepath.Join(s.dir, fmt.Sprintf("all_metadata_%s.json", stage))
}

func (s *Store) csvPath(stage Stage) string {
	return filepath.Join(s.dir, fmt.Sprintf("all_metadata_%s.csv", stage))
}

// Save writes both snapshot forms for the named stage. Duplicate dataset
// ids are rejected rather than silently merged.
func (s *Store) Save(stage Stage, records []domain.DatasetRecord) error {
	seen := map[string]struct{}{}
	for _, r := range records {
		if _, ok := seen[r.DatasetID]; ok {
			return fmt.Errorf("duplicate dataset id %s in %s snapshot", r.DatasetID, stage)
		}
		seen[r.DatasetID] = struct{}{}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	jsonBytes, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s snapshot: %w", stage, err)
	}

	if err = os.WriteFile(s.jsonPath(stage), jsonBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write %s snapshot: %w", stage, err)
	}

	return s.writeCSV(stage, records)
}

// Load reads the named stage's snapshot.
func (s *Store) Load(stage Stage) ([]domain.DatasetRecord, error) {
	jsonBytes, err := os.ReadFile(s.jsonPath(stage))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read %s snapshot: %w", stage, err)
	}

	records := []domain.DatasetRecord{}
	if err = json.Unmarshal(jsonBytes, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s snapshot: %w", stage, err)
	}

	return records, nil
}

// LoadLatest returns the most-processed snapshot available, following the
// fixed priority order.
func (s *Store) LoadLatest() ([]domain.DatasetRecord, Stage, error) {
	for _, stage := range LoadPriority {
		records, err := s.Load(stage)
		if err == nil {
			return records, stage, nil
		}
		if !errors.Is(err, ErrNoSnapshot) {
			return nil, stage, err
		}
	}

	return nil, "", ErrNoSnapshot
}

// csvColumns is the fixed tabular layout; dynamically named sample sheet
// fields are appended as extra columns sorted by name.
var csvColumns = []string{
	"dataset_id", "repository", "source_url",
	"title", "description", "sample_protocol", "keywords", "project_tags",
	"organisms", "diseases", "tissues", "cell_types",
	"instruments", "ptms", "quantification_methods",
	"submission_date", "publication_date", "pubmed_ids", "dois",
	"lab_head", "submitter",
	"hla_type", "hla_needs_review", "hla_alleles",
	"sample_type", "cell_line", "age", "sex",
	"disease_type", "disease_category", "is_healthy",
	"metadata_quality", "manual_review", "needs_manual_review",
	"disease_inferred", "inference_source", "in_systemhc", "systemhc_verified",
	"has_sdrf", "sample_count", "error",
}

func (s *Store) writeCSV(stage Stage, records []domain.DatasetRecord) error {
	extraKeys := map[string]struct{}{}
	for _, r := range records {
		for k := range r.Extra {
			extraKeys[k] = struct{}{}
		}
	}

	extras := maps.Keys(extraKeys)
	slices.Sort(extras)

	file, err := os.Create(s.csvPath(stage))
	if err != nil {
		return fmt.Errorf("failed to create %s csv snapshot: %w", stage, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := append(append([]string{}, csvColumns...), extras...)
	if err = writer.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, r := range records {
		row := csvRow(&r)
		for _, k := range extras {
			row = append(row, r.Extra[k])
		}
		if err = writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row for %s: %w", r.DatasetID, err)
		}
	}

	writer.Flush()

	return writer.Error()
}

func csvRow(r *domain.DatasetRecord) []string {
	return []string{
		r.DatasetID, string(r.Repository), r.SourceURL,
		r.Title, r.Description, r.SampleProtocol, r.Keywords, r.ProjectTags,
		r.Organisms, r.Diseases, r.Tissues, r.CellTypes,
		r.Instruments, r.PTMs, r.QuantificationMethods,
		r.SubmissionDate, r.PublicationDate, r.PubmedIDs, r.DOIs,
		r.LabHead, r.Submitter,
		string(r.HLAType), strconv.FormatBool(r.HLANeedsReview), r.HLAAlleles,
		r.SampleType, r.CellLine, r.Age, r.Sex,
		r.DiseaseType, string(r.DiseaseCategory), strconv.FormatBool(r.IsHealthy),
		string(r.MetadataQuality), strconv.FormatBool(r.ManualReview), strconv.FormatBool(r.NeedsManualReview),
		strconv.FormatBool(r.DiseaseInferred), string(r.InferenceSource), strconv.FormatBool(r.InSysteMHC), strconv.FormatBool(r.SysteMHCVerified),
		strconv.FormatBool(r.HasSDRF), strconv.Itoa(r.SampleCount), r.Error,
	}
}

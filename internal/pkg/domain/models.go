package domain

import (
	"fmt"
	"strings"
)

// Unknown is the absent-value sentinel used throughout the record table.
// Empty strings and Unknown are equivalent when deciding whether a field
// may be filled in by a later source.
const Unknown string = "Unknown"

type Repository string

const (
	RepositoryPRIDE        Repository = "PRIDE"
	RepositoryMassIVE      Repository = "MassIVE"
	RepositoryJPOST        Repository = "jPOST"
	RepositoryPeptideAtlas Repository = "PeptideAtlas"
)

// RepositoryFromDatasetID resolves the owning repository from the id prefix.
func RepositoryFromDatasetID(id string) (Repository, error) {
	switch {
	case strings.HasPrefix(id, "PXD"):
		return RepositoryPRIDE, nil
	case strings.HasPrefix(id, "MSV"):
		return RepositoryMassIVE, nil
	case strings.HasPrefix(id, "JPST"):
		return RepositoryJPOST, nil
	case strings.HasPrefix(id, "PASS"):
		return RepositoryPeptideAtlas, nil
	}

	return "", fmt.Errorf("unrecognized dataset id prefix in %q", id)
}

type HLAType string

const (
	HLATypeNone        HLAType = "Non-HLA"
	HLATypeClassI      HLAType = "HLA I"
	HLATypeClassII     HLAType = "HLA II"
	HLATypeClassIAndII HLAType = "HLA I/II"
	HLATypeNeedsReview HLAType = "HLA (needs review)"
)

type DiseaseCategory string

const (
	DiseaseCategoryCancer            DiseaseCategory = "Cancer"
	DiseaseCategoryNeurodegenerative DiseaseCategory = "Neurodegenerative"
	DiseaseCategoryInfectious        DiseaseCategory = "Infectious Disease"
	DiseaseCategoryAutoimmune        DiseaseCategory = "Autoimmune Disease"
	DiseaseCategoryMetabolicOther    DiseaseCategory = "Metabolic/Other Disease"
	DiseaseCategoryHealthy           DiseaseCategory = "Healthy"
	DiseaseCategoryMethodStudy       DiseaseCategory = "Method Study"
	DiseaseCategoryUnknown           DiseaseCategory = "Unknown"
	DiseaseCategoryOther             DiseaseCategory = "Other"
)

type QualityLevel string

const (
	QualityHigh   QualityLevel = "High"
	QualityMedium QualityLevel = "Medium"
	QualityLow    QualityLevel = "Low"
)

// InferenceSource names where a gap-filled value came from.
type InferenceSource string

const (
	InferredFromTitle          InferenceSource = "title"
	InferredFromDescription    InferenceSource = "description"
	InferredFromTissue         InferenceSource = "tissue"
	InferredFromSysteMHC       InferenceSource = "SysteMHC"
	InferredFromSysteMHCManual InferenceSource = "SysteMHC (manual)"
)

// DatasetRecord is one row in the curated table: everything we know about a
// single proteomics dataset, accumulated over the pipeline stages. List-like
// fields (organisms, diseases, tissues, ...) hold semicolon-joined strings.
type DatasetRecord struct {
	DatasetID  string     `json:"dataset_id"`
	Repository Repository `json:"repository"`
	SourceURL  string     `json:"source_url,omitempty"`

	Title          string `json:"title,omitempty"`
	Description    string `json:"description,omitempty"`
	SampleProtocol string `json:"sample_protocol,omitempty"`
	Keywords       string `json:"keywords,omitempty"`
	ProjectTags    string `json:"project_tags,omitempty"`

	Organisms string `json:"organisms,omitempty"`
	Diseases  string `json:"diseases,omitempty"`
	Tissues   string `json:"tissues,omitempty"`
	CellTypes string `json:"cell_types,omitempty"`

	Instruments           string `json:"instruments,omitempty"`
	PTMs                  string `json:"ptms,omitempty"`
	QuantificationMethods string `json:"quantification_methods,omitempty"`
	SubmissionDate        string `json:"submission_date,omitempty"`
	PublicationDate       string `json:"publication_date,omitempty"`
	PubmedIDs             string `json:"pubmed_ids,omitempty"`
	DOIs                  string `json:"dois,omitempty"`
	LabHead               string `json:"lab_head,omitempty"`
	Submitter             string `json:"submitter,omitempty"`

	HLAType        HLAType `json:"hla_type,omitempty"`
	HLANeedsReview bool    `json:"hla_needs_review,omitempty"`
	HLAAlleles     string  `json:"hla_alleles,omitempty"`

	SampleType string `json:"sample_type,omitempty"`
	CellLine   string `json:"cell_line,omitempty"`
	Age        string `json:"age,omitempty"`
	Sex        string `json:"sex,omitempty"`

	DiseaseType     string          `json:"disease_type,omitempty"`
	DiseaseCategory DiseaseCategory `json:"disease_category,omitempty"`
	IsHealthy       bool            `json:"is_healthy,omitempty"`

	MetadataQuality QualityLevel `json:"metadata_quality,omitempty"`

	// ManualReview is the external flag set when a dataset was queued for
	// hand curation at collection time. NeedsManualReview is derived from
	// it and from the classification outcome.
	ManualReview      bool `json:"manual_review,omitempty"`
	NeedsManualReview bool `json:"needs_manual_review,omitempty"`

	DiseaseInferred  bool            `json:"disease_inferred,omitempty"`
	InferenceSource  InferenceSource `json:"inference_source,omitempty"`
	InSysteMHC       bool            `json:"in_systemhc,omitempty"`
	SysteMHCVerified bool            `json:"systemhc_verified,omitempty"`

	HasSDRF     bool `json:"has_sdrf,omitempty"`
	SampleCount int  `json:"sample_count,omitempty"`

	// Error marks a permanently degraded record: identity was resolved but
	// metadata could not be fetched. Such rows flow through all later
	// stages unchanged.
	Error string `json:"error,omitempty"`

	// Extra holds the dynamically named columns contributed by auxiliary
	// sample sheets (sdrf_*, tech_* and factor_* fields).
	Extra map[string]string `json:"extra,omitempty"`
}

// IsUnresolved reports whether a field value still counts as absent and may
// be filled in by a later source.
func IsUnresolved(value string) bool {
	trimmed := strings.TrimSpace(value)
	return trimmed == "" || trimmed == Unknown
}

// SetExtra stores a dynamically named field, allocating the map on first use.
func (r *DatasetRecord) SetExtra(name, value string) {
	if r.Extra == nil {
		r.Extra = map[string]string{}
	}
	r.Extra[name] = value
}

func (r *DatasetRecord) GetExtra(name string) string {
	return r.Extra[name]
}

// JoinValues deduplicates while preserving first-seen order, drops empties,
// and joins with "; " — the canonical encoding for list-like fields.
func JoinValues(values []string) string {
	seen := map[string]struct{}{}
	result := make([]string, 0, len(values))

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}

	return strings.Join(result, "; ")
}

// SplitValues is the inverse of JoinValues for consumers that need the
// individual entries back.
func SplitValues(joined string) []string {
	if strings.TrimSpace(joined) == "" {
		return []string{}
	}

	parts := strings.Split(joined, ";")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}

	return values
}

package reconcile

import (
	"regexp"
	"strings"

	"github.com/hlatlas/pxmeta/internal/pkg/application/diseases"
	"github.com/hlatlas/pxmeta/internal/pkg/application/taxonomy"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
)

var (
	classIGenes  = regexp.MustCompile(`HLA-[ABC]`)
	classIIGenes = regexp.MustCompile(`HLA-D[RQPM]`)
)

// HLATypeFromAlleles derives class membership from a set of allele names,
// so that externally observed alleles can fix an unresolved HLA type. An
// empty result means the alleles named no recognizable class genes.
func HLATypeFromAlleles(alleles []string) domain.HLAType {
	hasClassI := false
	hasClassII := false

	for _, allele := range alleles {
		upper := strings.ToUpper(strings.TrimSpace(allele))
		if classIGenes.MatchString(upper) {
			hasClassI = true
		}
		if classIIGenes.MatchString(upper) {
			hasClassII = true
		}
	}

	switch {
	case hasClassI && hasClassII:
		return domain.HLATypeClassIAndII
	case hasClassI:
		return domain.HLATypeClassI
	case hasClassII:
		return domain.HLATypeClassII
	}

	return ""
}

// Incoming carries the candidate field values one source contributes.
type Incoming struct {
	HLAType     domain.HLAType
	HLAAlleles  string
	DiseaseType string
	SampleType  string
	Tissues     string
	CellTypes   string
}

type Reconciler struct {
	tax *taxonomy.Taxonomy
}

func New(tax *taxonomy.Taxonomy) *Reconciler {
	return &Reconciler{tax: tax}
}

// Merge applies the incoming values to the record under strict gap-fill
// semantics: a field is only written when its current value is one of the
// unresolved sentinels. Returns true when anything was filled in.
//
// Because no resolved value is ever replaced, merges from different
// sources commute whenever only one of them supplies a real answer.
func (rc *Reconciler) Merge(r *domain.DatasetRecord, in Incoming, source domain.InferenceSource) bool {
	changed := false

	if hlaUnresolved(r.HLAType) {
		candidate := in.HLAType
		if candidate == "" && in.HLAAlleles != "" {
			candidate = HLATypeFromAlleles(domain.SplitValues(in.HLAAlleles))
		}

		if candidate != "" && !hlaUnresolved(candidate) {
			r.HLAType = candidate
			r.HLANeedsReview = false
			changed = true
		}
	}

	if strings.TrimSpace(r.HLAAlleles) == "" && strings.TrimSpace(in.HLAAlleles) != "" {
		r.HLAAlleles = strings.TrimSpace(in.HLAAlleles)
		changed = true
	}

	if domain.IsUnresolved(r.DiseaseType) && !domain.IsUnresolved(in.DiseaseType) {
		r.DiseaseType = strings.TrimSpace(in.DiseaseType)
		r.DiseaseCategory = diseases.CategoryFor(rc.tax, r.DiseaseType)
		r.DiseaseInferred = true
		r.InferenceSource = source
		changed = true
	}

	if domain.IsUnresolved(r.SampleType) && !domain.IsUnresolved(in.SampleType) {
		r.SampleType = strings.TrimSpace(in.SampleType)
		changed = true
	}

	if domain.IsUnresolved(r.Tissues) && !domain.IsUnresolved(in.Tissues) {
		r.Tissues = strings.TrimSpace(in.Tissues)
		changed = true
	}

	if domain.IsUnresolved(r.CellTypes) && !domain.IsUnresolved(in.CellTypes) {
		r.CellTypes = strings.TrimSpace(in.CellTypes)
		changed = true
	}

	return changed
}

func hlaUnresolved(t domain.HLAType) bool {
	return t == "" || t == domain.HLATypeNeedsReview || string(t) == domain.Unknown
}

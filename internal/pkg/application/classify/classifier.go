package classify

import (
	"strings"
	"unicode/utf8"

	"github.com/hlatlas/pxmeta/internal/pkg/application/taxonomy"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
)

// Result holds the outcome of one classification pass over a record. The
// three axes (HLA, sample type, disease) are independent of each other.
type Result struct {
	HLAType         domain.HLAType
	HLANeedsReview  bool
	SampleType      string
	DiseaseType     string
	DiseaseCategory domain.DiseaseCategory
	IsHealthy       bool
}

type Classifier struct {
	tax *taxonomy.Taxonomy
}

func New(tax *taxonomy.Taxonomy) *Classifier {
	return &Classifier{tax: tax}
}

// Classify runs all three axes over the record without modifying it.
func (c *Classifier) Classify(r *domain.DatasetRecord) Result {
	result := Result{}
	result.HLAType, result.HLANeedsReview = c.classifyHLAType(r)
	result.SampleType = c.classifySampleType(r)
	result.DiseaseType, result.DiseaseCategory, result.IsHealthy = c.classifyDiseaseType(r)

	return result
}

// Apply classifies the record and stores the outcome on it, including the
// derived needs-manual-review flag.
func (c *Classifier) Apply(r *domain.DatasetRecord) {
	result := c.Classify(r)

	r.HLAType = result.HLAType
	r.HLANeedsReview = result.HLANeedsReview
	r.SampleType = result.SampleType
	r.DiseaseType = result.DiseaseType
	r.DiseaseCategory = result.DiseaseCategory
	r.IsHealthy = result.IsHealthy
	r.NeedsManualReview = DeriveNeedsManualReview(r)
}

// DeriveNeedsManualReview is true when any classification axis came out
// unresolved, or when the dataset was explicitly queued for hand curation.
func DeriveNeedsManualReview(r *domain.DatasetRecord) bool {
	return r.HLANeedsReview ||
		r.HLAType == domain.HLATypeNeedsReview ||
		r.SampleType == domain.Unknown ||
		r.DiseaseType == domain.Unknown ||
		r.ManualReview
}

// classifyHLAType gates on the general HLA vocabulary first: texts with no
// general match are Non-HLA no matter what else they contain. Class I and
// class II membership are independent tests, so both can fire.
func (c *Classifier) classifyHLAType(r *domain.DatasetRecord) (domain.HLAType, bool) {
	combined := strings.ToUpper(joinFields(
		r.Title, r.Description, r.Keywords, r.ProjectTags, r.SampleProtocol,
	))

	if !containsAnyFold(combined, c.tax.HLAGeneral) {
		return domain.HLATypeNone, false
	}

	hasClassI := containsAnyFold(combined, c.tax.HLAClassI)
	hasClassII := containsAnyFold(combined, c.tax.HLAClassII)

	switch {
	case hasClassI && hasClassII:
		return domain.HLATypeClassIAndII, false
	case hasClassI:
		return domain.HLATypeClassI, false
	case hasClassII:
		return domain.HLATypeClassII, false
	}

	return domain.HLATypeNeedsReview, true
}

// classifySampleType checks the most specific category first: a text that
// mentions both a cell line and a tissue is a cell line sample.
func (c *Classifier) classifySampleType(r *domain.DatasetRecord) string {
	original := joinFields(
		r.Tissues, r.CellTypes,
		r.GetExtra("sdrf_organism part"), r.GetExtra("sdrf_cell type"), r.GetExtra("sdrf_cell line"),
		r.Title, r.Description,
	)
	combined := strings.ToLower(original)

	if containsAnyFold(combined, c.tax.CellLine) {
		if match := c.tax.CellLineNames.FindStringSubmatch(original); match != nil {
			return "Cell line (" + match[1] + ")"
		}
		return "Cell line"
	}

	if containsAnyFold(combined, c.tax.Blood) {
		switch {
		case strings.Contains(combined, "pbmc"):
			return "Blood (PBMC)"
		case strings.Contains(combined, "plasma"):
			return "Blood (Plasma)"
		case strings.Contains(combined, "serum"):
			return "Blood (Serum)"
		}
		return "Blood"
	}

	if containsAnyFold(combined, c.tax.Tissue) {
		if match := c.tax.TissueNames.FindStringSubmatch(combined); match != nil {
			return "Tissue (" + capitalize(match[1]) + ")"
		}
		return "Tissue"
	}

	if tissues := strings.TrimSpace(r.Tissues); tissues != "" {
		return "Tissue (" + truncate(tissues, 50) + ")"
	}

	return domain.Unknown
}

// classifyDiseaseType yields the verbatim disease text plus a coarse
// category. A healthy/control match short-circuits everything else.
func (c *Classifier) classifyDiseaseType(r *domain.DatasetRecord) (string, domain.DiseaseCategory, bool) {
	combined := strings.ToLower(joinFields(
		r.Diseases, r.GetExtra("sdrf_disease"), r.Title, r.Description,
	))

	isHealthy := containsAnyFold(combined, c.tax.Healthy) ||
		strings.Contains(combined, "not available") ||
		strings.Contains(combined, "not applicable")

	if isHealthy {
		return "Healthy/Control", domain.DiseaseCategoryHealthy, true
	}

	diseaseType := strings.TrimSpace(r.Diseases)
	if diseaseType == "" {
		diseaseType = strings.TrimSpace(r.GetExtra("sdrf_disease"))
	}
	if diseaseType == "" {
		diseaseType = domain.Unknown
	}

	category := domain.DiseaseCategoryOther

	for _, rule := range c.tax.DiseaseCategories {
		if containsAnyFold(combined, rule.Keywords) {
			category = rule.Category
			break
		}
	}

	return diseaseType, category, false
}

func joinFields(fields ...string) string {
	nonEmpty := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}

	return strings.Join(nonEmpty, " ")
}

func containsAnyFold(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if len(kw) <= len(haystack) && strings.Contains(strings.ToLower(haystack), strings.ToLower(kw)) {
			return true
		}
	}

	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}

	return s[:max]
}

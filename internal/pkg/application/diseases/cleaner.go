package diseases

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hlatlas/pxmeta/internal/pkg/application/taxonomy"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
)

// Some repositories return the diseases field as a serialized list of
// CvParam objects instead of plain names.
var namePattern = regexp.MustCompile(`"name":\s*"([^"]+)"`)

type Cleaner struct {
	tax *taxonomy.Taxonomy
}

func NewCleaner(tax *taxonomy.Taxonomy) *Cleaner {
	return &Cleaner{tax: tax}
}

// Clean normalizes a raw disease field value. Cleaning is idempotent: a
// value that has already been cleaned passes through unchanged.
func (c *Cleaner) Clean(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Unknown
	}

	if raw == domain.Unknown || raw == "Healthy/Control" {
		return raw
	}

	if strings.Contains(raw, `'@type'`) || strings.Contains(raw, `"@type"`) {
		return c.extractDiseaseNames(raw)
	}

	return raw
}

func (c *Cleaner) extractDiseaseNames(raw string) string {
	// Single quotes come from python-style serializations of the same
	// structure, so normalize before matching.
	normalized := strings.ReplaceAll(raw, "'", `"`)

	names := []string{}
	seen := map[string]struct{}{}

	for _, match := range namePattern.FindAllStringSubmatch(normalized, -1) {
		name := strings.TrimSpace(match[1])

		if mapped, ok := c.tax.DiseaseSynonyms[name]; ok {
			name = mapped
		}

		// The generic "Disease" entry maps to Unknown and is dropped
		// rather than kept alongside real names.
		if name == "" || name == domain.Unknown {
			continue
		}

		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	if len(names) == 0 {
		return domain.Unknown
	}

	sort.Strings(names)

	return strings.Join(names, "; ")
}

// Apply cleans the record's disease fields and recomputes the disease
// category from the cleaned value.
func (c *Cleaner) Apply(r *domain.DatasetRecord) {
	r.Diseases = c.Clean(r.Diseases)
	r.DiseaseType = c.Clean(r.DiseaseType)
	r.DiseaseCategory = CategoryFor(c.tax, r.DiseaseType)
}

// CategoryFor maps a cleaned disease label to its coarse category, using
// the taxonomy's ordered category rules.
func CategoryFor(tax *taxonomy.Taxonomy, diseaseType string) domain.DiseaseCategory {
	disease := strings.ToLower(strings.TrimSpace(diseaseType))

	if disease == "" || disease == "unknown" {
		return domain.DiseaseCategoryUnknown
	}

	if strings.Contains(disease, "healthy") || strings.Contains(disease, "control") ||
		strings.Contains(disease, "disease free") {
		return domain.DiseaseCategoryHealthy
	}

	if strings.Contains(disease, "method development") {
		return domain.DiseaseCategoryMethodStudy
	}

	for _, rule := range tax.DiseaseCategories {
		for _, kw := range rule.Keywords {
			if strings.Contains(disease, strings.ToLower(kw)) {
				return rule.Category
			}
		}
	}

	return domain.DiseaseCategoryOther
}

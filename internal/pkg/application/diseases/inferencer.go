package diseases

import (
	"strings"

	"github.com/hlatlas/pxmeta/internal/pkg/application/taxonomy"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
)

const maxInferredDiseases = 3

// MethodStudyLabel is assigned when the text reads like a methods paper
// rather than a disease study.
const MethodStudyLabel = "Method development (no specific disease)"

type Inference struct {
	Disease string
	Source  domain.InferenceSource
}

// Inferencer fills in disease labels for records whose disease type is
// still unresolved after classification and cleaning, by pattern matching
// the title, then the description, then the tissues field.
type Inferencer struct {
	tax *taxonomy.Taxonomy
}

func NewInferencer(tax *taxonomy.Taxonomy) *Inferencer {
	return &Inferencer{tax: tax}
}

// Infer attempts all three inference stages in order and returns the first
// hit. The boolean is false when no stage produced anything.
func (i *Inferencer) Infer(r *domain.DatasetRecord) (Inference, bool) {
	if disease := i.inferFromText(r.Title); disease != "" {
		return Inference{disease, domain.InferredFromTitle}, true
	}

	if disease := i.inferFromText(r.Description); disease != "" {
		return Inference{disease, domain.InferredFromDescription}, true
	}

	if disease := i.inferFromTissue(r.Tissues); disease != "" {
		return Inference{disease, domain.InferredFromTissue}, true
	}

	return Inference{}, false
}

// Apply runs inference on the record when its disease type is unresolved,
// records provenance and recomputes the category. Returns true when the
// record was updated.
func (i *Inferencer) Apply(r *domain.DatasetRecord) bool {
	if !domain.IsUnresolved(r.DiseaseType) {
		return false
	}

	inference, ok := i.Infer(r)
	if !ok {
		return false
	}

	r.DiseaseType = inference.Disease
	r.DiseaseInferred = true
	r.InferenceSource = inference.Source
	r.DiseaseCategory = CategoryFor(i.tax, r.DiseaseType)

	return true
}

func (i *Inferencer) inferFromText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	for _, pattern := range i.tax.HealthyPatterns {
		if pattern.MatchString(text) {
			return "Healthy/Control"
		}
	}

	methodHits := 0
	for _, pattern := range i.tax.MethodPatterns {
		if pattern.MatchString(text) {
			methodHits++
		}
	}
	if methodHits >= 2 {
		return MethodStudyLabel
	}

	matched := []string{}
	for _, dp := range i.tax.DiseasePatterns {
		for _, pattern := range dp.Patterns {
			if pattern.MatchString(text) {
				matched = append(matched, dp.Disease)
				break
			}
		}
		if len(matched) == maxInferredDiseases {
			break
		}
	}

	return strings.Join(matched, "; ")
}

func (i *Inferencer) inferFromTissue(tissues string) string {
	tissues = strings.ToLower(strings.TrimSpace(tissues))
	if tissues == "" {
		return ""
	}

	for _, rule := range i.tax.TissueDiseases {
		if strings.Contains(tissues, rule.Keyword) {
			return rule.Disease
		}
	}

	return ""
}

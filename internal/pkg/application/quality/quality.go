package quality

import (
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
)

// Scoring weights: one point per populated key field, two for an available
// per-sample sheet and one for a publication reference.
const (
	sdrfBonus        = 2
	publicationBonus = 1

	highThreshold   = 8
	mediumThreshold = 5
)

// Score computes the completeness score for a record. It is a pure
// function of the record and can be recomputed at any stage.
func Score(r *domain.DatasetRecord) (int, domain.QualityLevel) {
	score := 0

	keyFields := []string{
		r.Title, r.Description, r.Diseases, r.Tissues,
		r.Organisms, r.Instruments, r.PublicationDate,
	}

	for _, field := range keyFields {
		if !domain.IsUnresolved(field) {
			score++
		}
	}

	if r.HasSDRF {
		score += sdrfBonus
	}

	if !domain.IsUnresolved(r.PubmedIDs) {
		score += publicationBonus
	}

	switch {
	case score >= highThreshold:
		return score, domain.QualityHigh
	case score >= mediumThreshold:
		return score, domain.QualityMedium
	}

	return score, domain.QualityLow
}

// Apply stores the quality level on the record.
func Apply(r *domain.DatasetRecord) {
	_, r.MetadataQuality = Score(r)
}

package quality

import (
	"testing"

	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/matryer/is"
)

func TestThatFullyPopulatedRecordsScoreHigh(t *testing.T) {
	is := is.New(t)

	record := &domain.DatasetRecord{
		DatasetID:       "PXD000001",
		Title:           "HLA-I immunopeptidome of melanoma",
		Description:     "Immunoaffinity purification followed by LC-MS/MS",
		Diseases:        "Melanoma",
		Tissues:         "skin",
		Organisms:       "Homo sapiens",
		Instruments:     "Orbitrap Fusion Lumos",
		PublicationDate: "2023-05-17",
		PubmedIDs:       "35120394",
		HasSDRF:         true,
	}

	score, level := Score(record)

	is.Equal(score, 10)
	is.Equal(level, domain.QualityHigh)
}

func TestThatSparseRecordsScoreLow(t *testing.T) {
	is := is.New(t)

	record := &domain.DatasetRecord{
		DatasetID: "MSV000090001",
		Title:     "Untitled deposition",
	}

	score, level := Score(record)

	is.Equal(score, 1)
	is.Equal(level, domain.QualityLow)
}

func TestThatUnknownSentinelsDoNotCount(t *testing.T) {
	is := is.New(t)

	record := &domain.DatasetRecord{
		DatasetID:   "PXD000002",
		Title:       "Some title",
		Diseases:    domain.Unknown,
		Tissues:     "liver",
		Organisms:   "Homo sapiens",
		Instruments: "Q Exactive",
		Description: "desc",
	}

	score, level := Score(record)

	is.Equal(score, 5)
	is.Equal(level, domain.QualityMedium)
}

func TestThatApplySetsTheQualityField(t *testing.T) {
	is := is.New(t)

	record := &domain.DatasetRecord{DatasetID: "PXD000003"}
	Apply(record)

	is.Equal(record.MetadataQuality, domain.QualityLow)
}

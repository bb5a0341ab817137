package diseases

import (
	"testing"

	"github.com/hlatlas/pxmeta/internal/pkg/application/taxonomy"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/matryer/is"
)

const serializedDiseaseField = `[{'@type':'CvParam','name':'Disease free'}, {'@type':'CvParam','name':'Disease'}]`

func TestThatSerializedDiseaseListsAreCleaned(t *testing.T) {
	is := is.New(t)
	cleaner := NewCleaner(taxonomy.Default())

	is.Equal(cleaner.Clean(serializedDiseaseField), "Healthy/Control")
}

func TestThatCleaningIsIdempotent(t *testing.T) {
	is := is.New(t)
	cleaner := NewCleaner(taxonomy.Default())

	inputs := []string{
		serializedDiseaseField,
		`[{"@type":"CvParam","name":"Melanoma"},{"@type":"CvParam","name":"Breast cancer"}]`,
		"Melanoma",
		"",
		"Unknown",
		"Healthy/Control",
	}

	for _, input := range inputs {
		once := cleaner.Clean(input)
		is.Equal(cleaner.Clean(once), once)
	}
}

func TestThatExtractedNamesAreDedupedAndSorted(t *testing.T) {
	is := is.New(t)
	cleaner := NewCleaner(taxonomy.Default())

	cleaned := cleaner.Clean(`[{"@type":"CvParam","name":"Melanoma"},{"@type":"CvParam","name":"Breast cancer"},{"@type":"CvParam","name":"Melanoma"}]`)

	is.Equal(cleaned, "Breast cancer; Melanoma")
}

func TestThatEmptyValuesCleanToUnknown(t *testing.T) {
	is := is.New(t)
	cleaner := NewCleaner(taxonomy.Default())

	is.Equal(cleaner.Clean(""), domain.Unknown)
	is.Equal(cleaner.Clean("   "), domain.Unknown)
}

func TestThatCategoriesAreRecomputedFromCleanedValues(t *testing.T) {
	is := is.New(t)
	tax := taxonomy.Default()

	is.Equal(CategoryFor(tax, "Melanoma"), domain.DiseaseCategoryCancer)
	is.Equal(CategoryFor(tax, "Rheumatoid arthritis"), domain.DiseaseCategoryAutoimmune)
	is.Equal(CategoryFor(tax, "Diabetes"), domain.DiseaseCategoryMetabolicOther)
	is.Equal(CategoryFor(tax, "Healthy/Control"), domain.DiseaseCategoryHealthy)
	is.Equal(CategoryFor(tax, MethodStudyLabel), domain.DiseaseCategoryMethodStudy)
	is.Equal(CategoryFor(tax, "Unknown"), domain.DiseaseCategoryUnknown)
	is.Equal(CategoryFor(tax, "Narcolepsy"), domain.DiseaseCategoryOther)
}

func TestThatMethodStudiesAreInferredFromKeywordDensity(t *testing.T) {
	is := is.New(t)
	inferencer := NewInferencer(taxonomy.Default())

	record := &domain.DatasetRecord{
		DatasetID:   "PXD000100",
		Title:       "Benchmark pipeline for peptide prediction algorithm validation",
		DiseaseType: domain.Unknown,
	}

	is.True(inferencer.Apply(record))
	is.Equal(record.DiseaseType, MethodStudyLabel)
	is.Equal(record.DiseaseCategory, domain.DiseaseCategoryMethodStudy)
	is.Equal(record.InferenceSource, domain.InferredFromTitle)
	is.True(record.DiseaseInferred)
}

func TestThatInferenceFallsBackToDescriptionThenTissue(t *testing.T) {
	is := is.New(t)
	inferencer := NewInferencer(taxonomy.Default())

	fromDescription := &domain.DatasetRecord{
		Title:       "Immunopeptidome atlas, batch 7",
		Description: "Samples collected from glioblastoma resections",
		DiseaseType: domain.Unknown,
	}
	is.True(inferencer.Apply(fromDescription))
	is.Equal(fromDescription.DiseaseType, "Glioblastoma")
	is.Equal(fromDescription.InferenceSource, domain.InferredFromDescription)

	fromTissue := &domain.DatasetRecord{
		Title:       "Immunopeptidome atlas, batch 8",
		Tissues:     "tumor; adjacent",
		DiseaseType: domain.Unknown,
	}
	is.True(inferencer.Apply(fromTissue))
	is.Equal(fromTissue.DiseaseType, "Cancer (tumor tissue)")
	is.Equal(fromTissue.InferenceSource, domain.InferredFromTissue)
}

func TestThatInferenceReturnsAtMostThreeDiseases(t *testing.T) {
	is := is.New(t)
	inferencer := NewInferencer(taxonomy.Default())

	record := &domain.DatasetRecord{
		Title:       "Melanoma, breast cancer, lung cancer and colorectal samples",
		DiseaseType: domain.Unknown,
	}

	is.True(inferencer.Apply(record))
	is.Equal(record.DiseaseType, "Melanoma; Breast cancer; Lung cancer")
}

func TestThatResolvedDiseasesAreNeverOverwritten(t *testing.T) {
	is := is.New(t)
	inferencer := NewInferencer(taxonomy.Default())

	record := &domain.DatasetRecord{
		Title:       "Melanoma immunopeptidome",
		DiseaseType: "Lupus",
	}

	is.Equal(inferencer.Apply(record), false)
	is.Equal(record.DiseaseType, "Lupus")
}

package charts

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/matryer/is"
)

func TestThatAllFourChartsAreRendered(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()

	err := WriteAll(dir, []domain.DatasetRecord{
		{DatasetID: "PXD000001", HLAType: domain.HLATypeClassI, DiseaseCategory: domain.DiseaseCategoryCancer, SampleType: "Cell line (HeLa)"},
		{DatasetID: "PXD000002", HLAType: domain.HLATypeClassI, DiseaseCategory: domain.DiseaseCategoryHealthy, SampleType: "Blood (PBMC)"},
		{DatasetID: "PXD000003", HLAType: domain.HLATypeNone},
	})
	is.NoErr(err)

	for _, name := range ChartFiles {
		file, err := os.Open(filepath.Join(dir, name))
		is.NoErr(err)

		img, err := png.Decode(file)
		file.Close()
		is.NoErr(err)

		is.Equal(img.Bounds().Dx(), chartWidth)
		is.Equal(img.Bounds().Dy(), chartHeight)
	}
}

func TestThatEmptyTablesStillRender(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()

	is.NoErr(WriteAll(dir, nil))

	_, err := os.Stat(filepath.Join(dir, "hla_distribution.png"))
	is.NoErr(err)
}

func TestThatCompletenessIsExpressedAsAPercentage(t *testing.T) {
	is := is.New(t)

	bars := completenessBars([]domain.DatasetRecord{
		{Title: "a", HLAType: domain.HLATypeClassI},
		{Title: "b"},
	})

	is.Equal(bars[0].label, "Title")
	is.Equal(bars[0].value, 100)
	is.Equal(bars[1].label, "HLA type")
	is.Equal(bars[1].value, 50)
}

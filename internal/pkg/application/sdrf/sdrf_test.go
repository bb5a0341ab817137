package sdrf

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/matryer/is"
)

const sampleSheet = "source name\tcharacteristics[organism]\tcharacteristics[organism part]\tcharacteristics[disease]\tcomment[instrument]\tfactor value[disease]\n" +
	"sample 1\tHomo sapiens\tliver\tmelanoma\tOrbitrap Fusion\tmelanoma\n" +
	"sample 2\tHomo sapiens\tliver\tmelanoma\tOrbitrap Fusion\tnormal\n" +
	"sample 3\tHomo sapiens\tspleen\tmelanoma\tOrbitrap Fusion\tmelanoma\n"

func TestThatNamespacedColumnsAreFlattened(t *testing.T) {
	is := is.New(t)

	summary, err := Parse(strings.NewReader(sampleSheet))
	is.NoErr(err)

	is.Equal(summary.SampleCount, 3)
	is.Equal(summary.Fields["sdrf_organism"], "Homo sapiens")
	is.Equal(summary.Fields["sdrf_organism part"], "liver; spleen")
	is.Equal(summary.Fields["sdrf_disease"], "melanoma")
	is.Equal(summary.Fields["tech_instrument"], "Orbitrap Fusion")
	is.Equal(summary.Fields["factor_disease"], "melanoma; normal")
}

func TestThatManyDistinctValuesCollapseToACount(t *testing.T) {
	is := is.New(t)

	var sheet strings.Builder
	sheet.WriteString("characteristics[cell type]\n")
	for i := 0; i < 12; i++ {
		sheet.WriteString(fmt.Sprintf("cell type %d\n", i))
	}

	summary, err := Parse(strings.NewReader(sheet.String()))
	is.NoErr(err)

	is.Equal(summary.Fields["sdrf_cell type"], "12 unique values")
}

func TestThatEmptyInputIsAParseFailure(t *testing.T) {
	is := is.New(t)

	_, err := Parse(strings.NewReader(""))
	is.True(err != nil)
}

func TestThatMergeFillsGapsOnly(t *testing.T) {
	is := is.New(t)

	summary, err := Parse(strings.NewReader(sampleSheet))
	is.NoErr(err)

	record := &domain.DatasetRecord{
		DatasetID: "PXD000001",
		Tissues:   "kidney",
	}

	MergeIntoRecord(record, summary)

	is.True(record.HasSDRF)
	is.Equal(record.SampleCount, 3)
	is.Equal(record.Tissues, "kidney")
	is.Equal(record.Diseases, "melanoma")
	is.Equal(record.GetExtra("tech_instrument"), "Orbitrap Fusion")
}

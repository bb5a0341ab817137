package report

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/xuri/excelize/v2"
)

const (
	sheetDatasets  = "All Datasets"
	sheetDiseases  = "Disease Summary"
	sheetHLA       = "HLA Summary"
	sheetSamples   = "Sample Summary"
	sheetTechnical = "Technical Summary"
	sheetQuality   = "Quality Summary"
)

const headerFillColor = "366092"

const maxColumnWidth = 60.0

type tableColumn struct {
	header string
	value  func(r *domain.DatasetRecord) any
}

var datasetColumns = []tableColumn{
	{"Dataset ID", func(r *domain.DatasetRecord) any { return r.DatasetID }},
	{"Repository", func(r *domain.DatasetRecord) any { return string(r.Repository) }},
	{"Title", func(r *domain.DatasetRecord) any { return r.Title }},
	{"HLA Type", func(r *domain.DatasetRecord) any { return string(r.HLAType) }},
	{"HLA Alleles", func(r *domain.DatasetRecord) any { return r.HLAAlleles }},
	{"Sample Type", func(r *domain.DatasetRecord) any { return r.SampleType }},
	{"Disease Type", func(r *domain.DatasetRecord) any { return r.DiseaseType }},
	{"Disease Category", func(r *domain.DatasetRecord) any { return string(r.DiseaseCategory) }},
	{"Organisms", func(r *domain.DatasetRecord) any { return r.Organisms }},
	{"Tissues", func(r *domain.DatasetRecord) any { return r.Tissues }},
	{"Cell Types", func(r *domain.DatasetRecord) any { return r.CellTypes }},
	{"Instruments", func(r *domain.DatasetRecord) any { return r.Instruments }},
	{"PTMs", func(r *domain.DatasetRecord) any { return r.PTMs }},
	{"Quantification", func(r *domain.DatasetRecord) any { return r.QuantificationMethods }},
	{"Submitted", func(r *domain.DatasetRecord) any { return r.SubmissionDate }},
	{"Published", func(r *domain.DatasetRecord) any { return r.PublicationDate }},
	{"PubMed IDs", func(r *domain.DatasetRecord) any { return r.PubmedIDs }},
	{"DOIs", func(r *domain.DatasetRecord) any { return r.DOIs }},
	{"Lab Head", func(r *domain.DatasetRecord) any { return r.LabHead }},
	{"Quality", func(r *domain.DatasetRecord) any { return string(r.MetadataQuality) }},
	{"Needs Review", func(r *domain.DatasetRecord) any { return r.NeedsManualReview }},
	{"In SysteMHC", func(r *domain.DatasetRecord) any { return r.InSysteMHC }},
	{"Has SDRF", func(r *domain.DatasetRecord) any { return r.HasSDRF }},
	{"Samples", func(r *domain.DatasetRecord) any { return r.SampleCount }},
	{"Source URL", func(r *domain.DatasetRecord) any { return r.SourceURL }},
	{"Error", func(r *domain.DatasetRecord) any { return r.Error }},
}

// WriteWorkbook writes the six-sheet curation workbook.
func WriteWorkbook(path string, records []domain.DatasetRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{headerFillColor}, Pattern: 1},
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err = f.SetSheetName("Sheet1", sheetDatasets); err != nil {
		return err
	}

	if err = writeDatasetSheet(f, headerStyle, records); err != nil {
		return err
	}

	summarySheets := []struct {
		name  string
		write func(f *excelize.File, headerStyle int, records []domain.DatasetRecord) error
	}{
		{sheetDiseases, writeDiseaseSheet},
		{sheetHLA, writeHLASheet},
		{sheetSamples, writeSampleSheet},
		{sheetTechnical, writeTechnicalSheet},
		{sheetQuality, writeQualitySheet},
	}

	for _, sheet := range summarySheets {
		if _, err = f.NewSheet(sheet.name); err != nil {
			return err
		}
		if err = sheet.write(f, headerStyle, records); err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", sheet.name, err)
		}
	}

	if err = f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	return nil
}

func writeDatasetSheet(f *excelize.File, headerStyle int, records []domain.DatasetRecord) error {
	widths := make([]float64, len(datasetColumns))

	for i, col := range datasetColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetDatasets, cell, col.header); err != nil {
			return err
		}
		widths[i] = float64(len(col.header)) + 2
	}

	lastHeaderCell, _ := excelize.CoordinatesToCellName(len(datasetColumns), 1)
	if err := f.SetCellStyle(sheetDatasets, "A1", lastHeaderCell, headerStyle); err != nil {
		return err
	}

	for row := range records {
		for i, col := range datasetColumns {
			value := col.value(&records[row])

			cell, _ := excelize.CoordinatesToCellName(i+1, row+2)
			if err := f.SetCellValue(sheetDatasets, cell, value); err != nil {
				return err
			}

			if w := float64(len(fmt.Sprint(value))) + 2; w > widths[i] {
				widths[i] = w
			}
		}
	}

	for i := range datasetColumns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		if widths[i] > maxColumnWidth {
			widths[i] = maxColumnWidth
		}
		if err := f.SetColWidth(sheetDatasets, name, name, widths[i]); err != nil {
			return err
		}
	}

	return f.SetPanes(sheetDatasets, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	})
}

func writeDiseaseSheet(f *excelize.File, headerStyle int, records []domain.DatasetRecord) error {
	categories := countBy(records, func(r *domain.DatasetRecord) string { return string(r.DiseaseCategory) })
	diseases := countBy(records, func(r *domain.DatasetRecord) string { return r.DiseaseType })

	row, err := writeCountTable(f, sheetDiseases, headerStyle, 1, "Disease Category", categories)
	if err != nil {
		return err
	}

	_, err = writeCountTable(f, sheetDiseases, headerStyle, row+2, "Disease Type", diseases)

	return err
}

func writeHLASheet(f *excelize.File, headerStyle int, records []domain.DatasetRecord) error {
	types := countBy(records, func(r *domain.DatasetRecord) string { return string(r.HLAType) })

	row, err := writeCountTable(f, sheetHLA, headerStyle, 1, "HLA Type", types)
	if err != nil {
		return err
	}

	needsReview := []string{}
	for i := range records {
		if records[i].HLAType == domain.HLATypeNeedsReview || records[i].HLANeedsReview {
			needsReview = append(needsReview, records[i].DatasetID)
		}
	}

	return writeIDList(f, sheetHLA, headerStyle, row+2, "Datasets Needing HLA Review", needsReview)
}

func writeSampleSheet(f *excelize.File, headerStyle int, records []domain.DatasetRecord) error {
	types := countBy(records, func(r *domain.DatasetRecord) string { return r.SampleType })

	row, err := writeCountTable(f, sheetSamples, headerStyle, 1, "Sample Type", types)
	if err != nil {
		return err
	}

	groups := countBy(records, func(r *domain.DatasetRecord) string {
		switch {
		case strings.HasPrefix(r.SampleType, "Cell line"):
			return "Cell line"
		case strings.HasPrefix(r.SampleType, "Blood"):
			return "Blood"
		case strings.HasPrefix(r.SampleType, "Tissue"):
			return "Tissue"
		}
		return domain.Unknown
	})

	_, err = writeCountTable(f, sheetSamples, headerStyle, row+2, "Sample Group", groups)

	return err
}

func writeTechnicalSheet(f *excelize.File, headerStyle int, records []domain.DatasetRecord) error {
	instruments := map[string]int{}
	for i := range records {
		for _, instrument := range domain.SplitValues(records[i].Instruments) {
			instruments[instrument]++
		}
	}

	row, err := writeCountTable(f, sheetTechnical, headerStyle, 1, "Instrument", sortCounts(instruments))
	if err != nil {
		return err
	}

	ptms := map[string]int{}
	for i := range records {
		for _, ptm := range domain.SplitValues(records[i].PTMs) {
			ptms[ptm]++
		}
	}

	row, err = writeCountTable(f, sheetTechnical, headerStyle, row+2, "PTM", sortCounts(ptms))
	if err != nil {
		return err
	}

	organisms := map[string]int{}
	for i := range records {
		for _, organism := range domain.SplitValues(records[i].Organisms) {
			organisms[organism]++
		}
	}

	row, err = writeCountTable(f, sheetTechnical, headerStyle, row+2, "Organism", sortCounts(organisms))
	if err != nil {
		return err
	}

	withSDRF := 0
	withPublication := 0
	for i := range records {
		if records[i].HasSDRF {
			withSDRF++
		}
		if records[i].PubmedIDs != "" {
			withPublication++
		}
	}

	coverage := []labelCount{
		{"With sample sheet (SDRF)", withSDRF},
		{"With publication", withPublication},
		{"Total datasets", len(records)},
	}

	return writeRows(f, sheetTechnical, headerStyle, row+2, "Coverage", coverage)
}

func writeQualitySheet(f *excelize.File, headerStyle int, records []domain.DatasetRecord) error {
	levels := countBy(records, func(r *domain.DatasetRecord) string { return string(r.MetadataQuality) })

	row, err := writeCountTable(f, sheetQuality, headerStyle, 1, "Metadata Quality", levels)
	if err != nil {
		return err
	}

	manualReview := []string{}
	for i := range records {
		if records[i].NeedsManualReview {
			manualReview = append(manualReview, records[i].DatasetID)
		}
	}

	return writeIDList(f, sheetQuality, headerStyle, row+2, "Datasets Needing Manual Review", manualReview)
}

type labelCount struct {
	label string
	count int
}

func countBy(records []domain.DatasetRecord, key func(r *domain.DatasetRecord) string) []labelCount {
	counts := map[string]int{}
	for i := range records {
		k := strings.TrimSpace(key(&records[i]))
		if k == "" {
			k = domain.Unknown
		}
		counts[k]++
	}

	return sortCounts(counts)
}

func sortCounts(counts map[string]int) []labelCount {
	result := make([]labelCount, 0, len(counts))
	for label, count := range counts {
		result = append(result, labelCount{label, count})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].count != result[j].count {
			return result[i].count > result[j].count
		}
		return result[i].label < result[j].label
	})

	return result
}

func writeCountTable(f *excelize.File, sheet string, headerStyle, startRow int, title string, counts []labelCount) (int, error) {
	if err := writeRows(f, sheet, headerStyle, startRow, title, counts); err != nil {
		return startRow, err
	}

	return startRow + 1 + len(counts), nil
}

// writeRows writes a two-column title/count block.
func writeRows(f *excelize.File, sheet string, headerStyle, startRow int, title string, counts []labelCount) error {
	titleCell, _ := excelize.CoordinatesToCellName(1, startRow)
	countCell, _ := excelize.CoordinatesToCellName(2, startRow)

	if err := f.SetCellValue(sheet, titleCell, title); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, countCell, "Count"); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, titleCell, countCell, headerStyle); err != nil {
		return err
	}

	for i, lc := range counts {
		labelCell, _ := excelize.CoordinatesToCellName(1, startRow+1+i)
		valueCell, _ := excelize.CoordinatesToCellName(2, startRow+1+i)

		if err := f.SetCellValue(sheet, labelCell, lc.label); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, valueCell, lc.count); err != nil {
			return err
		}
	}

	return f.SetColWidth(sheet, "A", "A", 40)
}

func writeIDList(f *excelize.File, sheet string, headerStyle, startRow int, title string, ids []string) error {
	titleCell, _ := excelize.CoordinatesToCellName(1, startRow)

	if err := f.SetCellValue(sheet, titleCell, title); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, titleCell, titleCell, headerStyle); err != nil {
		return err
	}

	for i, id := range ids {
		cell, _ := excelize.CoordinatesToCellName(1, startRow+1+i)
		if err := f.SetCellValue(sheet, cell, id); err != nil {
			return err
		}
	}

	return nil
}

// WriteQualityReport writes the plain-text companion to the workbook.
func WriteQualityReport(path string, records []domain.DatasetRecord) error {
	var report strings.Builder

	levels := map[domain.QualityLevel]int{}
	needsReview := []string{}
	degraded := []string{}

	for i := range records {
		levels[records[i].MetadataQuality]++
		if records[i].NeedsManualReview {
			needsReview = append(needsReview, records[i].DatasetID)
		}
		if records[i].Error != "" {
			degraded = append(degraded, records[i].DatasetID)
		}
	}

	fmt.Fprintf(&report, "Metadata quality report\n")
	fmt.Fprintf(&report, "=======================\n\n")
	fmt.Fprintf(&report, "Total datasets: %d\n\n", len(records))

	for _, level := range []domain.QualityLevel{domain.QualityHigh, domain.QualityMedium, domain.QualityLow} {
		fmt.Fprintf(&report, "%-8s %s\n", string(level)+":", formatShare(levels[level], len(records)))
	}

	fmt.Fprintf(&report, "\nNeeds manual review (%d):\n", len(needsReview))
	for _, id := range needsReview {
		fmt.Fprintf(&report, "  %s\n", id)
	}

	if len(degraded) > 0 {
		fmt.Fprintf(&report, "\nFailed to fetch (%d):\n", len(degraded))
		for _, id := range degraded {
			fmt.Fprintf(&report, "  %s\n", id)
		}
	}

	return os.WriteFile(path, []byte(report.String()), 0o644)
}

func formatShare(count, total int) string {
	if total == 0 {
		return "0"
	}

	return strconv.Itoa(count) + " (" + strconv.FormatFloat(float64(count)*100/float64(total), 'f', 1, 64) + "%)"
}

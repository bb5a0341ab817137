package systemhc

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/hlatlas/pxmeta/internal/pkg/domain"
)

// TemplateRow is one line of the hand-editable curation template. The
// *_found columns start out blank (or pre-filled by the title-based
// filler) and are completed by a curator before being merged back.
type TemplateRow struct {
	DatasetID       string
	Title           string
	HLAAllelesFound string
	TissuesFound    string
	CellTypesFound  string
	DiseasesFound   string
	Notes           string
}

var templateHeader = []string{
	"dataset_id", "title",
	"hla_alleles_found", "tissues_found", "cell_types_found", "diseases_found",
	"notes",
}

// WriteTemplate writes the curation template for the given records.
func WriteTemplate(path string, rows []TemplateRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create template file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err = writer.Write(templateHeader); err != nil {
		return fmt.Errorf("failed to write template header: %w", err)
	}

	for _, row := range rows {
		err = writer.Write([]string{
			row.DatasetID, row.Title,
			row.HLAAllelesFound, row.TissuesFound, row.CellTypesFound, row.DiseasesFound,
			row.Notes,
		})
		if err != nil {
			return fmt.Errorf("failed to write template row for %s: %w", row.DatasetID, err)
		}
	}

	writer.Flush()

	return writer.Error()
}

// ReadTemplate reads a (possibly hand-edited) curation template back.
func ReadTemplate(path string) ([]TemplateRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("template file %s is empty", path)
	}

	columns := map[string]int{}
	for i, name := range records[0] {
		columns[strings.TrimSpace(name)] = i
	}

	cell := func(row []string, name string) string {
		if i, ok := columns[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	rows := make([]TemplateRow, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, TemplateRow{
			DatasetID:       cell(record, "dataset_id"),
			Title:           cell(record, "title"),
			HLAAllelesFound: cell(record, "hla_alleles_found"),
			TissuesFound:    cell(record, "tissues_found"),
			CellTypesFound:  cell(record, "cell_types_found"),
			DiseasesFound:   cell(record, "diseases_found"),
			Notes:           cell(record, "notes"),
		})
	}

	return rows, nil
}

// Title-based allele mentions come in looser forms than the canonical
// HLA-X*NN:NN naming, so extraction and normalization are separate steps.
var (
	titleClassIPatterns = []*regexp.Regexp{
		regexp.MustCompile(`HLA-[ABC]\*\d+:\d+`),
		regexp.MustCompile(`\b[ABC]\*\d+:\d+`),
		regexp.MustCompile(`HLA-[ABC]\d{4}\b`),
	}
	titleClassIIPatterns = []*regexp.Regexp{
		regexp.MustCompile(`HLA-DR[AB]\d+\*\d+:\d+`),
		regexp.MustCompile(`HLA-DQ[AB]?\d*\*\d+:\d+`),
		regexp.MustCompile(`HLA-DP[AB]\d*\*\d+:\d+`),
		regexp.MustCompile(`DRB\d+\*\d+:\d+`),
		regexp.MustCompile(`DQA?\d*\*\d+:\d+`),
	}

	compactAllele = regexp.MustCompile(`^HLA-([A-Z]+)(\d{4})$`)
)

// Filler pre-fills template rows from dataset titles and a small rule base
// of domain knowledge, leaving the curator to verify rather than research.
type Filler struct {
	diseaseRules  []fillRule
	tissueRules   []fillRule
	cellLineRules []fillRule
}

type fillRule struct {
	label    string
	keywords []string
}

func NewFiller() *Filler {
	return &Filler{
		diseaseRules: []fillRule{
			{"Behçet's disease", []string{"behçet", "behcet"}},
			{"Ankylosing spondylitis", []string{"ankylosing spondylitis"}},
			{"Melanoma", []string{"melanoma"}},
			{"Lymphoma", []string{"lymphoma", "b-cell lymph", "b cell lymph"}},
			{"Influenza", []string{"influenza"}},
			{"Tuberculosis", []string{"bcg", "bacillus calmette", "tuberculosis"}},
			{"Cancer", []string{"tumor", "cancer", "carcinoma", "malignancy"}},
			{"Multiple sclerosis", []string{"multiple sclerosis"}},
			{"Diabetes", []string{"diabetes", "nod mouse", "insulin"}},
		},
		tissueRules: []fillRule{
			{"BAL", []string{"bal fluid", "bronchoalveolar"}},
			{"Blood", []string{"blood", "plasma", "serum", "pbmc"}},
			{"Spleen", []string{"spleen"}},
			{"Liver", []string{"liver", "hepat"}},
			{"Tumor", []string{"tumor"}},
			{"Pancreas", []string{"insulin granule", "pancrea"}},
		},
		cellLineRules: []fillRule{
			{"C1R", []string{"c1r"}},
			{"EBV-transformed B cells", []string{"ebv", "b-lymphoblast"}},
			{"THP-1", []string{"thp-1"}},
			{"Jurkat", []string{"jurkat"}},
			{"LCL", []string{"lymphoblastoid", "lcl"}},
		},
	}
}

// Fill produces a pre-filled template row for one record.
func (f *Filler) Fill(r *domain.DatasetRecord) TemplateRow {
	text := strings.ToLower(r.Title + " " + r.Description)

	alleles := ExtractAllelesFromTitle(r.Title)

	disease := f.matchRules(f.diseaseRules, text)
	if strings.Contains(text, "healthy") || strings.Contains(text, "benign") || strings.Contains(text, "normal") {
		disease = "Healthy"
	}
	if disease == "" {
		disease = domain.Unknown
	}

	return TemplateRow{
		DatasetID:       r.DatasetID,
		Title:           r.Title,
		HLAAllelesFound: domain.JoinValues(alleles),
		TissuesFound:    f.matchRules(f.tissueRules, text),
		CellTypesFound:  f.matchRules(f.cellLineRules, text),
		DiseasesFound:   disease,
		Notes:           "Auto-filled from title, needs verification",
	}
}

func (f *Filler) matchRules(rules []fillRule, text string) string {
	matched := []string{}

	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				matched = append(matched, rule.label)
				break
			}
		}
	}

	return strings.Join(matched, ", ")
}

// ExtractAllelesFromTitle pulls allele mentions out of a dataset title and
// normalizes them to the HLA-X*NN:NN form.
func ExtractAllelesFromTitle(title string) []string {
	upper := strings.ToUpper(title)

	alleles := []string{}
	for _, pattern := range append(append([]*regexp.Regexp{}, titleClassIPatterns...), titleClassIIPatterns...) {
		for _, match := range pattern.FindAllString(upper, -1) {
			appendDistinct(&alleles, NormalizeAllele(match))
		}
	}

	return alleles
}

// NormalizeAllele canonicalizes an allele name: uppercase, an HLA- prefix,
// and a *NN:NN suffix for compact four-digit forms like HLA-A0201.
func NormalizeAllele(allele string) string {
	allele = strings.ToUpper(strings.TrimSpace(allele))

	if !strings.HasPrefix(allele, "HLA-") {
		allele = "HLA-" + allele
	}

	if !strings.Contains(allele, "*") {
		if match := compactAllele.FindStringSubmatch(allele); match != nil {
			digits := match[2]
			allele = fmt.Sprintf("HLA-%s*%s:%s", match[1], digits[:2], digits[2:])
		}
	}

	return allele
}

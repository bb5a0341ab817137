package taxonomy

import (
	"fmt"
	"os"
	"regexp"

	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"gopkg.in/yaml.v2"
)

// Taxonomy is the authoritative set of keyword and pattern tables consumed
// by the classifier and the disease inferencer. All keyword matching is
// case-insensitive substring membership; the pattern tables hold compiled
// case-insensitive regular expressions.
type Taxonomy struct {
	HLAGeneral []string
	HLAClassI  []string
	HLAClassII []string

	CellLine []string
	Blood    []string
	Tissue   []string

	Healthy []string

	// DiseaseCategories is ordered: the first rule whose any keyword
	// matches wins.
	DiseaseCategories []CategoryRule

	// DiseaseSynonyms normalizes extracted disease names, e.g.
	// "Disease free" becomes "Healthy/Control".
	DiseaseSynonyms map[string]string

	// DiseasePatterns is the priority-ordered inference table: the first
	// pattern of a disease that matches free text attributes that disease.
	DiseasePatterns []DiseasePattern

	HealthyPatterns []*regexp.Regexp
	MethodPatterns  []*regexp.Regexp

	// TissueDiseases maps tissue-field substrings directly to a disease
	// label, as a last-resort inference.
	TissueDiseases []TissueDiseaseRule

	CellLineNames *regexp.Regexp
	TissueNames   *regexp.Regexp
}

type CategoryRule struct {
	Category domain.DiseaseCategory
	Keywords []string
}

type DiseasePattern struct {
	Disease  string
	Patterns []*regexp.Regexp
}

type TissueDiseaseRule struct {
	Keyword string
	Disease string
}

func mustCompileAll(exprs ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		compiled = append(compiled, regexp.MustCompile("(?i)"+e))
	}
	return compiled
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	return &Taxonomy{
		HLAGeneral: []string{
			"HLA", "MHC", "immunopeptid", "immuno-peptid",
			"antigen presentation", "antigen presenting",
			"peptide presentation", "immunoaffinity",
			"immunoprecipitation",
		},
		HLAClassI: []string{
			"HLA I", "HLA-I", "HLA class I", "HLA-class I",
			"MHC I", "MHC-I", "MHC class I", "MHC-class I",
			"HLA-A", "HLA-B", "HLA-C",
			"class I MHC", "class I HLA",
		},
		HLAClassII: []string{
			"HLA II", "HLA-II", "HLA class II", "HLA-class II",
			"MHC II", "MHC-II", "MHC class II", "MHC-class II",
			"HLA-DR", "HLA-DQ", "HLA-DP",
			"class II MHC", "class II HLA",
		},

		CellLine: []string{
			"cell line", "cell-line", "cellline",
			"HeLa", "HEK293", "Jurkat", "K562",
			"cultured cell", "culture", "in vitro",
		},
		Blood: []string{
			"blood", "serum", "plasma", "PBMC", "peripheral blood",
			"leukocyte", "lymphocyte", "monocyte",
		},
		Tissue: []string{
			"tissue", "biopsy", "tumor", "tumour", "cancer",
			"carcinoma", "adenocarcinoma", "melanoma",
			"liver", "kidney", "lung", "brain", "heart",
			"breast", "ovary", "prostate", "colon",
			"muscle", "skin", "bone", "spleen",
		},

		Healthy: []string{
			"healthy", "normal", "control", "disease-free",
			"non-disease", "wild type", "wild-type",
		},

		DiseaseCategories: []CategoryRule{
			{
				Category: domain.DiseaseCategoryCancer,
				Keywords: []string{
					"cancer", "carcinoma", "melanoma", "leukemia", "lymphoma",
					"sarcoma", "glioblastoma", "neuroblastoma", "adenocarcinoma",
					"neoplasm", "tumor", "tumour", "malignant", "oncology",
				},
			},
			{
				Category: domain.DiseaseCategoryNeurodegenerative,
				Keywords: []string{
					"alzheimer", "parkinson", "dementia", "neurodegenerative",
					"als", "multiple sclerosis", "huntington",
				},
			},
			{
				Category: domain.DiseaseCategoryInfectious,
				Keywords: []string{
					"covid", "sars", "influenza", "hiv", "virus", "bacterial",
					"infection", "pathogen", "tuberculosis", "hepatitis",
					"theileriasis",
				},
			},
			{
				Category: domain.DiseaseCategoryAutoimmune,
				Keywords: []string{
					"rheumatoid", "lupus", "arthritis", "spondylitis",
					"ankylos", "autoimmune",
				},
			},
			{
				Category: domain.DiseaseCategoryMetabolicOther,
				Keywords: []string{
					"diabetes", "fibrosis", "chorioretinopathy", "lyme",
				},
			},
		},

		DiseaseSynonyms: map[string]string{
			"Disease free": "Healthy/Control",
			"Disease":      domain.Unknown,
		},

		DiseasePatterns: []DiseasePattern{
			{"Melanoma", mustCompileAll(`\bmelanoma\b`, `\bmelanomat\w*\b`)},
			{"Breast cancer", mustCompileAll(`\bbreast cancer\b`, `\bbreast carcinoma\b`, `\bbreast tumor\b`)},
			{"Lung cancer", mustCompileAll(`\blung cancer\b`, `\blung carcinoma\b`, `\blung tumor\b`, `\bNSCLC\b`, `\bSCLC\b`)},
			{"Colon cancer", mustCompileAll(`\bcolon cancer\b`, `\bcolorectal\b`, `\bcolon carcinoma\b`)},
			{"Ovarian cancer", mustCompileAll(`\bovarian cancer\b`, `\bovarian carcinoma\b`, `\bovary cancer\b`)},
			{"Prostate cancer", mustCompileAll(`\bprostate cancer\b`, `\bprostate carcinoma\b`)},
			{"Pancreatic cancer", mustCompileAll(`\bpancreatic cancer\b`, `\bpancreatic carcinoma\b`)},
			{"Glioblastoma", mustCompileAll(`\bglioblastoma\b`, `\bGBM\b`, `\bbrain tumor\b`)},
			{"Leukemia", mustCompileAll(`\bleukemia\b`, `\bleukaemia\b`, `\bAML\b`, `\bCML\b`, `\bCLL\b`)},
			{"Lymphoma", mustCompileAll(`\blymphoma\b`)},
			{"Hepatocellular carcinoma", mustCompileAll(`\bhepatocellular carcinoma\b`, `\bHCC\b`, `\bliver cancer\b`)},
			{"COVID-19", mustCompileAll(`\bCOVID\b`, `\bSARS-CoV-2\b`, `\bcoronavirus\b`)},
			{"Influenza", mustCompileAll(`\binfluenza\b`, `\bflu\b`)},
			{"Tuberculosis", mustCompileAll(`\btuberculosis\b`, `\bTB\b`, `\bMycobacterium tuberculosis\b`)},
			{"HIV", mustCompileAll(`\bHIV\b`, `\bhuman immunodeficiency virus\b`, `\bAIDS\b`)},
			{"Hepatitis", mustCompileAll(`\bhepatitis\b`, `\bHBV\b`, `\bHCV\b`)},
			{"Alzheimer disease", mustCompileAll(`\bAlzheimer\b`)},
			{"Parkinson disease", mustCompileAll(`\bParkinson\b`)},
			{"Multiple sclerosis", mustCompileAll(`\bmultiple sclerosis\b`)},
			{"Rheumatoid arthritis", mustCompileAll(`\brheumatoid arthritis\b`)},
			{"Lupus", mustCompileAll(`\blupus\b`, `\bSLE\b`)},
			{"Diabetes", mustCompileAll(`\bdiabetes\b`, `\bT1D\b`, `\bT2D\b`)},
			{"Behçet's disease", mustCompileAll(`\bBehçet\b`, `\bBehcet\b`)},
			{"Ankylosing spondylitis", mustCompileAll(`\bankylosing spondylitis\b`)},
			{"Sarcoidosis", mustCompileAll(`\bsarcoidosis\b`)},
		},

		HealthyPatterns: mustCompileAll(
			`\bhealthy\b`, `\bnormal\b`, `\bcontrol\b`, `\bhealthy control\b`,
			`\bhealthy donor\b`, `\bnon-disease\b`, `\bdisease-free\b`,
		),

		MethodPatterns: mustCompileAll(
			`\bmethodology\b`, `\bmethod development\b`, `\bpipeline\b`,
			`\balgorithm\b`, `\bcomputational\b`, `\bin silico\b`,
			`\bprediction\b`, `\bbenchmark\b`, `\bvalidation\b`,
		),

		TissueDiseases: []TissueDiseaseRule{
			{"tumor", "Cancer (tumor tissue)"},
			{"cancer", "Cancer"},
			{"carcinoma", "Carcinoma"},
			{"melanoma", "Melanoma"},
			{"leukemia", "Leukemia"},
		},

		CellLineNames: regexp.MustCompile(`(?i)(HeLa|HEK293|Jurkat|K562|MCF-?7|A549|U2OS)`),
		TissueNames: regexp.MustCompile(
			`(?i)(liver|kidney|lung|brain|heart|breast|ovary|prostate|colon|tumor|tumour|cancer|melanoma)`,
		),
	}
}

type extensionFile struct {
	HLA struct {
		General []string `yaml:"general"`
		ClassI  []string `yaml:"class_i"`
		ClassII []string `yaml:"class_ii"`
	} `yaml:"hla"`
	Sample struct {
		CellLine []string `yaml:"cell_line"`
		Blood    []string `yaml:"blood"`
		Tissue   []string `yaml:"tissue"`
	} `yaml:"sample"`
	Disease struct {
		Healthy    []string          `yaml:"healthy"`
		Synonyms   map[string]string `yaml:"synonyms"`
		Categories []struct {
			Label    string   `yaml:"label"`
			Keywords []string `yaml:"keywords"`
		} `yaml:"categories"`
	} `yaml:"disease"`
	Inference struct {
		Diseases []struct {
			Name     string   `yaml:"name"`
			Patterns []string `yaml:"patterns"`
		} `yaml:"diseases"`
	} `yaml:"inference"`
}

// Load returns the built-in taxonomy extended with the keywords and
// patterns from the named YAML file. An empty path returns the built-in
// taxonomy unchanged.
func Load(path string) (*Taxonomy, error) {
	tax := Default()

	if path == "" {
		return tax, nil
	}

	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy extension file: %w", err)
	}

	ext := &extensionFile{}
	if err = yaml.Unmarshal(yamlFile, ext); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy extension file: %w", err)
	}

	tax.HLAGeneral = append(tax.HLAGeneral, ext.HLA.General...)
	tax.HLAClassI = append(tax.HLAClassI, ext.HLA.ClassI...)
	tax.HLAClassII = append(tax.HLAClassII, ext.HLA.ClassII...)

	tax.CellLine = append(tax.CellLine, ext.Sample.CellLine...)
	tax.Blood = append(tax.Blood, ext.Sample.Blood...)
	tax.Tissue = append(tax.Tissue, ext.Sample.Tissue...)

	tax.Healthy = append(tax.Healthy, ext.Disease.Healthy...)

	for name, replacement := range ext.Disease.Synonyms {
		tax.DiseaseSynonyms[name] = replacement
	}

	for _, cat := range ext.Disease.Categories {
		if err = tax.extendCategory(cat.Label, cat.Keywords); err != nil {
			return nil, err
		}
	}

	for _, d := range ext.Inference.Diseases {
		patterns := make([]*regexp.Regexp, 0, len(d.Patterns))
		for _, p := range d.Patterns {
			compiled, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("bad inference pattern %q for %s: %w", p, d.Name, err)
			}
			patterns = append(patterns, compiled)
		}
		tax.DiseasePatterns = append(tax.DiseasePatterns, DiseasePattern{d.Name, patterns})
	}

	return tax, nil
}

func (t *Taxonomy) extendCategory(label string, keywords []string) error {
	for i := range t.DiseaseCategories {
		if string(t.DiseaseCategories[i].Category) == label {
			t.DiseaseCategories[i].Keywords = append(t.DiseaseCategories[i].Keywords, keywords...)
			return nil
		}
	}

	return fmt.Errorf("unknown disease category %q in taxonomy extension", label)
}

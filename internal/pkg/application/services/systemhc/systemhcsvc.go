package systemhc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/o11y"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/o11y/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("pxmeta/svcs/systemhc")

const DefaultBaseURL string = "https://systemhc.sjtu.edu.cn"

// Dataset id formats embedded in the catalog page.
var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`PXD\d{6}`),
	regexp.MustCompile(`MSV\d{9}`),
	regexp.MustCompile(`JPST\d{6}`),
	regexp.MustCompile(`PASS\d{5}`),
}

// Allele name formats, from most to least specific: class I with optional
// synonym fields, two-letter class II genes, and numbered class II chains.
var allelePatterns = []*regexp.Regexp{
	regexp.MustCompile(`HLA-[A-Z]\*\d+:\d+(?::\d+)?(?::\d+)?`),
	regexp.MustCompile(`HLA-[A-Z][A-Z]\*\d+:\d+`),
	regexp.MustCompile(`HLA-[A-Z][A-Z][A-Z]\d+\*\d+:\d+`),
}

// SampleInfo is the per-dataset detail extracted from a dataset page.
type SampleInfo struct {
	Organisms []string
	Tissues   []string
	CellTypes []string
	Alleles   []string
}

type CrossReferenceService interface {
	ListDatasetIDs(ctx context.Context) (map[string]struct{}, error)
	GetSampleInfo(ctx context.Context, datasetID string) (*SampleInfo, error)
}

func NewCrossReferenceService(ctx context.Context, logger zerolog.Logger, baseURL string) CrossReferenceService {
	return &crossRefSvc{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		log:     logger,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type crossRefSvc struct {
	baseURL string

	log        zerolog.Logger
	httpClient http.Client
}

// ListDatasetIDs scrapes the dataset catalog page for embedded repository
// identifiers.
func (svc *crossRefSvc) ListDatasetIDs(ctx context.Context) (map[string]struct{}, error) {
	var err error
	ctx, span := tracer.Start(ctx, "list-systemhc-datasets")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(span, svc.log, ctx)

	body, err := svc.getPage(ctx, svc.baseURL+"/datasets")
	if err != nil {
		return nil, err
	}

	ids := map[string]struct{}{}
	for _, pattern := range idPatterns {
		for _, id := range pattern.FindAllString(string(body), -1) {
			ids[id] = struct{}{}
		}
	}

	return ids, nil
}

// GetSampleInfo scrapes one dataset's detail page for its sample table and
// any allele names mentioned elsewhere on the page. Pages whose tables are
// rendered client-side come back empty, which callers treat as "nothing to
// enrich from".
func (svc *crossRefSvc) GetSampleInfo(ctx context.Context, datasetID string) (*SampleInfo, error) {
	var err error
	ctx, span := tracer.Start(ctx, "get-systemhc-sample-info")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(span, svc.log, ctx)

	body, err := svc.getPage(ctx, fmt.Sprintf("%s/dataset/?dataset_id=%s", svc.baseURL, datasetID))
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset page: %s", err.Error())
	}

	info := &SampleInfo{}

	// Sample tables have a fixed column order: sample id, replicates,
	// organism, tissue type, cell type, MHC allele.
	doc.Find("table tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 6 {
			return
		}

		appendDistinct(&info.Organisms, strings.TrimSpace(cells.Eq(2).Text()))
		appendDistinct(&info.Tissues, strings.TrimSpace(cells.Eq(3).Text()))
		appendDistinct(&info.CellTypes, strings.TrimSpace(cells.Eq(4).Text()))

		for _, allele := range ExtractAlleles(cells.Eq(5).Text()) {
			appendDistinct(&info.Alleles, allele)
		}
	})

	// Alleles are also mentioned in page prose outside the table.
	for _, allele := range ExtractAlleles(string(body)) {
		appendDistinct(&info.Alleles, allele)
	}

	return info, nil
}

func (svc *crossRefSvc) getPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %s", err.Error())
	}

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %s", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %s", err.Error())
	}

	if resp.StatusCode >= http.StatusBadRequest {
		reqbytes, _ := httputil.DumpRequest(req, false)
		respbytes, _ := httputil.DumpResponse(resp, false)

		svc.log.Error().Str("request", string(reqbytes)).Str("response", string(respbytes)).Msg("request failed")
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return body, nil
}

// ExtractAlleles returns every distinct allele name found in the text, in
// order of appearance.
func ExtractAlleles(text string) []string {
	upper := strings.ToUpper(text)

	alleles := []string{}
	for _, pattern := range allelePatterns {
		for _, match := range pattern.FindAllString(upper, -1) {
			appendDistinct(&alleles, match)
		}
	}

	return alleles
}

// MapSampleInfo turns scraped sample details into reconcilable field
// values, preferring the more specific cell type over tissue for the
// sample type label.
func MapSampleInfo(info *SampleInfo) (sampleType, tissues, cellTypes, alleles string) {
	const maxAlleles = 15
	const maxNamed = 2

	if len(info.CellTypes) > 0 {
		sampleType = "Cell line (" + strings.Join(firstN(info.CellTypes, maxNamed), ", ") + ")"
	} else if len(info.Tissues) > 0 {
		sampleType = "Tissue (" + strings.Join(firstN(info.Tissues, maxNamed), ", ") + ")"
	}

	tissues = domain.JoinValues(info.Tissues)
	cellTypes = domain.JoinValues(info.CellTypes)
	alleles = domain.JoinValues(firstN(info.Alleles, maxAlleles))

	return
}

func appendDistinct(values *[]string, value string) {
	if value == "" {
		return
	}

	for _, existing := range *values {
		if existing == value {
			return
		}
	}

	*values = append(*values, value)
}

func firstN(values []string, n int) []string {
	if len(values) <= n {
		return values
	}

	return values[:n]
}

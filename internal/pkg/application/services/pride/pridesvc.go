package pride

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/o11y"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/o11y/logging"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/o11y/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("pxmeta/svcs/pride")

const (
	DefaultAPIURL     string = "https://www.ebi.ac.uk/pride/ws/archive/v2"
	DefaultArchiveURL string = "https://www.ebi.ac.uk/pride/data/archive"

	maxFetchAttempts uint64 = 3
)

// ErrNotFound means the repository confirmed the dataset does not exist.
// It short-circuits retries: a definitive 404 is never transient.
var ErrNotFound = errors.New("dataset not found")

type ProjectService interface {
	GetProject(ctx context.Context, datasetID string) (*domain.DatasetRecord, error)
	GetSampleSheet(ctx context.Context, datasetID string) ([]byte, error)
}

func NewProjectService(ctx context.Context, logger zerolog.Logger, apiURL, archiveURL string) ProjectService {
	return &projectSvc{
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		archiveURL: strings.TrimSuffix(archiveURL, "/"),
		log:        logger,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type projectSvc struct {
	apiURL     string
	archiveURL string

	log        zerolog.Logger
	httpClient http.Client
}

// GetProject fetches and flattens the project metadata for one dataset.
// Transient failures are retried with exponential backoff up to the
// attempt ceiling; a 404 response returns ErrNotFound immediately.
func (svc *projectSvc) GetProject(ctx context.Context, datasetID string) (*domain.DatasetRecord, error) {
	var err error
	ctx, span := tracer.Start(ctx, "get-pride-project")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	_, ctx, logger := o11y.AddTraceIDToLoggerAndStoreInContext(span, svc.log, ctx)

	var record *domain.DatasetRecord

	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxFetchAttempts-1), ctx)
	err = backoff.Retry(func() error {
		dto, fetchErr := svc.fetchProject(ctx, datasetID)
		if fetchErr != nil {
			if errors.Is(fetchErr, ErrNotFound) {
				return backoff.Permanent(fetchErr)
			}
			logger.Warn().Err(fetchErr).Msgf("fetch attempt for %s failed", datasetID)
			return fetchErr
		}

		record = dto.mapToDatasetRecord(datasetID)
		return nil
	}, retryPolicy)

	if err != nil {
		return nil, err
	}

	return record, nil
}

func (svc *projectSvc) fetchProject(ctx context.Context, datasetID string) (*projectDTO, error) {
	logger := logging.GetFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.apiURL+"/projects/"+datasetID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %s", err.Error())
	}

	req.Header.Add("Accept", "application/json")

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %s", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %s", err.Error())
	}

	if resp.StatusCode >= http.StatusBadRequest {
		reqbytes, _ := httputil.DumpRequest(req, false)
		respbytes, _ := httputil.DumpResponse(resp, false)

		logger.Error().Str("request", string(reqbytes)).Str("response", string(respbytes)).Msg("request failed")
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	dto := &projectDTO{}
	if err = json.Unmarshal(respBody, dto); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %s", err.Error())
	}

	return dto, nil
}

// GetSampleSheet downloads the dataset's sdrf.tsv from the archive, or
// returns ErrNotFound when none has been deposited.
func (svc *projectSvc) GetSampleSheet(ctx context.Context, datasetID string) ([]byte, error) {
	var err error
	ctx, span := tracer.Start(ctx, "get-pride-sample-sheet")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	sheetURL := fmt.Sprintf("%s/%s/%s.sdrf.tsv", svc.archiveURL, datasetID, datasetID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sheetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %s", err.Error())
	}

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %s", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		err = ErrNotFound
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("archive returned status code %d", resp.StatusCode)
		return nil, err
	}

	return io.ReadAll(resp.Body)
}

type projectDTO struct {
	Accession             string            `json:"accession"`
	Title                 string            `json:"title"`
	ProjectDescription    string            `json:"projectDescription"`
	SampleProtocol        string            `json:"sampleProcessingProtocol"`
	Keywords              []string          `json:"keywords"`
	ProjectTags           []string          `json:"projectTags"`
	Organisms             []namedParam      `json:"organisms"`
	Diseases              []json.RawMessage `json:"diseases"`
	Tissues               []json.RawMessage `json:"tissues"`
	CellTypes             []json.RawMessage `json:"cellTypes"`
	Instruments           []namedParam      `json:"instruments"`
	PTMList               []namedParam      `json:"ptmList"`
	QuantificationMethods []namedParam      `json:"quantificationMethods"`
	SubmissionDate        string            `json:"submissionDate"`
	PublicationDate       string            `json:"publicationDate"`
	References            []referenceDTO    `json:"references"`
	Submitters            []personDTO       `json:"submitters"`
	LabPIs                []personDTO       `json:"labPIs"`
}

type namedParam struct {
	Name string `json:"name"`
}

type referenceDTO struct {
	PubmedID json.Number `json:"pubmedId"`
	DOI      string      `json:"doi"`
}

type personDTO struct {
	Name string `json:"name"`
}

func (dto *projectDTO) mapToDatasetRecord(datasetID string) *domain.DatasetRecord {
	pubmedIDs := []string{}
	dois := []string{}
	for _, ref := range dto.References {
		if ref.PubmedID.String() != "" && ref.PubmedID.String() != "0" {
			pubmedIDs = append(pubmedIDs, ref.PubmedID.String())
		}
		if ref.DOI != "" {
			dois = append(dois, ref.DOI)
		}
	}

	return &domain.DatasetRecord{
		DatasetID:  datasetID,
		Repository: domain.RepositoryPRIDE,
		SourceURL:  "https://www.ebi.ac.uk/pride/archive/projects/" + datasetID,

		Title:          dto.Title,
		Description:    dto.ProjectDescription,
		SampleProtocol: dto.SampleProtocol,
		Keywords:       domain.JoinValues(dto.Keywords),
		ProjectTags:    domain.JoinValues(dto.ProjectTags),

		Organisms: joinNames(dto.Organisms),
		Diseases:  joinRawValues(dto.Diseases),
		Tissues:   joinRawValues(dto.Tissues),
		CellTypes: joinRawValues(dto.CellTypes),

		Instruments:           joinNames(dto.Instruments),
		PTMs:                  joinNames(dto.PTMList),
		QuantificationMethods: joinNames(dto.QuantificationMethods),
		SubmissionDate:        dto.SubmissionDate,
		PublicationDate:       dto.PublicationDate,
		PubmedIDs:             domain.JoinValues(pubmedIDs),
		DOIs:                  domain.JoinValues(dois),
		LabHead:               joinPersonNames(dto.LabPIs),
		Submitter:             joinPersonNames(dto.Submitters),
	}
}

func joinNames(params []namedParam) string {
	names := make([]string, 0, len(params))
	for _, p := range params {
		names = append(names, p.Name)
	}

	return domain.JoinValues(names)
}

func joinPersonNames(people []personDTO) string {
	names := make([]string, 0, len(people))
	for _, p := range people {
		names = append(names, p.Name)
	}

	return domain.JoinValues(names)
}

// joinRawValues keeps structured entries (CvParam objects and the like) in
// their serialized form. The disease cleaner stage extracts names from
// them later; plain string entries are used as-is.
func joinRawValues(values []json.RawMessage) string {
	flattened := make([]string, 0, len(values))

	for _, raw := range values {
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil {
			flattened = append(flattened, asString)
			continue
		}

		flattened = append(flattened, string(raw))
	}

	return domain.JoinValues(flattened)
}

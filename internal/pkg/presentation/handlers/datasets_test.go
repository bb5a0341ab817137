package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestThatDatasetsAreServedAsJSONByDefault(t *testing.T) {
	is := is.New(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/datasets", nil)

	NewRetrieveDatasetsHandler(zerolog.Nop(), &mockProvider{}).ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusOK)
	is.Equal(w.Header().Get("Content-Type"), "application/json")

	var response struct {
		Data []domain.DatasetRecord `json:"data"`
	}
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &response))
	is.Equal(len(response.Data), 3)
}

func TestThatDatasetsAreServedAsCSVWhenRequested(t *testing.T) {
	is := is.New(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/datasets", nil)
	req.Header.Add("Accept", "text/csv")

	NewRetrieveDatasetsHandler(zerolog.Nop(), &mockProvider{}).ServeHTTP(w, req)

	is.Equal(w.Header().Get("Content-Type"), "text/csv")

	body, _ := io.ReadAll(w.Body)
	lines := strings.Split(string(body), "\r\n")
	is.Equal(lines[0], "dataset_id;repository;title;hla_type;hla_alleles;sample_type;disease_type;disease_category;metadata_quality;needs_manual_review")
	is.Equal(len(lines), 4)
	is.True(strings.HasPrefix(lines[1], "PXD012348;PRIDE;"))
}

func TestThatDatasetsCanBeFiltered(t *testing.T) {
	is := is.New(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/datasets?hla_type=HLA+I&disease_category=Cancer", nil)

	NewRetrieveDatasetsHandler(zerolog.Nop(), &mockProvider{}).ServeHTTP(w, req)

	var response struct {
		Data []domain.DatasetRecord `json:"data"`
	}
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &response))
	is.Equal(len(response.Data), 1)
	is.Equal(response.Data[0].DatasetID, "PXD012348")
}

func TestThatASingleDatasetCanBeRetrieved(t *testing.T) {
	is := is.New(t)

	router := chi.NewRouter()
	router.Get("/api/datasets/{id}", NewRetrieveDatasetByIDHandler(zerolog.Nop(), &mockProvider{}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/datasets/PXD012348", nil)
	router.ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusOK)

	record := domain.DatasetRecord{}
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &record))
	is.Equal(record.Title, "HLA-A*02:01 immunopeptidome of HeLa cells")
}

func TestThatUnknownDatasetsReturnNotFound(t *testing.T) {
	is := is.New(t)

	router := chi.NewRouter()
	router.Get("/api/datasets/{id}", NewRetrieveDatasetByIDHandler(zerolog.Nop(), &mockProvider{}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/datasets/PXD000000", nil)
	router.ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusNotFound)
}

func TestThatTheSummaryCountsTheTable(t *testing.T) {
	is := is.New(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/summary", nil)

	NewRetrieveSummaryHandler(zerolog.Nop(), &mockProvider{}).ServeHTTP(w, req)

	summary := summaryOut{}
	is.NoErr(json.Unmarshal(w.Body.Bytes(), &summary))

	is.Equal(summary.Total, 3)
	is.Equal(summary.ByHLAType["HLA I"], 2)
	is.Equal(summary.ByDiseaseCategory["Cancer"], 1)
	is.Equal(summary.BySampleGroup["Cell line"], 1)
	is.Equal(summary.NeedsManualReview, 1)
}

type mockProvider struct{}

func (m *mockProvider) Datasets(ctx context.Context) ([]domain.DatasetRecord, error) {
	return []domain.DatasetRecord{
		{
			DatasetID:       "PXD012348",
			Repository:      domain.RepositoryPRIDE,
			Title:           "HLA-A*02:01 immunopeptidome of HeLa cells",
			HLAType:         domain.HLATypeClassI,
			SampleType:      "Cell line (HeLa)",
			DiseaseType:     "Melanoma",
			DiseaseCategory: domain.DiseaseCategoryCancer,
			MetadataQuality: domain.QualityHigh,
		},
		{
			DatasetID:       "PXD000002",
			Repository:      domain.RepositoryPRIDE,
			Title:           "Healthy donor PBMC immunopeptidomics",
			HLAType:         domain.HLATypeClassI,
			SampleType:      "Blood (PBMC)",
			DiseaseType:     "Healthy/Control",
			DiseaseCategory: domain.DiseaseCategoryHealthy,
			MetadataQuality: domain.QualityMedium,
		},
		{
			DatasetID:         "MSV000084172",
			Repository:        domain.RepositoryMassIVE,
			HLAType:           domain.HLATypeNeedsReview,
			NeedsManualReview: true,
			MetadataQuality:   domain.QualityLow,
		},
	}, nil
}

func (m *mockProvider) DatasetByID(ctx context.Context, datasetID string) (*domain.DatasetRecord, error) {
	records, _ := m.Datasets(ctx)
	for i := range records {
		if records[i].DatasetID == datasetID {
			return &records[i], nil
		}
	}

	return nil, ErrNoSuchDataset
}

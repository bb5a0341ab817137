package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/o11y"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/o11y/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("pxmeta/api/datasets")

var ErrNoSuchDataset error = fmt.Errorf("dataset not found")

// DatasetProvider hands the API the current state of the curated table.
type DatasetProvider interface {
	Datasets(ctx context.Context) ([]domain.DatasetRecord, error)
	DatasetByID(ctx context.Context, datasetID string) (*domain.DatasetRecord, error)
}

func NewRetrieveDatasetsHandler(logger zerolog.Logger, provider DatasetProvider) http.HandlerFunc {

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		acceptedContentType := r.Header.Get("Accept")
		if strings.HasPrefix(acceptedContentType, "text/csv") {
			serveDatasetsAsTextCSV(logger, provider, w, r)
		} else {
			serveDatasetsAsJSON(logger, provider, w, r)
		}
	})
}

func serveDatasetsAsJSON(logger zerolog.Logger, provider DatasetProvider, w http.ResponseWriter, r *http.Request) {
	var err error
	ctx, span := tracer.Start(r.Context(), "retrieve-datasets")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	_, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logger, ctx)

	records, err := provider.Datasets(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load datasets")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	records = filterRecords(records, r.URL.Query())

	body, err := json.MarshalIndent(struct {
		Data []domain.DatasetRecord `json:"data"`
	}{Data: records}, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal datasets")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.Write(body)
}

func serveDatasetsAsTextCSV(logger zerolog.Logger, provider DatasetProvider, w http.ResponseWriter, r *http.Request) {
	var err error
	ctx, span := tracer.Start(r.Context(), "retrieve-datasets-csv")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	_, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logger, ctx)

	records, err := provider.Datasets(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load datasets")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	records = filterRecords(records, r.URL.Query())

	datasetsCsv := bytes.NewBufferString("dataset_id;repository;title;hla_type;hla_alleles;sample_type;disease_type;disease_category;metadata_quality;needs_manual_review")

	for i := range records {
		rec := &records[i]
		row := fmt.Sprintf("\r\n%s;%s;\"%s\";%s;%s;\"%s\";\"%s\";%s;%s;%t",
			rec.DatasetID, rec.Repository,
			strings.ReplaceAll(rec.Title, "\"", "\"\""),
			rec.HLAType, rec.HLAAlleles,
			strings.ReplaceAll(rec.SampleType, "\"", "\"\""),
			strings.ReplaceAll(rec.DiseaseType, "\"", "\"\""),
			rec.DiseaseCategory, rec.MetadataQuality, rec.NeedsManualReview,
		)

		datasetsCsv.Write([]byte(row))
	}

	w.Header().Add("Content-Type", "text/csv")
	w.Write(datasetsCsv.Bytes())
}

func filterRecords(records []domain.DatasetRecord, query url.Values) []domain.DatasetRecord {
	filters := []struct {
		param string
		match func(r *domain.DatasetRecord, value string) bool
	}{
		{"hla_type", func(r *domain.DatasetRecord, v string) bool {
			return strings.EqualFold(string(r.HLAType), v)
		}},
		{"disease_category", func(r *domain.DatasetRecord, v string) bool {
			return strings.EqualFold(string(r.DiseaseCategory), v)
		}},
		{"repository", func(r *domain.DatasetRecord, v string) bool {
			return strings.EqualFold(string(r.Repository), v)
		}},
		{"quality", func(r *domain.DatasetRecord, v string) bool {
			return strings.EqualFold(string(r.MetadataQuality), v)
		}},
		{"needs_review", func(r *domain.DatasetRecord, v string) bool {
			return fmt.Sprintf("%t", r.NeedsManualReview) == strings.ToLower(v)
		}},
	}

	for _, f := range filters {
		value := query.Get(f.param)
		if value == "" {
			continue
		}

		kept := make([]domain.DatasetRecord, 0, len(records))
		for i := range records {
			if f.match(&records[i], value) {
				kept = append(kept, records[i])
			}
		}
		records = kept
	}

	return records
}

func NewRetrieveDatasetByIDHandler(logger zerolog.Logger, provider DatasetProvider) http.HandlerFunc {

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "retrieve-dataset-by-id")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		_, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logger, ctx)

		datasetID, _ := url.QueryUnescape(chi.URLParam(r, "id"))
		if datasetID == "" {
			err = fmt.Errorf("no dataset id supplied in query")
			log.Error().Err(err).Msg("bad request")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		record, err := provider.DatasetByID(ctx, datasetID)
		if err != nil {
			if err == ErrNoSuchDataset {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			err = fmt.Errorf("failed to request dataset by ID: (%w)", err)
			log.Error().Err(err).Msg("internal error")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		body, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal dataset")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.Write(body)
	})
}

type summaryOut struct {
	Total             int            `json:"total"`
	ByHLAType         map[string]int `json:"by_hla_type"`
	ByDiseaseCategory map[string]int `json:"by_disease_category"`
	BySampleGroup     map[string]int `json:"by_sample_group"`
	ByQuality         map[string]int `json:"by_quality"`
	NeedsManualReview int            `json:"needs_manual_review"`
	InSysteMHC        int            `json:"in_systemhc"`
}

func NewRetrieveSummaryHandler(logger zerolog.Logger, provider DatasetProvider) http.HandlerFunc {

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "retrieve-summary")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		_, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logger, ctx)

		records, err := provider.Datasets(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to load datasets")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		summary := summaryOut{
			Total:             len(records),
			ByHLAType:         map[string]int{},
			ByDiseaseCategory: map[string]int{},
			BySampleGroup:     map[string]int{},
			ByQuality:         map[string]int{},
		}

		for i := range records {
			rec := &records[i]

			summary.ByHLAType[orUnknown(string(rec.HLAType))]++
			summary.ByDiseaseCategory[orUnknown(string(rec.DiseaseCategory))]++
			summary.BySampleGroup[sampleGroup(rec.SampleType)]++
			summary.ByQuality[orUnknown(string(rec.MetadataQuality))]++

			if rec.NeedsManualReview {
				summary.NeedsManualReview++
			}
			if rec.InSysteMHC {
				summary.InSysteMHC++
			}
		}

		body, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal summary")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.Write(body)
	})
}

func orUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return domain.Unknown
	}

	return value
}

func sampleGroup(sampleType string) string {
	switch {
	case strings.HasPrefix(sampleType, "Cell line"):
		return "Cell line"
	case strings.HasPrefix(sampleType, "Blood"):
		return "Blood"
	case strings.HasPrefix(sampleType, "Tissue"):
		return "Tissue"
	}

	return domain.Unknown
}

package presentation

import (
	"compress/flate"
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/o11y/logging"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/repositories/snapshots"
	"github.com/hlatlas/pxmeta/internal/pkg/presentation/handlers"
	"github.com/riandyrn/otelchi"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type API interface {
	Start(port string) error
}

type datasetAPI struct {
	router chi.Router
	log    zerolog.Logger
}

func NewAPI(ctx context.Context, r chi.Router, store *snapshots.Store) API {
	log := logging.GetFromContext(ctx)

	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	// Enable gzip compression for our responses
	compressor := middleware.NewCompressor(
		flate.DefaultCompression,
		"text/csv", "application/json",
	)
	r.Use(compressor.Handler)
	r.Use(otelchi.Middleware("pxmeta", otelchi.WithChiRoutes(r)))

	a := &datasetAPI{
		router: r,
		log:    log,
	}

	provider := &snapshotProvider{store: store}

	r.Get("/api/datasets", handlers.NewRetrieveDatasetsHandler(log, provider))
	r.Get("/api/datasets/{id}", handlers.NewRetrieveDatasetByIDHandler(log, provider))
	r.Get("/api/summary", handlers.NewRetrieveSummaryHandler(log, provider))

	a.addProbeHandlers(r)

	return a
}

func (a *datasetAPI) Start(port string) error {
	a.log.Info().Msgf("starting pxmeta api on port:%s", port)
	return http.ListenAndServe(":"+port, a.router)
}

func (a *datasetAPI) addProbeHandlers(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// snapshotProvider serves the most-processed snapshot available on disk.
type snapshotProvider struct {
	store *snapshots.Store
}

func (p *snapshotProvider) Datasets(ctx context.Context) ([]domain.DatasetRecord, error) {
	records, _, err := p.store.LoadLatest()
	return records, err
}

func (p *snapshotProvider) DatasetByID(ctx context.Context, datasetID string) (*domain.DatasetRecord, error) {
	records, _, err := p.store.LoadLatest()
	if err != nil {
		return nil, err
	}

	for i := range records {
		if records[i].DatasetID == datasetID {
			return &records[i], nil
		}
	}

	return nil, handlers.ErrNoSuchDataset
}

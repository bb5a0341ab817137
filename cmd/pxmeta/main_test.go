package main

import (
	"context"
	"testing"

	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/repositories/snapshots"
	"github.com/matryer/is"
)

func TestThatScoreCommandRescoresTheLatestSnapshot(t *testing.T) {
	is := is.New(t)

	dir := t.TempDir()
	store := snapshots.NewStore(dir)
	err := store.Save(snapshots.StageClassified, []domain.DatasetRecord{{
		DatasetID:  "PXD000001",
		Repository: domain.RepositoryPRIDE,
		Title:      "HLA class I immunopeptidome",
	}})
	is.NoErr(err)

	rootCmd.SetArgs([]string{"score", "--data-dir", dir})
	err = rootCmd.ExecuteContext(context.Background())
	is.NoErr(err)

	records, stage, err := store.LoadLatest()
	is.NoErr(err)
	is.Equal(stage, snapshots.StageClassified)
	is.Equal(records[0].MetadataQuality, domain.QualityLow)
}

func TestThatEnvOrDefaultFallsBack(t *testing.T) {
	is := is.New(t)

	t.Setenv("SERVICE_PORT", "")
	is.Equal(envOrDefault("SERVICE_PORT", "8880"), "8880")

	t.Setenv("SERVICE_PORT", "9999")
	is.Equal(envOrDefault("SERVICE_PORT", "8880"), "9999")
}

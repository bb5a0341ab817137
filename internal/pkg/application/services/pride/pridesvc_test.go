package pride

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hlatlas/pxmeta/internal/pkg/domain"
	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestThatProjectsAreFetchedAndFlattened(t *testing.T) {
	is := is.New(t)
	server := testServer(http.StatusOK, projectJSON)
	defer server.Close()

	svc := NewProjectService(context.Background(), zerolog.Nop(), server.URL, server.URL)

	record, err := svc.GetProject(context.Background(), "PXD012348")
	is.NoErr(err)

	is.Equal(record.DatasetID, "PXD012348")
	is.Equal(record.Repository, domain.RepositoryPRIDE)
	is.Equal(record.Title, "HLA-I immunopeptidome of melanoma cell lines")
	is.Equal(record.Organisms, "Homo sapiens")
	is.Equal(record.Instruments, "Orbitrap Fusion Lumos; Q Exactive")
	is.Equal(record.PubmedIDs, "35120394")
	is.Equal(record.DOIs, "10.1000/example")
	is.Equal(record.Keywords, "immunopeptidomics; HLA")
}

func TestThatStructuredDiseaseEntriesAreKeptSerialized(t *testing.T) {
	is := is.New(t)
	server := testServer(http.StatusOK, projectJSON)
	defer server.Close()

	svc := NewProjectService(context.Background(), zerolog.Nop(), server.URL, server.URL)

	record, err := svc.GetProject(context.Background(), "PXD012348")
	is.NoErr(err)

	is.Equal(record.Diseases, `{"@type":"CvParam","name":"Melanoma"}`)
}

func TestThatNotFoundShortCircuitsRetries(t *testing.T) {
	is := is.New(t)

	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	svc := NewProjectService(context.Background(), zerolog.Nop(), server.URL, server.URL)

	_, err := svc.GetProject(context.Background(), "PXD999999")

	is.True(errors.Is(err, ErrNotFound))
	is.Equal(requestCount, 1)
}

func TestThatTransientFailuresAreRetried(t *testing.T) {
	is := is.New(t)

	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if requestCount < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Add("Content-Type", "application/json")
		w.Write([]byte(projectJSON))
	}))
	defer server.Close()

	svc := NewProjectService(context.Background(), zerolog.Nop(), server.URL, server.URL)

	record, err := svc.GetProject(context.Background(), "PXD012348")
	is.NoErr(err)
	is.Equal(record.Title, "HLA-I immunopeptidome of melanoma cell lines")
	is.Equal(requestCount, 3)
}

func TestThatSampleSheetsAreDownloaded(t *testing.T) {
	is := is.New(t)
	server := testServer(http.StatusOK, "source name\tcharacteristics[organism]\nsample 1\tHomo sapiens\n")
	defer server.Close()

	svc := NewProjectService(context.Background(), zerolog.Nop(), server.URL, server.URL)

	sheet, err := svc.GetSampleSheet(context.Background(), "PXD012348")
	is.NoErr(err)
	is.True(len(sheet) > 0)
}

func TestThatMissingSampleSheetsReturnNotFound(t *testing.T) {
	is := is.New(t)
	server := testServer(http.StatusNotFound, "")
	defer server.Close()

	svc := NewProjectService(context.Background(), zerolog.Nop(), server.URL, server.URL)

	_, err := svc.GetSampleSheet(context.Background(), "PXD012348")
	is.True(errors.Is(err, ErrNotFound))
}

func testServer(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

const projectJSON = `{
	"accession": "PXD012348",
	"title": "HLA-I immunopeptidome of melanoma cell lines",
	"projectDescription": "Immunoaffinity purification of HLA-I peptides followed by LC-MS/MS",
	"sampleProcessingProtocol": "W6/32 immunoprecipitation",
	"keywords": ["immunopeptidomics", "HLA"],
	"projectTags": ["Immunopeptidomics"],
	"organisms": [{"name": "Homo sapiens"}],
	"diseases": [{"@type":"CvParam","name":"Melanoma"}],
	"tissues": [{"@type":"CvParam","name":"skin"}],
	"cellTypes": [],
	"instruments": [{"name": "Orbitrap Fusion Lumos"}, {"name": "Q Exactive"}],
	"ptmList": [{"name": "Oxidation"}],
	"quantificationMethods": [],
	"submissionDate": "2023-01-12",
	"publicationDate": "2023-05-17",
	"references": [{"pubmedId": 35120394, "doi": "10.1000/example"}],
	"submitters": [{"name": "A Submitter"}],
	"labPIs": [{"name": "A Lab Head"}]
}`

package charts

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fogleman/gg"
	"github.com/hlatlas/pxmeta/internal/pkg/domain"
)

const (
	chartWidth  = 900
	chartHeight = 500

	// Long sample type labels get cut off under their bars otherwise.
	maxBarLabelLen = 18
	maxSampleBars  = 8
)

var palette = []color.NRGBA{
	{R: 0x36, G: 0x60, B: 0x92, A: 0xff},
	{R: 0xd9, G: 0x7b, B: 0x29, A: 0xff},
	{R: 0x4e, G: 0x9a, B: 0x4e, A: 0xff},
	{R: 0xb1, G: 0x3b, B: 0x3b, A: 0xff},
	{R: 0x7a, G: 0x5c, B: 0x9e, A: 0xff},
	{R: 0x5f, G: 0x5f, B: 0x5f, A: 0xff},
	{R: 0x2e, G: 0x8b, B: 0xa8, A: 0xff},
	{R: 0xc2, G: 0xa3, B: 0x2e, A: 0xff},
}

type bar struct {
	label string
	value int
}

// ChartFiles lists the images WriteAll produces, in order.
var ChartFiles = []string{
	"hla_distribution.png",
	"disease_categories.png",
	"sample_types.png",
	"metadata_completeness.png",
}

// WriteAll renders the four summary charts into dir.
func WriteAll(dir string, records []domain.DatasetRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create chart directory: %w", err)
	}

	charts := []struct {
		file  string
		title string
		bars  []bar
	}{
		{"hla_distribution.png", "Datasets by HLA Type", countBars(records, func(r *domain.DatasetRecord) string {
			return string(r.HLAType)
		}, 0)},
		{"disease_categories.png", "Datasets by Disease Category", countBars(records, func(r *domain.DatasetRecord) string {
			return string(r.DiseaseCategory)
		}, 0)},
		{"sample_types.png", "Most Common Sample Types", countBars(records, func(r *domain.DatasetRecord) string {
			return r.SampleType
		}, maxSampleBars)},
		{"metadata_completeness.png", "Metadata Completeness (%)", completenessBars(records)},
	}

	for _, c := range charts {
		if err := renderBarChart(filepath.Join(dir, c.file), c.title, c.bars); err != nil {
			return fmt.Errorf("failed to render %s: %w", c.file, err)
		}
	}

	return nil
}

func countBars(records []domain.DatasetRecord, key func(r *domain.DatasetRecord) string, limit int) []bar {
	counts := map[string]int{}
	for i := range records {
		k := strings.TrimSpace(key(&records[i]))
		if k == "" {
			k = domain.Unknown
		}
		counts[k]++
	}

	bars := make([]bar, 0, len(counts))
	for label, value := range counts {
		bars = append(bars, bar{label, value})
	}

	sort.Slice(bars, func(i, j int) bool {
		if bars[i].value != bars[j].value {
			return bars[i].value > bars[j].value
		}
		return bars[i].label < bars[j].label
	})

	if limit > 0 && len(bars) > limit {
		bars = bars[:limit]
	}

	return bars
}

func completenessBars(records []domain.DatasetRecord) []bar {
	fields := []struct {
		label string
		value func(r *domain.DatasetRecord) bool
	}{
		{"Title", func(r *domain.DatasetRecord) bool { return !domain.IsUnresolved(r.Title) }},
		{"HLA type", func(r *domain.DatasetRecord) bool { return r.HLAType != "" && r.HLAType != domain.HLATypeNeedsReview }},
		{"HLA alleles", func(r *domain.DatasetRecord) bool { return !domain.IsUnresolved(r.HLAAlleles) }},
		{"Sample type", func(r *domain.DatasetRecord) bool { return !domain.IsUnresolved(r.SampleType) }},
		{"Disease", func(r *domain.DatasetRecord) bool { return !domain.IsUnresolved(r.DiseaseType) }},
		{"Instruments", func(r *domain.DatasetRecord) bool { return !domain.IsUnresolved(r.Instruments) }},
		{"Publication", func(r *domain.DatasetRecord) bool { return !domain.IsUnresolved(r.PubmedIDs) }},
		{"Sample sheet", func(r *domain.DatasetRecord) bool { return r.HasSDRF }},
	}

	bars := make([]bar, 0, len(fields))
	for _, f := range fields {
		count := 0
		for i := range records {
			if f.value(&records[i]) {
				count++
			}
		}

		percent := 0
		if len(records) > 0 {
			percent = count * 100 / len(records)
		}

		bars = append(bars, bar{f.label, percent})
	}

	return bars
}

func renderBarChart(path, title string, bars []bar) error {
	dc := gg.NewContext(chartWidth, chartHeight)

	dc.SetColor(color.White)
	dc.Clear()

	dc.SetColor(color.Black)
	dc.DrawStringAnchored(title, chartWidth/2, 24, 0.5, 0.5)

	if len(bars) == 0 {
		dc.DrawStringAnchored("no data", chartWidth/2, chartHeight/2, 0.5, 0.5)
		return dc.SavePNG(path)
	}

	maxValue := 0
	for _, b := range bars {
		if b.value > maxValue {
			maxValue = b.value
		}
	}
	if maxValue == 0 {
		maxValue = 1
	}

	const (
		marginLeft   = 40.0
		marginRight  = 20.0
		marginTop    = 60.0
		marginBottom = 60.0
	)

	plotWidth := chartWidth - marginLeft - marginRight
	plotHeight := chartHeight - marginTop - marginBottom

	slot := plotWidth / float64(len(bars))
	barWidth := slot * 0.7

	for i, b := range bars {
		height := float64(b.value) / float64(maxValue) * plotHeight
		x := marginLeft + float64(i)*slot + (slot-barWidth)/2
		y := marginTop + plotHeight - height

		dc.SetColor(palette[i%len(palette)])
		dc.DrawRectangle(x, y, barWidth, height)
		dc.Fill()

		dc.SetColor(color.Black)
		dc.DrawStringAnchored(fmt.Sprintf("%d", b.value), x+barWidth/2, y-10, 0.5, 0.5)
		dc.DrawStringAnchored(shorten(b.label), x+barWidth/2, marginTop+plotHeight+16, 0.5, 0.5)
	}

	// Baseline.
	dc.SetColor(color.Black)
	dc.DrawLine(marginLeft, marginTop+plotHeight, marginLeft+plotWidth, marginTop+plotHeight)
	dc.Stroke()

	return dc.SavePNG(path)
}

func shorten(label string) string {
	if len(label) <= maxBarLabelLen {
		return label
	}

	return label[:maxBarLabelLen-3] + "..."
}

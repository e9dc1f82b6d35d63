package data

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/crashradar/crashradar/pkg/types"
)

// CSVConfig names the columns of interest and the date layout. Column names
// are matched case-insensitively against the header row.
type CSVConfig struct {
	DateColumn   string `yaml:"dateColumn"`
	PriceColumn  string `yaml:"priceColumn"`
	VolumeColumn string `yaml:"volumeColumn"`
	Layout       string `yaml:"layout"`
	Comma        string `yaml:"comma"`
}

func DefaultCSVConfig() CSVConfig {
	return CSVConfig{
		DateColumn:  "date",
		PriceColumn: "close",
		Layout:      "2006-01-02",
	}
}

// LoadCSV reads a daily price history. The volume column is optional; rows
// with unparsable values are skipped with a warning rather than failing the
// whole load.
func LoadCSV(path string, cfg CSVConfig) (*types.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open csv")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if cfg.Comma != "" {
		reader.Comma = rune(cfg.Comma[0])
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}
	if len(rows) < 2 {
		return nil, errors.Errorf("csv %s: no data rows", path)
	}

	dateIdx, priceIdx, volumeIdx := -1, -1, -1
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case strings.ToLower(cfg.DateColumn):
			dateIdx = i
		case strings.ToLower(cfg.PriceColumn):
			priceIdx = i
		case strings.ToLower(cfg.VolumeColumn):
			if cfg.VolumeColumn != "" {
				volumeIdx = i
			}
		}
	}
	if dateIdx < 0 || priceIdx < 0 {
		return nil, errors.Errorf("csv %s: missing %q or %q column", path, cfg.DateColumn, cfg.PriceColumn)
	}

	layout := cfg.Layout
	if layout == "" {
		layout = "2006-01-02"
	}

	series := &types.PriceSeries{}
	skipped := 0
	for _, row := range rows[1:] {
		ts, err := time.Parse(layout, strings.TrimSpace(row[dateIdx]))
		if err != nil {
			skipped++
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(row[priceIdx]), 64)
		if err != nil || price <= 0 {
			skipped++
			continue
		}
		volume := 0.0
		if volumeIdx >= 0 && volumeIdx < len(row) {
			volume, _ = strconv.ParseFloat(strings.TrimSpace(row[volumeIdx]), 64)
		}
		if err := series.Append(ts, price, volume); err != nil {
			return nil, errors.Wrapf(err, "csv %s", path)
		}
	}
	if skipped > 0 {
		log.WithFields(log.Fields{"file": path, "rows": skipped}).Warn("skipped unparsable csv rows")
	}
	if len(series.Prices) == 0 {
		return nil, errors.Errorf("csv %s: no valid rows", path)
	}
	if volumeIdx < 0 {
		series.Volumes = nil
	}
	return series, nil
}

package cmd

import (
	"context"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/crashradar/crashradar/pkg/chart"
	"github.com/crashradar/crashradar/pkg/data"
	"github.com/crashradar/crashradar/pkg/forecast"
	"github.com/crashradar/crashradar/pkg/report"
	"github.com/crashradar/crashradar/pkg/types"
)

func init() {
	RunCmd.Flags().String("input", "", "CSV file with date,close[,volume] columns")
	RunCmd.Flags().String("date-column", "date", "CSV date column name")
	RunCmd.Flags().String("price-column", "close", "CSV price column name")
	RunCmd.Flags().String("volume-column", "", "CSV volume column name")
	RunCmd.Flags().String("date-layout", "2006-01-02", "CSV date layout")
	RunCmd.Flags().Bool("synthetic", false, "run on the built-in synthetic bubble scenario")
	RunCmd.Flags().String("chart-overview", "", "write a price + bubble index PNG to this path")
	RunCmd.Flags().String("chart-forecast", "", "write a forecast fan PNG to this path")
	RootCmd.AddCommand(RunCmd)
}

var RunCmd = &cobra.Command{
	Use:          "run",
	Short:        "analyze a price series and report crash risk",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		configFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		cfg := forecast.DefaultConfig()
		if len(configFile) > 0 {
			cfg, err = forecast.LoadConfig(configFile)
			if err != nil {
				return err
			}
		}

		series, err := loadSeries(cmd)
		if err != nil {
			return err
		}

		log.WithField("observations", series.Len()).Info("analyzing series")

		analyzer := forecast.New(cfg)
		rep, err := analyzer.Analyze(ctx, series)
		if err != nil {
			return err
		}

		report.Render(os.Stdout, rep)

		if path, _ := cmd.Flags().GetString("chart-overview"); path != "" {
			if err := writeChart(path, func(f *os.File) error {
				return chart.RenderOverview(f, series, rep.BubbleIndex)
			}); err != nil {
				return err
			}
			log.WithField("path", path).Info("overview chart written")
		}

		if path, _ := cmd.Flags().GetString("chart-forecast"); path != "" {
			if err := writeChart(path, func(f *os.File) error {
				return chart.RenderForecast(f, series, rep, 120)
			}); err != nil {
				return err
			}
			log.WithField("path", path).Info("forecast chart written")
		}

		return nil
	},
}

func loadSeries(cmd *cobra.Command) (*types.PriceSeries, error) {
	synthetic, err := cmd.Flags().GetBool("synthetic")
	if err != nil {
		return nil, err
	}
	if synthetic {
		return data.GenerateSynthetic(data.DefaultSyntheticConfig()), nil
	}

	input, err := cmd.Flags().GetString("input")
	if err != nil {
		return nil, err
	}
	if len(input) == 0 {
		return nil, errors.New("--input file or --synthetic is required")
	}

	csvConfig := data.DefaultCSVConfig()
	if v, _ := cmd.Flags().GetString("date-column"); v != "" {
		csvConfig.DateColumn = v
	}
	if v, _ := cmd.Flags().GetString("price-column"); v != "" {
		csvConfig.PriceColumn = v
	}
	if v, _ := cmd.Flags().GetString("volume-column"); v != "" {
		csvConfig.VolumeColumn = v
	}
	if v, _ := cmd.Flags().GetString("date-layout"); v != "" {
		csvConfig.Layout = v
	}
	return data.LoadCSV(input, csvConfig)
}

func writeChart(path string, render func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return render(f)
}

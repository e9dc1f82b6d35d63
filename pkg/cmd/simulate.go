package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/cheggaaa/pb/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/crashradar/crashradar/pkg/risk"
	"github.com/crashradar/crashradar/pkg/sde"
)

const simulateBatchSize = 100

func init() {
	SimulateCmd.Flags().Int("paths", 1000, "number of Monte Carlo paths")
	SimulateCmd.Flags().Int("steps", 252, "steps per path")
	SimulateCmd.Flags().Float64("dt", 1.0/252, "time step in years")
	SimulateCmd.Flags().Float64("s0", 100.0, "initial price")
	SimulateCmd.Flags().Float64("drift", 0.05, "annual drift")
	SimulateCmd.Flags().Float64("vol", 0.2, "annual volatility")
	SimulateCmd.Flags().Float64("hurst", 0.5, "hurst exponent of the driving noise")
	SimulateCmd.Flags().Int64("seed", 1, "random seed")
	SimulateCmd.Flags().String("integrator", string(sde.EulerMaruyama), "integration scheme: euler_maruyama or milstein")
	SimulateCmd.Flags().Float64("jump-intensity", 0, "Poisson jump intensity per year, 0 disables jumps")
	SimulateCmd.Flags().Float64("jump-mean", -0.05, "mean log jump size (merton)")
	SimulateCmd.Flags().Float64("jump-std", 0.05, "log jump size std (merton)")
	SimulateCmd.Flags().String("output", "", "write the quantile fan to a CSV file")
	RootCmd.AddCommand(SimulateCmd)
}

var SimulateCmd = &cobra.Command{
	Use:          "simulate",
	Short:        "run a standalone Monte Carlo price simulation",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		params := sde.Params{}
		params.S0, _ = cmd.Flags().GetFloat64("s0")
		params.Drift, _ = cmd.Flags().GetFloat64("drift")
		params.Vol, _ = cmd.Flags().GetFloat64("vol")
		params.Hurst, _ = cmd.Flags().GetFloat64("hurst")

		if intensity, _ := cmd.Flags().GetFloat64("jump-intensity"); intensity > 0 {
			params.Jump.Model = sde.JumpMerton
			params.Jump.Intensity = intensity
			params.Jump.Mean, _ = cmd.Flags().GetFloat64("jump-mean")
			params.Jump.Std, _ = cmd.Flags().GetFloat64("jump-std")
		}

		cfg := sde.DefaultConfig()
		cfg.Paths, _ = cmd.Flags().GetInt("paths")
		cfg.Steps, _ = cmd.Flags().GetInt("steps")
		cfg.Dt, _ = cmd.Flags().GetFloat64("dt")
		cfg.Seed, _ = cmd.Flags().GetInt64("seed")
		integrator, _ := cmd.Flags().GetString("integrator")
		cfg.Integrator = sde.Integrator(integrator)

		ensemble, err := simulateWithProgress(ctx, params, cfg)
		if err != nil {
			return err
		}

		assessment, err := risk.Assess(ensemble, 0.95, 0.10)
		if err != nil {
			return err
		}

		fmt.Printf("paths %d, steps %d\n", len(ensemble.Paths), cfg.Steps)
		fmt.Printf("terminal mean %.4f\n", ensemble.Terminal().Mean())
		fmt.Printf("VaR(95%%) %.4f  CVaR(95%%) %.4f\n", assessment.VaR, assessment.CVaR)
		fmt.Printf("P(drawdown > 10%%) %.4f  worst drawdown %.4f\n", assessment.CrashProbability, assessment.WorstDrawdown)

		if output, _ := cmd.Flags().GetString("output"); output != "" {
			if err := writeFanCSV(output, ensemble); err != nil {
				return err
			}
			log.WithField("path", output).Info("quantile fan written")
		}

		return nil
	},
}

// simulateWithProgress splits the run into batches so the progress bar moves.
// Batch seeds are spread apart to keep the per-path generators independent.
func simulateWithProgress(ctx context.Context, params sde.Params, cfg sde.Config) (*sde.Ensemble, error) {
	out := &sde.Ensemble{Dt: cfg.Dt}

	bar := pb.Full.Start(cfg.Paths)
	defer bar.Finish()

	for done := 0; done < cfg.Paths; done += simulateBatchSize {
		batch := cfg
		batch.Paths = cfg.Paths - done
		if batch.Paths > simulateBatchSize {
			batch.Paths = simulateBatchSize
		}
		batch.Seed = cfg.Seed + int64(done)

		ensemble, err := sde.Simulate(ctx, params, batch)
		if err != nil {
			return nil, err
		}
		out.Paths = append(out.Paths, ensemble.Paths...)
		bar.Add(batch.Paths)
	}

	return out, nil
}

func writeFanCSV(path string, ensemble *sde.Ensemble) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"step", "p05", "p50", "p95"}); err != nil {
		return err
	}

	p05 := ensemble.QuantilePath(0.05)
	p50 := ensemble.QuantilePath(0.50)
	p95 := ensemble.QuantilePath(0.95)
	for i := range p50 {
		record := []string{
			strconv.Itoa(i),
			strconv.FormatFloat(p05[i], 'f', 6, 64),
			strconv.FormatFloat(p50[i], 'f', 6, 64),
			strconv.FormatFloat(p95[i], 'f', 6, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

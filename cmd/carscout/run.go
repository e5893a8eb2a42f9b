package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/use-agent/carscout/models"
)

var runFlags struct {
	manufacturers []string
	vehicleType   string
	maxResults    int
	country       string
	securityLevel string
	delay         int
	competitors   bool
	encrypt       bool
	anonymize     bool
	output        string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scrape and write its report as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		s, err := e.Orchestrator.NewSession("", buildRunConfig(cmd))
		if err != nil {
			return err
		}
		if _, err := e.Store.CreateRun(ctx, s.ID, s.Config); err != nil {
			return eris.Wrap(err, "record run")
		}
		if err := e.Store.UpdateRunStatus(ctx, s.ID, models.RunStatusRunning, ""); err != nil {
			return eris.Wrap(err, "record run")
		}

		out, runErr := e.Orchestrator.Execute(ctx, s)
		if runErr != nil {
			if err := e.Store.UpdateRunStatus(cmd.Context(), s.ID, models.RunStatusFailed, runErr.Error()); err != nil {
				slog.Warn("run status update failed", "run_id", s.ID, "error", err)
			}
			return runErr
		}
		if err := e.Store.CompleteRun(ctx, s.ID, out); err != nil {
			slog.Warn("run output save failed", "run_id", s.ID, "error", err)
		}

		return writeJSON(runFlags.output, out)
	},
}

// buildRunConfig starts from the configured run defaults and applies the
// flags the user set.
func buildRunConfig(cmd *cobra.Command) models.RunConfig {
	rc := models.RunConfig{
		VehicleType:    cfg.Run.VehicleType,
		MaxResults:     cfg.Run.MaxResults,
		Country:        cfg.Run.Country,
		SecurityLevel:  cfg.Run.SecurityLevel,
		RateLimitDelay: cfg.Run.RateLimitDelay,
	}
	f := cmd.Flags()
	if f.Changed("manufacturer") {
		rc.Manufacturers = runFlags.manufacturers
	}
	if f.Changed("vehicle-type") {
		rc.VehicleType = runFlags.vehicleType
	}
	if f.Changed("max-results") {
		rc.MaxResults = runFlags.maxResults
	}
	if f.Changed("country") {
		rc.Country = runFlags.country
	}
	if f.Changed("security-level") {
		rc.SecurityLevel = runFlags.securityLevel
	}
	if f.Changed("delay") {
		rc.RateLimitDelay = runFlags.delay
	}
	rc.IncludeCompetitors = runFlags.competitors
	rc.EncryptSensitiveData = runFlags.encrypt
	rc.AnonymizeData = runFlags.anonymize
	return rc
}

// writeJSON writes v to path, or stdout when path is empty or "-".
func writeJSON(path string, v any) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "create %s", path)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode report")
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVarP(&runFlags.manufacturers, "manufacturer", "m", nil, "manufacturers to scrape (repeatable, default built-in list)")
	f.StringVar(&runFlags.vehicleType, "vehicle-type", "", "vehicle type filter, e.g. sedan, suv")
	f.IntVarP(&runFlags.maxResults, "max-results", "n", 0, "maximum records in the report")
	f.StringVar(&runFlags.country, "country", "", "market code, e.g. US, DE")
	f.StringVar(&runFlags.securityLevel, "security-level", "", "minimal, standard, strict or stealth")
	f.IntVar(&runFlags.delay, "delay", 0, "base delay between requests in ms")
	f.BoolVar(&runFlags.competitors, "competitors", false, "compute competitor comparisons")
	f.BoolVar(&runFlags.encrypt, "encrypt", false, "encrypt prices in the report")
	f.BoolVar(&runFlags.anonymize, "anonymize", false, "strip dealer data and source URLs")
	f.StringVarP(&runFlags.output, "output", "o", "", "report file (default stdout)")
	rootCmd.AddCommand(runCmd)
}

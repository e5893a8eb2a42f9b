package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/carscout/models"
	"github.com/use-agent/carscout/runner"
	"github.com/use-agent/carscout/validator"
)

func main() {
	apiURL := os.Getenv("CARSCOUT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("CARSCOUT_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "CARSCOUT_API_KEY is required")
		os.Exit(1)
	}

	if err := server.ServeStdio(newServer(newAPIClient(apiURL, apiKey))); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"carscout",
		models.Version,
		server.WithToolCapabilities(false),
	)

	startTool := mcp.NewTool("start_car_run",
		mcp.WithDescription("Scrape car model specifications and prices for one or more manufacturers. Returns the run report, or only the run ID when wait is false."),
		mcp.WithArray("manufacturers",
			mcp.Description("Manufacturers to scrape, e.g. [\"Toyota\", \"Honda\"] (default: built-in list of ten)"),
		),
		mcp.WithString("vehicle_type",
			mcp.Description("Vehicle type filter (default: 'all')"),
			mcp.Enum(validator.VehicleTypes...),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of records (default: 50, max: 1000)"),
		),
		mcp.WithString("country",
			mcp.Description("Market code (default: 'US')"),
			mcp.Enum(validator.Countries...),
		),
		mcp.WithString("security_level",
			mcp.Description("Request pacing preset (default: 'standard')"),
			mcp.Enum(validator.SecurityLevels...),
		),
		mcp.WithNumber("rate_limit_delay",
			mcp.Description("Base delay between requests in milliseconds (default: 2000, range 500-10000)"),
		),
		mcp.WithBoolean("include_competitors",
			mcp.Description("Compare each model with same-price-band competitors"),
		),
		mcp.WithBoolean("anonymize",
			mcp.Description("Strip dealer contact data and source URLs"),
		),
		mcp.WithBoolean("encrypt",
			mcp.Description("Encrypt prices in the output with the server's key"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the run to finish (default: true)"),
		),
	)
	s.AddTool(startTool, handleStartRun(c))

	getTool := mcp.NewTool("get_car_run",
		mcp.WithDescription("Get the status, live progress or final report of a run."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Run ID returned by start_car_run"),
		),
	)
	s.AddTool(getTool, handleGetRun(c))

	listTool := mcp.NewTool("list_car_runs",
		mcp.WithDescription("List recent runs."),
		mcp.WithString("status",
			mcp.Description("Filter by status"),
			mcp.Enum("queued", "running", "completed", "failed"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum runs to list (default: 20)"),
		),
	)
	s.AddTool(listTool, handleListRuns(c))

	return s
}

func handleStartRun(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cfg := models.RunConfig{
			Manufacturers:        request.GetStringSlice("manufacturers", nil),
			VehicleType:          request.GetString("vehicle_type", ""),
			MaxResults:           request.GetInt("max_results", 0),
			Country:              request.GetString("country", ""),
			SecurityLevel:        request.GetString("security_level", ""),
			RateLimitDelay:       request.GetInt("rate_limit_delay", 0),
			IncludeCompetitors:   request.GetBool("include_competitors", false),
			EncryptSensitiveData: request.GetBool("encrypt", false),
			AnonymizeData:        request.GetBool("anonymize", false),
		}

		acc, err := c.startRun(ctx, cfg)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("start run failed: %v", err)), nil
		}
		if !request.GetBool("wait", true) {
			return mcp.NewToolResultText(fmt.Sprintf("Run %s: %s", acc.ID, acc.Status)), nil
		}

		v, err := c.waitRun(ctx, acc.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("waiting for run %s failed: %v", acc.ID, err)), nil
		}
		return renderRun(v), nil
	}
}

func handleGetRun(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		v, err := c.getRun(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return renderRun(v), nil
	}
}

func handleListRuns(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runs, err := c.listRuns(ctx, request.GetString("status", ""), request.GetInt("limit", 20))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(runs) == 0 {
			return mcp.NewToolResultText("No runs."), nil
		}
		var sb strings.Builder
		for _, r := range runs {
			fmt.Fprintf(&sb, "%s  %-9s  %s\n", r.ID, r.Status, r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// renderRun formats a run as a short text report.
func renderRun(v *runner.RunView) *mcp.CallToolResult {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s: %s\n", v.ID, v.Status)

	switch {
	case v.Status == models.RunStatusFailed:
		return mcp.NewToolResultError(fmt.Sprintf("Run %s failed: %s", v.ID, v.Error))
	case v.Live != nil:
		fmt.Fprintf(&sb, "Requests: %d (blocked %d, retries %d), success rate %.0f%%\n",
			v.Live.Audit.TotalRequests, v.Live.Audit.BlockedRequests, v.Live.Audit.RetryCount, v.Live.Audit.SuccessRate)
	case v.Output != nil:
		md := v.Output.Metadata
		fmt.Fprintf(&sb, "Records: %d, security score %d, average quality %.0f\n",
			md.TotalRecords, md.SecurityAudit.Score, md.DataQualitySummary.AverageScore)
		if md.PriceStatistics.Count > 0 {
			fmt.Fprintf(&sb, "Prices: $%.0f to $%.0f (avg $%.0f)\n",
				md.PriceStatistics.Min, md.PriceStatistics.Max, md.PriceStatistics.Average)
		}
		sb.WriteString("\n")
		for _, r := range v.Output.Data {
			fmt.Fprintf(&sb, "- %s %s", r.Manufacturer, r.Model)
			if r.Price.StartingMSRP != nil {
				fmt.Fprintf(&sb, ", $%.0f", *r.Price.StartingMSRP)
				if r.Price.IsEstimated {
					sb.WriteString(" (est.)")
				}
			}
			if r.Performance.Horsepower != nil {
				fmt.Fprintf(&sb, ", %d hp", *r.Performance.Horsepower)
			}
			fmt.Fprintf(&sb, ", quality %d", r.DataQuality)
			if len(r.Competitors) > 0 {
				names := make([]string, len(r.Competitors))
				for i, cp := range r.Competitors {
					names[i] = cp.Manufacturer + " " + cp.Model
				}
				fmt.Fprintf(&sb, ", vs %s", strings.Join(names, ", "))
			}
			sb.WriteString("\n")
		}
	}
	return mcp.NewToolResultText(sb.String())
}

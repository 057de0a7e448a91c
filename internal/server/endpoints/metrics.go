package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// parseFilter builds a metrics filter from query parameters.
// after/before accept RFC 3339 timestamps; success accepts a bool.
func parseFilter(q url.Values) (metrics.Filter, error) {
	f := metrics.Filter{
		RequestID: q.Get("request_id"),
		Document:  q.Get("document"),
		Provider:  q.Get("provider"),
		Model:     q.Get("model"),
	}
	for key, dst := range map[string]*time.Time{"after": &f.After, "before": &f.Before} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = t
		}
	}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid success: %w", err)
		}
		f.Success = &b
	}
	return f, nil
}

// filterFlags registers the shared metrics filter flags and returns a query builder.
func filterFlags(cmd *cobra.Command) func() string {
	var requestID, document, provider, model string
	cmd.Flags().StringVar(&requestID, "request", "", "Filter by reconstruction request ID")
	cmd.Flags().StringVar(&document, "document", "", "Filter by source filename")
	cmd.Flags().StringVar(&provider, "provider", "", "Filter by describer backend")
	cmd.Flags().StringVar(&model, "model", "", "Filter by model")

	return func() string {
		q := url.Values{}
		for key, v := range map[string]string{
			"request_id": requestID,
			"document":   document,
			"provider":   provider,
			"model":      model,
		} {
			if v != "" {
				q.Set(key, v)
			}
		}
		if len(q) == 0 {
			return ""
		}
		return "?" + q.Encode()
	}
}

// MetricsSummaryResponse is the response for summary queries.
type MetricsSummaryResponse struct {
	Count            int            `json:"count"`
	TotalTokens      int            `json:"total_tokens"`
	TotalTimeSeconds float64        `json:"total_time_seconds"`
	SuccessCount     int            `json:"success_count"`
	ErrorCount       int            `json:"error_count"`
	RetryCount       int            `json:"retry_count"`
	SuccessRate      float64        `json:"success_rate"`
	Requests         int            `json:"requests"`
	Documents        int            `json:"documents"`
	AvgTokens        float64        `json:"avg_tokens"`
	AvgTimeSeconds   float64        `json:"avg_time_seconds"`
	ByProvider       map[string]int `json:"by_provider"`
	ErrorsByType     map[string]int `json:"errors_by_type"`
}

// MetricsSummaryEndpoint handles GET /api/metrics.
type MetricsSummaryEndpoint struct{}

func (e *MetricsSummaryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/metrics", e.handler
}

func (e *MetricsSummaryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Enrichment metrics summary
//	@Description	Totals and averages over recorded describe attempts
//	@Tags			metrics
//	@Produce		json
//	@Param			request_id	query		string	false	"Filter by reconstruction request ID"
//	@Param			document	query		string	false	"Filter by source filename"
//	@Param			provider	query		string	false	"Filter by describer backend"
//	@Param			model		query		string	false	"Filter by model"
//	@Param			success		query		bool	false	"Only successful (true) or failed (false) attempts"
//	@Success		200			{object}	MetricsSummaryResponse
//	@Failure		400			{object}	ErrorResponse
//	@Router			/api/metrics [get]
func (e *MetricsSummaryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := svcctx.MetricsFrom(r.Context())
	summary := rec.GetSummary(f)

	writeJSON(w, http.StatusOK, MetricsSummaryResponse{
		Count:            summary.Count,
		TotalTokens:      summary.TotalTokens,
		TotalTimeSeconds: summary.TotalTime.Seconds(),
		SuccessCount:     summary.SuccessCount,
		ErrorCount:       summary.ErrorCount,
		RetryCount:       summary.RetryCount,
		SuccessRate:      summary.SuccessRate,
		Requests:         summary.Requests,
		Documents:        summary.Documents,
		AvgTokens:        summary.AvgTokens,
		AvgTimeSeconds:   summary.AvgTimeSeconds,
		ByProvider:       rec.CallsByProvider(f),
		ErrorsByType:     rec.ErrorsByType(f),
	})
}

func (e *MetricsSummaryEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Get enrichment metrics summary",
	}
	query := filterFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		client := api.NewClient(getServerURL())
		var resp MetricsSummaryResponse
		if err := client.Get(cmd.Context(), "/api/metrics"+query(), &resp); err != nil {
			return err
		}
		if api.IsStructuredOutput() {
			return api.Output(resp)
		}

		fmt.Printf("Metrics Summary\n")
		fmt.Printf("===============\n")
		fmt.Printf("  Count:        %d\n", resp.Count)
		fmt.Printf("  Success:      %d\n", resp.SuccessCount)
		fmt.Printf("  Errors:       %d\n", resp.ErrorCount)
		fmt.Printf("  Retries:      %d\n", resp.RetryCount)
		fmt.Printf("  Success Rate: %.0f%%\n", resp.SuccessRate*100)
		fmt.Printf("  Documents:    %d (%d requests)\n", resp.Documents, resp.Requests)
		fmt.Println()
		fmt.Printf("  Total Tokens: %d\n", resp.TotalTokens)
		fmt.Printf("  Avg Tokens:   %.1f\n", resp.AvgTokens)
		fmt.Println()
		fmt.Printf("  Total Time:   %s\n", time.Duration(resp.TotalTimeSeconds*float64(time.Second)))
		fmt.Printf("  Avg Time:     %.2fs\n", resp.AvgTimeSeconds)
		for errType, n := range resp.ErrorsByType {
			fmt.Printf("  %-13s %d\n", errType+":", n)
		}
		return nil
	}
	return cmd
}

// MetricsDetailedResponse is the response for detailed metrics with percentiles.
type MetricsDetailedResponse struct {
	Overall       *metrics.DetailedStats            `json:"overall"`
	Providers     map[string]*metrics.DetailedStats `json:"providers"`
	TokensByModel map[string]int                    `json:"tokens_by_model"`
}

// MetricsDetailedEndpoint handles GET /api/metrics/detailed.
type MetricsDetailedEndpoint struct{}

func (e *MetricsDetailedEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/metrics/detailed", e.handler
}

func (e *MetricsDetailedEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Detailed enrichment metrics with percentiles
//	@Tags			metrics
//	@Produce		json
//	@Param			request_id	query		string	false	"Filter by reconstruction request ID"
//	@Param			document	query		string	false	"Filter by source filename"
//	@Param			provider	query		string	false	"Filter by describer backend"
//	@Param			model		query		string	false	"Filter by model"
//	@Success		200			{object}	MetricsDetailedResponse
//	@Failure		400			{object}	ErrorResponse
//	@Router			/api/metrics/detailed [get]
func (e *MetricsDetailedEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := svcctx.MetricsFrom(r.Context())
	writeJSON(w, http.StatusOK, MetricsDetailedResponse{
		Overall:       rec.GetDetailedStats(f),
		Providers:     rec.ProviderDetailedStats(f),
		TokensByModel: rec.TokensByModel(f),
	})
}

func (e *MetricsDetailedEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics-detailed",
		Short: "Get detailed enrichment metrics with latency percentiles",
	}
	query := filterFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		client := api.NewClient(getServerURL())
		var resp MetricsDetailedResponse
		if err := client.Get(cmd.Context(), "/api/metrics/detailed"+query(), &resp); err != nil {
			return err
		}
		return api.Output(resp)
	}
	return cmd
}

// ListMetricsResponse is the response for listing metrics.
type ListMetricsResponse struct {
	Metrics []metrics.Metric `json:"metrics"`
	Count   int              `json:"count"`
}

// ListMetricsEndpoint handles GET /api/metrics/list.
type ListMetricsEndpoint struct{}

func (e *ListMetricsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/metrics/list", e.handler
}

func (e *ListMetricsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List describe attempts
//	@Description	Most recent first
//	@Tags			metrics
//	@Produce		json
//	@Param			request_id	query		string	false	"Filter by reconstruction request ID"
//	@Param			document	query		string	false	"Filter by source filename"
//	@Param			provider	query		string	false	"Filter by describer backend"
//	@Param			limit		query		int		false	"Maximum results (default 100)"
//	@Success		200			{object}	ListMetricsResponse
//	@Failure		400			{object}	ErrorResponse
//	@Router			/api/metrics/list [get]
func (e *ListMetricsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	result := svcctx.MetricsFrom(r.Context()).List(f, limit)
	if result == nil {
		result = []metrics.Metric{}
	}
	writeJSON(w, http.StatusOK, ListMetricsResponse{
		Metrics: result,
		Count:   len(result),
	})
}

func (e *ListMetricsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "metrics-list",
		Short: "List recent describe attempts",
	}
	query := filterFlags(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		client := api.NewClient(getServerURL())
		path := "/api/metrics/list" + query()
		if path == "/api/metrics/list" {
			path += "?"
		} else {
			path += "&"
		}
		path += "limit=" + strconv.Itoa(limit)

		var resp ListMetricsResponse
		if err := client.Get(cmd.Context(), path, &resp); err != nil {
			return err
		}
		if api.IsStructuredOutput() {
			return api.Output(resp)
		}
		for _, m := range resp.Metrics {
			status := "ok"
			if !m.Success {
				status = m.ErrorType
			}
			fmt.Printf("%s  p%-4d try %d  %-10s %-24s %6.2fs  %s\n",
				m.CreatedAt.Format(time.TimeOnly), m.Page, m.Attempt, m.Provider, m.Model, m.ExecutionSeconds, status)
		}
		return nil
	}
	return cmd
}

package metrics

import (
	"slices"
	"time"
)

// Summary totals describe attempts matching a filter.
type Summary struct {
	Count          int           `json:"count"`
	SuccessCount   int           `json:"success_count"`
	ErrorCount     int           `json:"error_count"`
	RetryCount     int           `json:"retry_count"` // attempts after the first for an image
	Requests       int           `json:"requests"`
	Documents      int           `json:"documents"`
	TotalTokens    int           `json:"total_tokens"`
	TotalTime      time.Duration `json:"total_time"`
	AvgTokens      float64       `json:"avg_tokens"`
	AvgTimeSeconds float64       `json:"avg_time_seconds"`
	SuccessRate    float64       `json:"success_rate"`
}

// GetSummary returns a summary of metrics matching the filter.
func (r *Recorder) GetSummary(f Filter) *Summary {
	s := &Summary{}
	requests := map[string]struct{}{}
	documents := map[string]struct{}{}

	for _, m := range r.List(f, 0) {
		s.Count++
		if m.Success {
			s.SuccessCount++
		} else {
			s.ErrorCount++
		}
		if m.Attempt > 1 {
			s.RetryCount++
		}
		if m.RequestID != "" {
			requests[m.RequestID] = struct{}{}
		}
		if m.Document != "" {
			documents[m.Document] = struct{}{}
		}
		s.TotalTokens += m.TotalTokens
		s.TotalTime += time.Duration(m.ExecutionSeconds * float64(time.Second))
	}
	s.Requests = len(requests)
	s.Documents = len(documents)

	if s.Count > 0 {
		n := float64(s.Count)
		s.AvgTokens = float64(s.TotalTokens) / n
		s.AvgTimeSeconds = s.TotalTime.Seconds() / n
		s.SuccessRate = float64(s.SuccessCount) / n
	}
	return s
}

// DetailedStats adds latency percentiles, token splits and the attempt
// distribution to the basic counts.
type DetailedStats struct {
	Count        int `json:"count"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`

	// Latency in seconds
	LatencyP50 float64 `json:"latency_p50"`
	LatencyP95 float64 `json:"latency_p95"`
	LatencyP99 float64 `json:"latency_p99"`
	LatencyAvg float64 `json:"latency_avg"`
	LatencyMin float64 `json:"latency_min"`
	LatencyMax float64 `json:"latency_max"`

	TotalPromptTokens     int     `json:"total_prompt_tokens"`
	TotalCompletionTokens int     `json:"total_completion_tokens"`
	TotalTokens           int     `json:"total_tokens"`
	AvgTotalTokens        float64 `json:"avg_total_tokens"`

	// Attempts counts records by try number ("1", "2", ...).
	Attempts map[int]int `json:"attempts,omitempty"`
}

// GetDetailedStats returns detailed statistics for metrics matching the filter.
func (r *Recorder) GetDetailedStats(f Filter) *DetailedStats {
	return detailedStats(r.List(f, 0))
}

// ProviderDetailedStats returns detailed stats grouped by describer backend.
func (r *Recorder) ProviderDetailedStats(f Filter) map[string]*DetailedStats {
	grouped := make(map[string][]Metric)
	for _, m := range r.List(f, 0) {
		if m.Provider == "" {
			continue
		}
		grouped[m.Provider] = append(grouped[m.Provider], m)
	}

	out := make(map[string]*DetailedStats, len(grouped))
	for provider, ms := range grouped {
		out[provider] = detailedStats(ms)
	}
	return out
}

func detailedStats(ms []Metric) *DetailedStats {
	stats := &DetailedStats{Count: len(ms)}
	if len(ms) == 0 {
		return stats
	}

	latencies := make([]float64, 0, len(ms))
	for _, m := range ms {
		if m.Success {
			stats.SuccessCount++
		} else {
			stats.ErrorCount++
		}
		if m.Attempt > 0 {
			if stats.Attempts == nil {
				stats.Attempts = make(map[int]int)
			}
			stats.Attempts[m.Attempt]++
		}
		stats.TotalPromptTokens += m.PromptTokens
		stats.TotalCompletionTokens += m.CompletionTokens
		stats.TotalTokens += m.TotalTokens
		if m.ExecutionSeconds > 0 {
			latencies = append(latencies, m.ExecutionSeconds)
		}
	}
	stats.AvgTotalTokens = float64(stats.TotalTokens) / float64(stats.Count)

	if len(latencies) == 0 {
		return stats
	}
	slices.Sort(latencies)

	var sum float64
	for _, l := range latencies {
		sum += l
	}
	stats.LatencyAvg = sum / float64(len(latencies))
	stats.LatencyMin = latencies[0]
	stats.LatencyMax = latencies[len(latencies)-1]
	stats.LatencyP50 = percentile(latencies, 50)
	stats.LatencyP95 = percentile(latencies, 95)
	stats.LatencyP99 = percentile(latencies, 99)
	return stats
}

// percentile interpolates linearly between the closest ranks of sorted values.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

package metrics

import "time"

// Filter specifies query filters.
type Filter struct {
	RequestID string
	Document  string
	Provider  string
	Model     string
	After     time.Time
	Before    time.Time
	Success   *bool // nil = any, true = success only, false = errors only
}

func (f Filter) matches(m Metric) bool {
	if f.RequestID != "" && m.RequestID != f.RequestID {
		return false
	}
	if f.Document != "" && m.Document != f.Document {
		return false
	}
	if f.Provider != "" && m.Provider != f.Provider {
		return false
	}
	if f.Model != "" && m.Model != f.Model {
		return false
	}
	if !f.After.IsZero() && !m.CreatedAt.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !m.CreatedAt.Before(f.Before) {
		return false
	}
	if f.Success != nil && m.Success != *f.Success {
		return false
	}
	return true
}

// List returns metrics matching the filter, newest first.
// A limit of 0 returns all matches.
func (r *Recorder) List(f Filter, limit int) []Metric {
	out := []Metric{}
	if r == nil {
		return out
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.metrics) - 1; i >= 0; i-- {
		if !f.matches(r.metrics[i]) {
			continue
		}
		out = append(out, r.metrics[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

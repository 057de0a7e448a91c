package metrics

// CallsByProvider returns the number of calls per provider.
func (r *Recorder) CallsByProvider(f Filter) map[string]int {
	breakdown := make(map[string]int)
	for _, m := range r.List(f, 0) {
		breakdown[m.Provider]++
	}
	return breakdown
}

// TokensByModel returns token usage per model.
func (r *Recorder) TokensByModel(f Filter) map[string]int {
	breakdown := make(map[string]int)
	for _, m := range r.List(f, 0) {
		if m.Model == "" {
			continue
		}
		breakdown[m.Model] += m.TotalTokens
	}
	return breakdown
}

// ErrorsByType returns the number of failed calls per error type.
func (r *Recorder) ErrorsByType(f Filter) map[string]int {
	failed := false
	f.Success = &failed

	breakdown := make(map[string]int)
	for _, m := range r.List(f, 0) {
		breakdown[m.ErrorType]++
	}
	return breakdown
}

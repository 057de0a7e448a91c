package reconstruct

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/docling"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
)

// Defaults for enrichment.
const (
	DefaultMaxTries       = 3
	DefaultRetryDelay     = 2 * time.Second
	DefaultMaxConcurrency = 8
)

// Config configures a Reconstructor.
type Config struct {
	Describer providers.Describer

	// Prompt defaults to providers.DefaultPrompt.
	Prompt string
	// MaxTries per image (default: 3).
	MaxTries int
	// RetryDelay between tries of one image (default: 2s).
	RetryDelay time.Duration
	// MaxConcurrency bounds in-flight describe calls (default: 8, negative = unbounded).
	MaxConcurrency int
	// PageBreak separates pages in the markdown rendering (default: "[PAGE BREAK]").
	PageBreak string

	Metrics *metrics.Recorder // optional
	Logger  *slog.Logger
}

// Reconstructor turns conversion results into page output.
type Reconstructor struct {
	describer      providers.Describer
	prompt         string
	maxTries       int
	retryDelay     time.Duration
	maxConcurrency int
	pageBreak      string
	metrics        *metrics.Recorder
	logger         *slog.Logger
}

// New creates a Reconstructor.
func New(cfg Config) (*Reconstructor, error) {
	if cfg.Describer == nil {
		return nil, fmt.Errorf("describer is required")
	}
	if cfg.Prompt == "" {
		cfg.Prompt = providers.DefaultPrompt
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = DefaultMaxTries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.PageBreak == "" {
		cfg.PageBreak = docling.DefaultPageBreak
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Reconstructor{
		describer:      cfg.Describer,
		prompt:         cfg.Prompt,
		maxTries:       cfg.MaxTries,
		retryDelay:     cfg.RetryDelay,
		maxConcurrency: cfg.MaxConcurrency,
		pageBreak:      cfg.PageBreak,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}, nil
}

// Describer returns the describer used for enrichment.
func (r *Reconstructor) Describer() providers.Describer {
	return r.describer
}

// ProcessJSON decodes a conversion result and reconstructs it.
func (r *Reconstructor) ProcessJSON(ctx context.Context, data []byte) (Pages, error) {
	resp, err := docling.Decode(data)
	if err != nil {
		return nil, err
	}
	return r.Process(ctx, resp)
}

// Process reconstructs a decoded conversion result. It fails only when the
// result carries no document tree; errors then wrap docling.ErrMalformedDocument.
func (r *Reconstructor) Process(ctx context.Context, resp *docling.Response) (Pages, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", docling.ErrMalformedDocument)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	doc := resp.Document
	format := doc.Format()

	t := Traverse(doc.JSONContent, format, r.logger)
	jobs := t.Jobs
	if format.Paginated() {
		jobs = append(jobs, CollectMarkdownImages(doc.MDContent, r.pageBreak)...)
	}

	opts := metrics.RecordOpts{RequestID: uuid.New().String(), Document: doc.Filename}
	images := r.Enrich(ctx, jobs, opts)

	order := OrderFor(format, t.Elements)
	pages := Merge(t.Elements, images, order)

	r.logger.Info("document reconstructed",
		"document", doc.Filename,
		"format", format,
		"order", order.String(),
		"pages", len(pages),
		"elements", len(t.Elements),
		"images", len(images),
		"duration", time.Since(start))
	return pages, nil
}

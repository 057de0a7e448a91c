package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
)

// FallbackDescription replaces the description of an image whose every try failed.
const FallbackDescription = "Error: Failed to process image after multiple attempts."

// Enrich describes every job concurrently and returns one output per job,
// index-aligned with jobs. It returns only after every job has finished.
// A job that exhausts its tries yields a fallback output instead of an error.
func (r *Reconstructor) Enrich(ctx context.Context, jobs []ImageJob, opts metrics.RecordOpts) []ImageOutput {
	outputs := make([]ImageOutput, len(jobs))
	if len(jobs) == 0 {
		return outputs
	}

	var g errgroup.Group
	if r.maxConcurrency > 0 {
		g.SetLimit(r.maxConcurrency)
	}
	for i, job := range jobs {
		g.Go(func() error {
			outputs[i] = r.enrichOne(ctx, job, opts)
			return nil
		})
	}
	_ = g.Wait()
	return outputs
}

func (r *Reconstructor) enrichOne(ctx context.Context, job ImageJob, opts metrics.RecordOpts) ImageOutput {
	opts.Page = job.Page
	attempt := 0

	d, err := retry.DoWithData(
		func() (*providers.Description, error) {
			attempt++
			opts.Attempt = attempt
			return r.describe(ctx, job, opts)
		},
		retry.Context(ctx),
		retry.Attempts(uint(r.maxTries)),
		retry.Delay(r.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("failed to describe image",
				"uri", truncateURI(job.URI),
				"page", job.Page,
				"attempt", n+1,
				"max_tries", r.maxTries,
				"error", err)
		}),
	)
	if err != nil {
		r.logger.Error("all retries failed for image",
			"uri", truncateURI(job.URI),
			"page", job.Page,
			"max_tries", r.maxTries,
			"error", err)
		return ImageOutput{Page: job.Page, Title: job.Label, Description: FallbackDescription}
	}
	return ImageOutput{Page: job.Page, Title: d.Title, Description: d.Description}
}

// describe issues one try. A free-form answer must contain a JSON object.
func (r *Reconstructor) describe(ctx context.Context, job ImageJob, opts metrics.RecordOpts) (*providers.Description, error) {
	start := time.Now()
	result, err := r.describer.Describe(ctx, &providers.DescribeRequest{
		ImageURI:  job.URI,
		Prompt:    r.prompt,
		PageNo:    job.Page,
		RequestID: opts.RequestID,
	})
	if err != nil {
		r.metrics.RecordError(opts, r.describer.Name(), errorType(err), time.Since(start))
		return nil, err
	}

	d := result.Structured
	if d == nil {
		d, err = providers.ParseDescription(result.Content)
		if err != nil {
			r.metrics.RecordError(opts, r.describer.Name(), errorType(err), time.Since(start))
			return nil, fmt.Errorf("failed to parse description: %w", err)
		}
	}

	if err := r.metrics.RecordDescribe(opts, result); err != nil {
		r.logger.Debug("failed to record metric", "error", err)
	}
	return d, nil
}

func errorType(err error) string {
	var rateLimited *providers.RateLimitError
	switch {
	case errors.As(err, &rateLimited):
		return "rate_limit"
	case errors.Is(err, providers.ErrNoStructuredOutput):
		return "no_structured_output"
	case errors.Is(err, providers.ErrInvalidDataURI):
		return "invalid_data_uri"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "describe_failed"
	}
}

// truncateURI shortens inline data URIs for logging.
func truncateURI(uri string) string {
	const limit = 64
	if len(uri) <= limit {
		return uri
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(uri[cut]) {
		cut--
	}
	return uri[:cut] + "..."
}

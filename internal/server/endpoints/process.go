package endpoints

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/reconstruct"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// maxResultBytes bounds a conversion result posted to /api/process/json.
const maxResultBytes = 512 << 20

// newReconstructor binds the named describer (or the configured default) to
// the current enrichment settings. Errors carry the HTTP status to answer with.
func newReconstructor(ctx context.Context, describer string) (*reconstruct.Reconstructor, int, error) {
	registry := svcctx.RegistryFrom(ctx)
	if registry == nil {
		return nil, http.StatusServiceUnavailable, errors.New("describer registry not initialized")
	}

	cfg := config.DefaultConfig()
	if cm := svcctx.ConfigManagerFrom(ctx); cm != nil {
		cfg = cm.Get()
	}
	notFound := http.StatusBadRequest
	if describer == "" {
		describer = cfg.Enrichment.Describer
		notFound = http.StatusServiceUnavailable
	}

	d, err := registry.Get(describer)
	if err != nil {
		return nil, notFound, err
	}

	rc, err := reconstruct.New(cfg.ReconstructConfig(d, svcctx.MetricsFrom(ctx), svcctx.LoggerFrom(ctx)))
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return rc, 0, nil
}

// ProcessEndpoint handles POST /api/process.
type ProcessEndpoint struct{}

var _ api.Endpoint = (*ProcessEndpoint)(nil)

func (e *ProcessEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/process", e.handler
}

func (e *ProcessEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Convert and reconstruct a document
//	@Description	Uploads the document to the conversion backend, waits for the result,
//	@Description	and returns per-page text with described images keyed by page number
//	@Tags			process
//	@Accept			mpfd
//	@Produce		json
//	@Param			file		formData	file	true	"Document to process"
//	@Param			describer	query		string	false	"Describer name (defaults to enrichment.describer)"
//	@Success		200			{object}	map[string]reconstruct.Page
//	@Failure		400			{object}	ErrorResponse
//	@Failure		422			{object}	ErrorResponse
//	@Failure		502			{object}	ErrorResponse
//	@Router			/api/process [post]
func (e *ProcessEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := svcctx.LoggerFrom(ctx)

	rc, status, err := newReconstructor(ctx, r.URL.Query().Get("describer"))
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	u, status, err := readUpload(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	defer u.Close()

	task, status, err := startConversion(ctx, u)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	raw, err := svcctx.DoclingFrom(ctx).WaitForResult(ctx, task.TaskID)
	if err != nil {
		logger.Error("conversion failed", "task_id", task.TaskID, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	pages, err := rc.ProcessJSON(ctx, raw)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	if pages.Exceeds(u.pageCount) {
		logger.Warn("reconstructed page beyond document length",
			"filename", u.filename,
			"last_page", pages.Last(),
			"page_count", u.pageCount)
	}

	writeJSON(w, http.StatusOK, pages)
}

func (e *ProcessEndpoint) Command(getServerURL func() string) *cobra.Command {
	var describer string
	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Convert a document on the server and reconstruct its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var pages reconstruct.Pages
			if err := client.PostFile(cmd.Context(), processPath("/api/process", describer), args[0], &pages); err != nil {
				return err
			}
			return api.Output(pages)
		},
	}
	cmd.Flags().StringVar(&describer, "describer", "", "Describer name (defaults to the server's enrichment.describer)")
	return cmd
}

// ProcessJSONEndpoint handles POST /api/process/json.
type ProcessJSONEndpoint struct{}

func (e *ProcessJSONEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/process/json", e.handler
}

func (e *ProcessJSONEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Reconstruct an already-converted document
//	@Tags			process
//	@Accept			json
//	@Produce		json
//	@Param			describer	query		string	false	"Describer name (defaults to enrichment.describer)"
//	@Success		200			{object}	map[string]reconstruct.Page
//	@Failure		400			{object}	ErrorResponse
//	@Failure		422			{object}	ErrorResponse
//	@Router			/api/process/json [post]
func (e *ProcessJSONEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rc, status, err := newReconstructor(ctx, r.URL.Query().Get("describer"))
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxResultBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read body: %v", err))
		return
	}

	pages, err := rc.ProcessJSON(ctx, body)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pages)
}

func (e *ProcessJSONEndpoint) Command(getServerURL func() string) *cobra.Command {
	var describer string
	cmd := &cobra.Command{
		Use:   "process-json <result.json>",
		Short: "Reconstruct an already-converted document on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			client := api.NewClient(getServerURL())
			var pages reconstruct.Pages
			path := processPath("/api/process/json", describer)
			if err := client.PostRaw(cmd.Context(), path, "application/json", bytes.NewReader(data), &pages); err != nil {
				return err
			}
			return api.Output(pages)
		},
	}
	cmd.Flags().StringVar(&describer, "describer", "", "Describer name (defaults to the server's enrichment.describer)")
	return cmd
}

func processPath(path, describer string) string {
	if describer == "" {
		return path
	}
	return path + "?" + url.Values{"describer": {describer}}.Encode()
}

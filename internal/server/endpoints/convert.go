package endpoints

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/docling"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// ConvertEndpoint handles POST /api/convert.
type ConvertEndpoint struct{}

var _ api.Endpoint = (*ConvertEndpoint)(nil)

func (e *ConvertEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/convert", e.handler
}

func (e *ConvertEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start a document conversion
//	@Description	Upload a document to the conversion backend and return the task status
//	@Tags			convert
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"Document to convert"
//	@Success		202		{object}	docling.TaskStatus
//	@Failure		400		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Router			/api/convert [post]
func (e *ConvertEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, status, err := readUpload(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	defer u.Close()

	task, status, err := startConversion(r.Context(), u)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (e *ConvertEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <file>",
		Short: "Upload a document to the conversion backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var task docling.TaskStatus
			if err := client.PostFile(cmd.Context(), "/api/convert", args[0], &task); err != nil {
				return err
			}
			return api.Output(task)
		},
	}
}

// ConvertStatusEndpoint handles GET /api/convert/status/{task_id}.
type ConvertStatusEndpoint struct{}

func (e *ConvertStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/convert/status/{task_id}", e.handler
}

func (e *ConvertStatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Poll a conversion task
//	@Tags			convert
//	@Produce		json
//	@Param			task_id	path		string	true	"Conversion task ID"
//	@Success		200		{object}	docling.TaskStatus
//	@Failure		502		{object}	ErrorResponse
//	@Router			/api/convert/status/{task_id} [get]
func (e *ConvertStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	client := svcctx.DoclingFrom(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "conversion backend not initialized")
		return
	}

	status, err := client.PollStatus(r.Context(), taskID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (e *ConvertStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "convert-status <task_id>",
		Short: "Poll a conversion task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var status docling.TaskStatus
			if err := client.Get(cmd.Context(), "/api/convert/status/"+args[0], &status); err != nil {
				return err
			}
			return api.Output(status)
		},
	}
}

// ConvertResultEndpoint handles GET /api/convert/result/{task_id}.
type ConvertResultEndpoint struct{}

func (e *ConvertResultEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/convert/result/{task_id}", e.handler
}

func (e *ConvertResultEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Fetch a conversion result
//	@Description	Returns the backend's result document (markdown and structural JSON) unchanged
//	@Tags			convert
//	@Produce		json
//	@Param			task_id	path		string	true	"Conversion task ID"
//	@Success		200		{object}	docling.Response
//	@Failure		502		{object}	ErrorResponse
//	@Router			/api/convert/result/{task_id} [get]
func (e *ConvertResultEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	client := svcctx.DoclingFrom(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "conversion backend not initialized")
		return
	}

	raw, err := client.Result(r.Context(), taskID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func (e *ConvertResultEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "convert-result <task_id>",
		Short: "Fetch the result of a finished conversion task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var result map[string]any
			if err := client.Get(cmd.Context(), "/api/convert/result/"+args[0], &result); err != nil {
				return err
			}
			if outputFile != "" {
				if err := api.OutputToFile(result, outputFile); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Wrote %s\n", outputFile)
				return nil
			}
			return api.Output(result)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "file", "f", "", "Write the result to a file")
	return cmd
}

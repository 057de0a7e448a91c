package endpoints

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/jackzampolin/folio/internal/docling"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// maxUploadMemory bounds the in-memory part of a multipart upload; the rest spills to disk.
const maxUploadMemory = 64 << 20

// upload is a document received as multipart field "file".
type upload struct {
	form        *multipart.Form
	file        multipart.File
	filename    string
	contentType string
	format      docling.Format
	pageCount   int // PDF only
}

// Close releases the upload and any temporary files the form spilled to disk.
func (u *upload) Close() error {
	err := u.file.Close()
	if rmErr := u.form.RemoveAll(); err == nil {
		err = rmErr
	}
	return err
}

// readUpload parses the request form and identifies the uploaded document.
// Errors carry the HTTP status to answer with.
func readUpload(r *http.Request) (*upload, int, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("failed to parse form: %w", err)
	}

	file, fh, err := r.FormFile("file")
	if err != nil {
		r.MultipartForm.RemoveAll()
		return nil, http.StatusBadRequest, errors.New("no file uploaded (expected form field \"file\")")
	}

	u := &upload{
		form:        r.MultipartForm,
		file:        file,
		filename:    fh.Filename,
		contentType: fh.Header.Get("Content-Type"),
	}

	u.format, err = docling.DetectFormat(fh.Filename)
	if err != nil {
		u.Close()
		return nil, http.StatusBadRequest, err
	}

	if u.format.Paginated() {
		u.pageCount, err = docling.PageCount(file, u.format)
		if err != nil {
			u.Close()
			return nil, http.StatusBadRequest, fmt.Errorf("invalid PDF %s: %w", fh.Filename, err)
		}
	}
	return u, 0, nil
}

// startConversion hands an upload to the conversion backend.
func startConversion(ctx context.Context, u *upload) (*docling.TaskStatus, int, error) {
	client := svcctx.DoclingFrom(ctx)
	if client == nil {
		return nil, http.StatusServiceUnavailable, errors.New("conversion backend not initialized")
	}

	task, err := client.StartConvert(ctx, u.filename, u.contentType, u.file)
	if err != nil {
		return nil, statusFor(err), err
	}

	svcctx.LoggerFrom(ctx).Debug("upload accepted",
		"task_id", task.TaskID,
		"filename", u.filename,
		"pages", u.pageCount)
	return task, 0, nil
}

// statusFor maps pipeline and backend errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, docling.ErrMalformedDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, docling.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

package endpoints

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/swaggo/swag"

	"github.com/jackzampolin/folio/internal/api"
)

// DefaultSwaggerPath is where `go generate ./docs` writes the OpenAPI document.
const DefaultSwaggerPath = "docs/swagger/swagger.json"

// SwaggerEndpoint serves the OpenAPI document from SpecPath, or from the
// swag registry when the file is absent.
type SwaggerEndpoint struct {
	SpecPath string
}

func (e *SwaggerEndpoint) Route() (string, string, http.HandlerFunc) {
	return http.MethodGet, "/swagger.json", e.handler
}

func (e *SwaggerEndpoint) RequiresInit() bool { return false }

func (e *SwaggerEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	doc, ok := e.load()
	if !ok {
		writeError(w, http.StatusNotFound, "swagger.json not found; run go generate ./docs")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(doc)
}

func (e *SwaggerEndpoint) load() ([]byte, bool) {
	path := e.SpecPath
	if path == "" {
		path = DefaultSwaggerPath
	}
	if data, err := os.ReadFile(path); err == nil {
		return data, true
	}
	if doc, err := swag.ReadDoc(); err == nil && doc != "" {
		return []byte(doc), true
	}
	return nil, false
}

func (e *SwaggerEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "swagger",
		Short: "Fetch the OpenAPI document from the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var spec map[string]any
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/swagger.json", &spec); err != nil {
				return err
			}
			if outputFile != "" {
				return api.OutputToFile(spec, outputFile)
			}
			return api.Output(spec)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "file", "f", "", "Write the document to a file")
	return cmd
}

// SwaggerSpecPath prefers a document installed next to the executable.
func SwaggerSpecPath() string {
	if exe, err := os.Executable(); err == nil {
		p := filepath.Join(filepath.Dir(exe), DefaultSwaggerPath)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return DefaultSwaggerPath
}

package endpoints

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// ListDescribersResponse lists registered describers.
type ListDescribersResponse struct {
	Describers []providers.DescriberInfo `json:"describers"`
	Default    string                    `json:"default,omitempty"`
}

// ListDescribersEndpoint handles GET /api/describers.
type ListDescribersEndpoint struct{}

func (e *ListDescribersEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/describers", e.handler
}

func (e *ListDescribersEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List describers
//	@Tags			describers
//	@Produce		json
//	@Success		200	{object}	ListDescribersResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/describers [get]
func (e *ListDescribersEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	registry := svcctx.RegistryFrom(r.Context())
	if registry == nil {
		writeError(w, http.StatusServiceUnavailable, "describer registry not initialized")
		return
	}

	resp := ListDescribersResponse{Describers: registry.Info()}
	if cm := svcctx.ConfigManagerFrom(r.Context()); cm != nil {
		resp.Default = cm.Get().Enrichment.Describer
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListDescribersEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "describers",
		Short: "List registered image describers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListDescribersResponse
			if err := client.Get(cmd.Context(), "/api/describers", &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("NAME", "TYPE", "MODEL", "CALLS", "DEFAULT")
			for _, d := range resp.Describers {
				def := ""
				if d.Name == resp.Default {
					def = "*"
				}
				t.Row(d.Name, d.Type, d.Model, strconv.FormatInt(d.Limit.Calls, 10), def)
			}
			fmt.Println(t)
			return nil
		},
	}
}

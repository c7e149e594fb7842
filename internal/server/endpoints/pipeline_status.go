package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/pipeline"
	"github.com/asp2131/storia/internal/svcctx"
)

// PipelineStatusEndpoint handles GET /v1/pipeline/status.
type PipelineStatusEndpoint struct{}

func (e *PipelineStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/v1/pipeline/status", e.handler
}

func (e *PipelineStatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Pipeline status
//	@Description	Active books, the admission queue, and worker pool health
//	@Tags			pipeline
//	@Produce		json
//	@Success		200	{object}	pipeline.Status
//	@Failure		503	{object}	ErrorResponse
//	@Router			/v1/pipeline/status [get]
func (e *PipelineStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scheduler := svcctx.SchedulerFrom(ctx)
	if scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not initialized")
		return
	}

	writeJSON(w, http.StatusOK, scheduler.Status(ctx))
}

func (e *PipelineStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp pipeline.Status
			if err := client.Get(ctx, "/v1/pipeline/status", &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
}

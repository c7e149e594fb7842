package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/cache"
	"github.com/asp2131/storia/internal/svcctx"
)

// CacheStatsEndpoint handles GET /v1/cache/stats.
type CacheStatsEndpoint struct{}

func (e *CacheStatsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/v1/cache/stats", e.handler
}

func (e *CacheStatsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Soundscape cache stats
//	@Description	Cache entry count and hit/miss/discard counters since server start
//	@Tags			cache
//	@Produce		json
//	@Success		200	{object}	cache.Stats
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/v1/cache/stats [get]
func (e *CacheStatsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := svcctx.CacheFrom(ctx)
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "cache not initialized")
		return
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read cache stats: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (e *CacheStatsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show soundscape cache stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp cache.Stats
			if err := client.Get(ctx, "/v1/cache/stats", &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
}

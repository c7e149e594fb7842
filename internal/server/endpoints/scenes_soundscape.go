package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/store"
	"github.com/asp2131/storia/internal/svcctx"
)

// OverrideSoundscapeRequest is the request body for replacing a scene's
// soundscape during review.
type OverrideSoundscapeRequest struct {
	URL          string `json:"url"`
	DurationSecs int    `json:"duration_secs"`
	Format       string `json:"format,omitempty"` // default mp3
	Prompt       string `json:"prompt,omitempty"`
}

// OverrideSoundscapeResponse is the response after an override.
type OverrideSoundscapeResponse struct {
	SceneID    string            `json:"scene_id"`
	Soundscape *store.Soundscape `json:"soundscape"`
}

// OverrideSoundscapeEndpoint handles PUT /v1/scenes/{id}/soundscape.
type OverrideSoundscapeEndpoint struct{}

func (e *OverrideSoundscapeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/v1/scenes/{id}/soundscape", e.handler
}

func (e *OverrideSoundscapeEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Override a scene's soundscape
//	@Description	Replace a scene's soundscape with a reviewer-supplied one. The record is marked source=override and never enters the reuse cache.
//	@Tags			scenes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Scene ID"
//	@Param			request	body		OverrideSoundscapeRequest	true	"Replacement soundscape"
//	@Success		200		{object}	OverrideSoundscapeResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/v1/scenes/{id}/soundscape [put]
func (e *OverrideSoundscapeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req OverrideSoundscapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.DurationSecs <= 0 {
		writeError(w, http.StatusBadRequest, "duration_secs must be positive")
		return
	}
	if req.Format == "" {
		req.Format = "mp3"
	}

	ctx := r.Context()
	st := svcctx.StoreFrom(ctx)
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	id := r.PathValue("id")
	scene, err := st.GetScene(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get scene: %v", err))
		return
	}
	if scene == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("scene %s not found", id))
		return
	}

	// Overrides carry no fingerprint and no object key: they are external
	// audio, so they never enter the reuse cache and are not served from
	// object storage.
	soundscape := &store.Soundscape{
		SceneID:      scene.ID,
		BookID:       scene.BookID,
		Prompt:       req.Prompt,
		URL:          req.URL,
		DurationSecs: req.DurationSecs,
		Source:       store.SourceOverride,
		Format:       req.Format,
	}
	if err := st.InsertSoundscape(ctx, soundscape); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to insert soundscape: %v", err))
		return
	}
	if err := st.AttachSoundscape(ctx, scene.ID, soundscape.ID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to attach soundscape: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, OverrideSoundscapeResponse{SceneID: scene.ID, Soundscape: soundscape})
}

func (e *OverrideSoundscapeEndpoint) Command(getServerURL func() string) *cobra.Command {
	var duration int
	var format, prompt string
	cmd := &cobra.Command{
		Use:   "override <scene-id> <url>",
		Short: "Replace a scene's soundscape with external audio",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp OverrideSoundscapeResponse
			err := client.Put(ctx, "/v1/scenes/"+args[0]+"/soundscape", OverrideSoundscapeRequest{
				URL:          args[1],
				DurationSecs: duration,
				Format:       format,
				Prompt:       prompt,
			}, &resp)
			if err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&duration, "duration", 20, "Audio duration in seconds")
	cmd.Flags().StringVar(&format, "format", "mp3", "Audio format")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Optional description of the replacement audio")
	return cmd
}

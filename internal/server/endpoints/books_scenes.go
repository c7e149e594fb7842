package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/descriptor"
	"github.com/asp2131/storia/internal/svcctx"
)

// SoundscapeView is the playback slice of a soundscape record.
type SoundscapeView struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	DurationSecs int    `json:"duration_secs"`
	Source       string `json:"source"`
	Format       string `json:"format"`
	Prompt       string `json:"prompt,omitempty"`
	DownloadURL  string `json:"download_url,omitempty"`
}

// SceneView is one scene with its descriptors and attached soundscape.
type SceneView struct {
	ID          string          `json:"id"`
	Index       int             `json:"index"`
	StartPage   int             `json:"start_page"`
	EndPage     int             `json:"end_page"`
	Descriptors descriptor.Set  `json:"descriptors"`
	Soundscape  *SoundscapeView `json:"soundscape,omitempty"`
}

// BookScenesResponse is the scene list for one book.
type BookScenesResponse struct {
	BookID string      `json:"book_id"`
	Scenes []SceneView `json:"scenes"`
	Count  int         `json:"count"`
}

// BookScenesEndpoint handles GET /v1/books/{id}/scenes.
type BookScenesEndpoint struct{}

func (e *BookScenesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/v1/books/{id}/scenes", e.handler
}

func (e *BookScenesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List book scenes
//	@Description	List a book's scenes with page ranges, descriptors, and soundscape playback fields
//	@Tags			books,scenes
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	BookScenesResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/v1/books/{id}/scenes [get]
func (e *BookScenesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := svcctx.StoreFrom(ctx)
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	id := r.PathValue("id")
	book, err := st.GetBook(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get book: %v", err))
		return
	}
	if book == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("book %s not found", id))
		return
	}

	scenes, err := st.ListScenes(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list scenes: %v", err))
		return
	}

	resp := BookScenesResponse{BookID: id, Scenes: make([]SceneView, 0, len(scenes))}
	for _, scene := range scenes {
		view := SceneView{
			ID:          scene.ID,
			Index:       scene.Index,
			StartPage:   scene.StartPage,
			EndPage:     scene.EndPage,
			Descriptors: scene.Descriptors,
		}
		if scene.SoundscapeID != "" {
			soundscape, err := st.GetSoundscape(ctx, scene.SoundscapeID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get soundscape: %v", err))
				return
			}
			if soundscape != nil {
				view.Soundscape = &SoundscapeView{
					ID:           soundscape.ID,
					URL:          soundscape.URL,
					DurationSecs: soundscape.DurationSecs,
					Source:       soundscape.Source,
					Format:       soundscape.Format,
					Prompt:       soundscape.Prompt,
				}
				if soundscape.ObjectKey != "" {
					view.Soundscape.DownloadURL = "/v1/soundscapes/" + soundscape.ID + "/audio"
				}
			}
		}
		resp.Scenes = append(resp.Scenes, view)
	}
	resp.Count = len(resp.Scenes)

	writeJSON(w, http.StatusOK, resp)
}

func (e *BookScenesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "scenes <book-id>",
		Short: "List a book's scenes with their soundscapes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp BookScenesResponse
			if err := client.Get(ctx, "/v1/books/"+args[0]+"/scenes", &resp); err != nil {
				return err
			}

			return api.Output(resp)
		},
	}
}

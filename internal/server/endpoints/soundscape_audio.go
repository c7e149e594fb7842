package endpoints

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/svcctx"
)

// SoundscapeAudioEndpoint handles GET /v1/soundscapes/{id}/audio.
type SoundscapeAudioEndpoint struct{}

func (e *SoundscapeAudioEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/v1/soundscapes/{id}/audio", e.handler
}

func (e *SoundscapeAudioEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Download soundscape audio
//	@Description	Stream the audio bytes of a synthesized soundscape from object storage
//	@Tags			scenes
//	@Produce		audio/mpeg
//	@Param			id	path		string	true	"Soundscape ID"
//	@Success		200	{file}		file
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/v1/soundscapes/{id}/audio [get]
func (e *SoundscapeAudioEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := svcctx.StoreFrom(ctx)
	objects := svcctx.ObjectsFrom(ctx)
	if st == nil || objects == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not initialized")
		return
	}

	id := r.PathValue("id")
	soundscape, err := st.GetSoundscape(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get soundscape: %v", err))
		return
	}
	if soundscape == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("soundscape %s not found", id))
		return
	}
	if soundscape.ObjectKey == "" {
		// Override records point at external audio; there is nothing to
		// serve from object storage.
		writeError(w, http.StatusNotFound, fmt.Sprintf("soundscape %s has no stored audio", id))
		return
	}

	data, err := objects.Get(ctx, soundscape.ObjectKey)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("audio object missing: %v", err))
		return
	}

	w.Header().Set("Content-Type", audioContentType(soundscape.Format))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.Write(data)
}

// audioContentType maps a soundscape format to its MIME type.
func audioContentType(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}

func (e *SoundscapeAudioEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "audio <soundscape-id>",
		Short: "Download a soundscape's audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			data, err := client.GetRaw(ctx, "/v1/soundscapes/"+args[0]+"/audio")
			if err != nil {
				return err
			}

			out := outputFile
			if out == "" {
				out = args[0] + ".mp3"
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Printf("Wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (default <soundscape-id>.mp3)")
	return cmd
}

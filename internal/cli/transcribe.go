package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fmueller/voxserve/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type transcriptOutput struct {
	Transcription    string `json:"transcription"`
	DetectedLanguage string `json:"detectedLanguage"`
}

func newTranscribeCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file and print the JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audioPath := filepath.Clean(args[0])
			data, err := os.ReadFile(audioPath)
			if err != nil {
				return fmt.Errorf("audio file not found: %w", err)
			}

			svc, err := app.buildService(cmd.Context())
			if err != nil {
				return err
			}

			stopSpinner := startSpinner(cmd.Context(), cmd.ErrOrStderr(), app.progressEnabled(), "Transcribing")
			res, err := svc.TranscribeBytes(cmd.Context(), data)
			stopSpinner()
			if err != nil {
				return err
			}

			if whisper.IsBlankTranscript(res.Text) {
				app.log().Warn("No speech detected in the input audio.", zap.String("audio", audioPath))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(transcriptOutput{Transcription: res.Text, DetectedLanguage: res.Language})
		},
	}
}

// ensureModelAvailable resolves the configured model, downloading it when
// missing and auto-download is enabled.
func (a *appState) ensureModelAvailable(ctx context.Context) (whisper.ResolvedModel, error) {
	resolved, err := a.resolveModel()
	if err != nil {
		return whisper.ResolvedModel{}, err
	}
	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !a.cfg.Whisper.AutoDownload {
		return whisper.ResolvedModel{}, fmt.Errorf("model %q is missing at %s; run `voxserve setup --model %s` or use --auto-download=true", resolved.Name, resolved.Path, resolved.Name)
	}

	if err := a.fetchModel(ctx, resolved, resolved.SHA256); err != nil {
		return whisper.ResolvedModel{}, err
	}
	resolved.NeedsDownload = false
	return resolved, nil
}

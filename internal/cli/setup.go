package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fmueller/voxserve/internal/download"
	"github.com/fmueller/voxserve/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSetupCmd(app *appState) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Download and verify speech model assets",
		Long: "Download the configured whisper model into the model directory, or verify the\n" +
			"checksum of a copy that is already there. Run this before `voxserve serve` when\n" +
			"auto-download is disabled.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolved, err := app.resolveModel()
			if err != nil {
				return err
			}
			if resolved.IsCustomPath {
				return fmt.Errorf("setup expects a named model (%v); got custom path %s", whisper.ModelNames(), resolved.Path)
			}

			checksum, err := expectedChecksum(cmd.Context(), resolved)
			if err != nil {
				return err
			}

			if !resolved.NeedsDownload && !force {
				err := download.VerifyFileChecksum(resolved.Path, checksum)
				if err == nil {
					app.log().Info("model already present", zap.String("model", resolved.Name), zap.String("path", resolved.Path))
					fmt.Fprintf(cmd.OutOrStdout(), "Model %s already present at %s\n", resolved.Name, resolved.Path)
					return nil
				}
				app.log().Warn("model checksum verification failed; downloading fresh copy", zap.String("model", resolved.Name), zap.Error(err))
			}

			if err := app.fetchModel(cmd.Context(), resolved, checksum); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s installed at %s\n", resolved.Name, resolved.Path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Download the model even if a verified copy exists")
	return cmd
}

func (a *appState) resolveModel() (whisper.ResolvedModel, error) {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return whisper.ResolvedModel{}, err
	}
	return whisper.ResolveModel(a.cfg.Whisper.Model, modelDir)
}

// expectedChecksum prefers the pinned digest and falls back to the model's
// checksum URL. An empty result means the model is not verified.
func expectedChecksum(ctx context.Context, model whisper.ResolvedModel) (string, error) {
	if model.SHA256 != "" || model.SHA256URL == "" {
		return model.SHA256, nil
	}
	sum, err := download.ResolveExpectedChecksum(ctx, model.SHA256URL, filepath.Base(model.Path), nil)
	if err != nil {
		return "", fmt.Errorf("resolve checksum for model %s: %w", model.Name, err)
	}
	return sum, nil
}

func (a *appState) fetchModel(ctx context.Context, model whisper.ResolvedModel, checksum string) error {
	a.log().Info("downloading model", zap.String("model", model.Name), zap.String("destination", model.Path))
	err := download.DownloadFile(ctx, download.Options{
		URL:            model.URL,
		Destination:    model.Path,
		ExpectedSHA256: checksum,
		ChecksumURL:    model.SHA256URL,
		NoProgress:     a.noProgress,
		Logger:         a.log(),
	})
	if err != nil {
		return fmt.Errorf("download model %q: %w", model.Name, err)
	}
	return nil
}

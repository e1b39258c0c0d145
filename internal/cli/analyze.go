package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/satellite-fire-service/internal/adapter/upstream"
	"github.com/couchcryptid/satellite-fire-service/internal/workflow"
)

const defaultServer = "http://localhost:8080"

func newAnalyzeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Upload an image to the service, analyze it and show the report",
		Long: `Analyze uploads a satellite image to a running fire-detection service,
requests its analysis, prints the resulting report and, with --out, exports
it as fire-detection-report-<date>.txt.

Example:
  firereport analyze --image scene.png --location "39.76,-121.62" --out reports/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, opts)
		},
	}

	cmd.Flags().String("image", "", "satellite image to upload (.jpg, .jpeg, .png, .tif, .tiff)")
	cmd.Flags().String("location", "", "place name or \"lat,lon\" for the image")
	cmd.Flags().String("server", defaultServer, "fire-detection service base URL")
	cmd.Flags().String("out", "", "directory to export the report into")
	cmd.Flags().String("format", formatText, "output format: text, json or yaml")
	cmd.Flags().Duration("timeout", 2*time.Minute, "overall request timeout")
	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *options) error {
	v := opts.v
	imagePath := v.GetString("image")
	if imagePath == "" {
		return errors.New("--image is required")
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
	defer cancel()

	logger := opts.logger(cmd.ErrOrStderr())
	client := upstream.NewClient(v.GetString("server"), &http.Client{}, logger)
	display := workflow.NewDisplay(workflow.NewFileSink(nil, v.GetString("out")))
	session := workflow.NewSession(client, display, logger)

	fileID, err := session.Upload(ctx, imagePath, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "uploaded %s as %s\n", imagePath, fileID)

	binding, err := session.Analyze(ctx, v.GetString("location"))
	if err != nil {
		return err
	}

	if err := writeVerdict(cmd.OutOrStdout(), v.GetString("format"), binding.Interpretation, binding.Report); err != nil {
		return err
	}

	if v.GetString("out") == "" {
		return nil
	}
	path, err := session.Export(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "report exported to %s\n", path)
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/satellite-fire-service/internal/domain"
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func newInterpretCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interpret [file|-]",
		Short: "Interpret analysis text or a JSON payload offline",
		Long: `Interpret reads raw analysis text or a JSON payload from a file, or from
stdin when the argument is "-" or omitted, and prints the verdict.

Example:
  firereport interpret analysis.txt --location "Butte County"
  echo '{"fireDetected": true, "probability": 0.9}' | firereport interpret --format yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runInterpret(cmd, opts, path)
		},
	}

	cmd.Flags().String("location", "", "location shown when the analysis names none")
	cmd.Flags().String("format", formatText, "output format: text, json or yaml")
	return cmd
}

func runInterpret(cmd *cobra.Command, opts *options, path string) error {
	data, err := readInput(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	in, err := domain.DecodeAnalysis(data)
	if err != nil {
		return err
	}

	it := domain.Interpret(in)
	report := domain.BuildReport(it.Verdict, it.Observations, domain.Now(), opts.v.GetString("location"))
	return writeVerdict(cmd.OutOrStdout(), opts.v.GetString("format"), it, report)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analysis: %w", err)
	}
	return data, nil
}

// verdictView is the json/yaml rendering of a verdict.
type verdictView struct {
	FireDetected      bool        `json:"fire_detected" yaml:"fire_detected"`
	Probability       float64     `json:"probability" yaml:"probability"`
	ConfidencePercent int         `json:"confidence_percent" yaml:"confidence_percent"`
	ProbabilitySource string      `json:"probability_source" yaml:"probability_source"`
	Location          string      `json:"location" yaml:"location"`
	Signals           signalsView `json:"signals" yaml:"signals"`
	Conclusion        string      `json:"conclusion" yaml:"conclusion"`
	Observations      []string    `json:"observations" yaml:"observations"`
	Date              string      `json:"date" yaml:"date"`
}

type signalsView struct {
	Smoke              bool `json:"smoke" yaml:"smoke"`
	Heat               bool `json:"heat" yaml:"heat"`
	VegetationDistress bool `json:"vegetation_distress" yaml:"vegetation_distress"`
}

func newVerdictView(it domain.Interpretation, r domain.Report) verdictView {
	texts := make([]string, len(it.Observations))
	for i, o := range it.Observations {
		texts[i] = o.Text
	}
	return verdictView{
		FireDetected:      it.Verdict.FireDetected,
		Probability:       it.Verdict.Probability,
		ConfidencePercent: it.Verdict.ConfidencePercent,
		ProbabilitySource: string(it.Estimate.Source),
		Location:          r.Location,
		Signals: signalsView{
			Smoke:              it.Signals.HasSmoke,
			Heat:               it.Signals.HasHeat,
			VegetationDistress: it.Signals.HasVegetationDistress,
		},
		Conclusion:   r.Conclusion,
		Observations: texts,
		Date:         r.Date,
	}
}

func writeVerdict(w io.Writer, format string, it domain.Interpretation, r domain.Report) error {
	switch format {
	case formatText, "":
		_, err := io.WriteString(w, r.ExportText())
		return err
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newVerdictView(it, r))
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newVerdictView(it, r)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q: want text, json or yaml", format)
	}
}

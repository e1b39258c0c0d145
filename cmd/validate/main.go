// Command validate performs integrity checks on the analysis fixtures, the
// expected verdicts fixture and, optionally, a dump of verdict events
// consumed from the sink topic. It verifies fixture parity, that the engine
// still reproduces every expected verdict, the verdict and report
// invariants, and that published events match what the engine derives.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -analyses-dir internal/pipeline/testdata/analyses \
//	  -expected internal/pipeline/testdata/expected_verdicts.json \
//	  -verdicts data/mock/fire_verdicts.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/satellite-fire-service/internal/domain"
)

var fixtureDate = time.Date(2025, time.January, 8, 0, 0, 0, 0, time.UTC)

var filenameRe = regexp.MustCompile(`^fire-detection-report-\d{4}-\d{2}-\d{2}\.txt$`)

type expectedVerdict struct {
	FireDetected      bool   `json:"fire_detected"`
	ConfidencePercent int    `json:"confidence_percent"`
	ProbabilitySource string `json:"probability_source"`
	Location          string `json:"location"`
	ObservationCount  int    `json:"observation_count"`
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// fixture is one analysis file and the event the engine derives from it.
type fixture struct {
	name  string
	input domain.AnalysisInput
	event domain.VerdictEvent
}

func main() {
	analysesDir := flag.String("analyses-dir", "", "directory containing analysis fixtures")
	expectedPath := flag.String("expected", "", "path to the expected verdicts fixture")
	verdictsPath := flag.String("verdicts", "", "optional JSON lines dump of sink-topic verdict events")
	flag.Parse()

	if *analysesDir == "" || *expectedPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*analysesDir, *expectedPath, *verdictsPath); code != 0 {
		os.Exit(code)
	}
}

func run(analysesDir, expectedPath, verdictsPath string) int {
	// Same fixed clock as genmock so report dates and IDs line up.
	domain.SetClock(clockwork.NewFakeClockAt(fixtureDate))
	defer domain.SetClock(nil)

	fmt.Println("=== Fire Verdict Integrity Validation ===")
	fmt.Println()

	fixtures, err := loadFixtures(analysesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load analyses: %v\n", err)
		return 1
	}

	expected, err := loadExpected(expectedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load expected verdicts: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateFixtureParity(fixtures, expected),
		validateReproduction(fixtures, expected),
		validateInvariants(fixtures),
		validateDeterminism(fixtures),
	}

	var published []domain.VerdictEvent
	if verdictsPath != "" {
		published, err = loadVerdicts(verdictsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load verdicts: %v\n", err)
			return 1
		}
		phases = append(phases, validatePublished(published, fixtures))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d analyses, %d expected verdicts, %d published verdicts\n",
		len(fixtures), len(expected), len(published))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadFixtures(dir string) ([]fixture, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []fixture //nolint:prealloc // skips directories
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		in, err := domain.DecodeAnalysis(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, fixture{
			name:  e.Name(),
			input: in,
			event: domain.NewVerdictEvent(sourceID(e.Name()), "", domain.Interpret(in)),
		})
	}
	return out, nil
}

func sourceID(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func loadExpected(path string) (map[string]expectedVerdict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string]expectedVerdict
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func loadVerdicts(path string) ([]domain.VerdictEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []domain.VerdictEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var e domain.VerdictEvent
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// ── Phases ──

func validateFixtureParity(fixtures []fixture, expected map[string]expectedVerdict) *phase {
	p := &phase{name: "Phase 1: Fixture parity"}
	seen := make(map[string]bool, len(fixtures))
	for _, f := range fixtures {
		seen[f.name] = true
		if _, ok := expected[f.name]; !ok {
			p.errorf("%s: no expected verdict", f.name)
		}
	}
	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !seen[name] {
			p.errorf("%s: expected verdict without analysis fixture", name)
		}
	}
	return p
}

func validateReproduction(fixtures []fixture, expected map[string]expectedVerdict) *phase {
	p := &phase{name: "Phase 2: Engine reproduces expected verdicts"}
	for _, f := range fixtures {
		want, ok := expected[f.name]
		if !ok {
			continue
		}
		e := f.event
		if e.FireDetected != want.FireDetected {
			p.errorf("%s: fire_detected=%t, want %t", f.name, e.FireDetected, want.FireDetected)
		}
		if e.ConfidencePercent != want.ConfidencePercent {
			p.errorf("%s: confidence=%d, want %d", f.name, e.ConfidencePercent, want.ConfidencePercent)
		}
		if string(e.ProbabilitySource) != want.ProbabilitySource {
			p.errorf("%s: probability_source=%s, want %s", f.name, e.ProbabilitySource, want.ProbabilitySource)
		}
		if e.Location != want.Location {
			p.errorf("%s: location=%q, want %q", f.name, e.Location, want.Location)
		}
		if len(e.Observations) != want.ObservationCount {
			p.errorf("%s: %d observations, want %d", f.name, len(e.Observations), want.ObservationCount)
		}
	}
	return p
}

func validateInvariants(fixtures []fixture) *phase {
	p := &phase{name: "Phase 3: Verdict and report invariants"}
	for _, f := range fixtures {
		checkEvent(p, f.name, f.event)
	}
	return p
}

func checkEvent(p *phase, name string, e domain.VerdictEvent) {
	if e.Probability < 0 || e.Probability > 1 {
		p.errorf("%s: probability %g outside [0,1]", name, e.Probability)
	}
	if want := int(math.Round(e.Probability * 100)); e.ConfidencePercent != want {
		p.errorf("%s: confidence %d does not match probability %g", name, e.ConfidencePercent, e.Probability)
	}
	if len(e.Observations) == 0 {
		p.errorf("%s: no observations", name)
	}

	r := e.Report
	if r.FireDetected != e.FireDetected || r.ConfidencePercent != e.ConfidencePercent {
		p.errorf("%s: report badge disagrees with verdict", name)
	}
	if r.Location == "" {
		p.errorf("%s: report has no location", name)
	}
	text := r.ExportText()
	if !strings.HasPrefix(text, domain.ReportTitle) {
		p.errorf("%s: export text missing title", name)
	}
	if !strings.Contains(text, r.Conclusion) {
		p.errorf("%s: export text missing conclusion", name)
	}
	if !filenameRe.MatchString(r.Filename()) {
		p.errorf("%s: bad export filename %q", name, r.Filename())
	}
}

func validateDeterminism(fixtures []fixture) *phase {
	p := &phase{name: "Phase 4: Deterministic verdict IDs"}
	ids := make(map[string]string, len(fixtures))
	for _, f := range fixtures {
		again := domain.NewVerdictEvent(sourceID(f.name), "", domain.Interpret(f.input))
		if again.ID != f.event.ID {
			p.errorf("%s: ID changed between runs (%s vs %s)", f.name, f.event.ID, again.ID)
		}
		if again.Report.ExportText() != f.event.Report.ExportText() {
			p.errorf("%s: export text changed between runs", f.name)
		}
		if prev, dup := ids[f.event.ID]; dup {
			p.errorf("%s: ID %s collides with %s", f.name, f.event.ID, prev)
		}
		ids[f.event.ID] = f.name
	}
	return p
}

func validatePublished(published []domain.VerdictEvent, fixtures []fixture) *phase {
	p := &phase{name: "Phase 5: Published verdicts match engine"}
	bySource := make(map[string]fixture, len(fixtures))
	for _, f := range fixtures {
		bySource[sourceID(f.name)] = f
		bySource[f.name] = f
	}

	for i, e := range published {
		label := fmt.Sprintf("verdict[%d] %s", i, e.SourceID)
		checkEvent(p, label, e)

		f, ok := bySource[e.SourceID]
		if !ok {
			continue
		}
		want := f.event
		if e.FireDetected != want.FireDetected {
			p.errorf("%s: fire_detected=%t, engine says %t", label, e.FireDetected, want.FireDetected)
		}
		if e.ConfidencePercent != want.ConfidencePercent {
			p.errorf("%s: confidence=%d, engine says %d", label, e.ConfidencePercent, want.ConfidencePercent)
		}
		if e.ProbabilitySource != want.ProbabilitySource {
			p.errorf("%s: probability_source=%s, engine says %s", label, e.ProbabilitySource, want.ProbabilitySource)
		}
	}
	return p
}

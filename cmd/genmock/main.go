// Command genmock runs the interpretation engine over the analysis fixtures
// and writes the expected verdicts used by the pipeline test suite. It can
// also emit the fixtures as JSON lines for seeding the source topic.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -analyses-dir internal/pipeline/testdata/analyses \
//	  -expected-out internal/pipeline/testdata/expected_verdicts.json \
//	  -seed-out data/mock/satellite_analyses.jsonl
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/satellite-fire-service/internal/domain"
)

type expectedVerdict struct {
	FireDetected      bool   `json:"fire_detected"`
	ConfidencePercent int    `json:"confidence_percent"`
	ProbabilitySource string `json:"probability_source"`
	Location          string `json:"location"`
	ObservationCount  int    `json:"observation_count"`
}

// seedRecord is one source-topic message: the fixture name as key and the
// raw analysis as value.
type seedRecord struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	analysesDir := flag.String("analyses-dir", "", "directory containing analysis fixtures (.txt or .json)")
	expectedOut := flag.String("expected-out", "", "output path for the expected verdicts fixture")
	seedOut := flag.String("seed-out", "", "optional output path for source-topic JSON lines")
	flag.Parse()

	if *analysesDir == "" || *expectedOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -analyses-dir, -expected-out")
	}

	// Fixed clock for reproducible report dates.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, time.January, 8, 0, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	entries, err := os.ReadDir(*analysesDir)
	if err != nil {
		return fmt.Errorf("read analyses dir: %w", err)
	}

	expected := make(map[string]expectedVerdict, len(entries))
	seeds := make([]seedRecord, 0, len(entries))
	var events []domain.VerdictEvent //nolint:prealloc // skips directories

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		data, err := os.ReadFile(filepath.Join(*analysesDir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}

		in, err := domain.DecodeAnalysis(data)
		if err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		event := domain.NewVerdictEvent(strings.TrimSuffix(name, filepath.Ext(name)), "", domain.Interpret(in))

		expected[name] = expectedVerdict{
			FireDetected:      event.FireDetected,
			ConfidencePercent: event.ConfidencePercent,
			ProbabilitySource: string(event.ProbabilitySource),
			Location:          event.Location,
			ObservationCount:  len(event.Observations),
		}
		seeds = append(seeds, seedRecord{Key: event.SourceID, Value: string(data)})
		events = append(events, event)
		log.Printf("%s: fire=%t confidence=%d%% source=%s", name, event.FireDetected, event.ConfidencePercent, event.ProbabilitySource)
	}

	if err := writeJSON(*expectedOut, expected); err != nil {
		return fmt.Errorf("writing expected verdicts: %w", err)
	}
	log.Printf("wrote expected verdicts: %s", *expectedOut)

	if *seedOut != "" {
		if err := writeJSONLines(*seedOut, seeds); err != nil {
			return fmt.Errorf("writing seed file: %w", err)
		}
		log.Printf("wrote seed records: %s", *seedOut)
	}

	printStats(events)
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func writeJSONLines(path string, records []seedRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

type sourceCount struct {
	source string
	count  int
}

func printStats(events []domain.VerdictEvent) {
	var detected, smoke, heat, vegetation int
	sources := map[string]int{}
	for i := range events {
		e := &events[i]
		if e.FireDetected {
			detected++
		}
		if e.Signals.HasSmoke {
			smoke++
		}
		if e.Signals.HasHeat {
			heat++
		}
		if e.Signals.HasVegetationDistress {
			vegetation++
		}
		sources[string(e.ProbabilitySource)]++
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(events))
	fmt.Printf("Fire detected: %d, clear: %d\n", detected, len(events)-detected)
	fmt.Printf("Signals: smoke=%d, heat=%d, vegetation=%d\n", smoke, heat, vegetation)

	sc := make([]sourceCount, 0, len(sources))
	for s, c := range sources {
		sc = append(sc, sourceCount{s, c})
	}
	sort.Slice(sc, func(i, j int) bool {
		if sc[i].count != sc[j].count {
			return sc[i].count > sc[j].count
		}
		return sc[i].source < sc[j].source
	})
	fmt.Print("Probability sources: ")
	for _, s := range sc {
		fmt.Printf("%s=%d ", s.source, s.count)
	}
	fmt.Println()
}

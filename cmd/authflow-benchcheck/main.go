// Command authflow-benchcheck compares two `go test -bench` outputs and fails
// when a tracked benchmark regressed past a threshold.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

const defaultThreshold = 0.30

var trackedMetrics = map[string][]string{
	"BenchmarkValidateAccess": {"ns/op", "allocs/op"},
	"BenchmarkRefresh":        {"ns/op"},
	"BenchmarkLoginFailure":   {"ns/op"},
}

// samples maps benchmark name to unit to observed values.
type samples map[string]map[string][]float64

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
	)

	cmd := &cobra.Command{
		Use:          "authflow-benchcheck",
		Short:        "Fail on benchmark regressions",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if threshold < 0 {
				return fmt.Errorf("--threshold must be >= 0")
			}
			baseline, err := parseFile(baselinePath)
			if err != nil {
				return fmt.Errorf("parse baseline: %w", err)
			}
			candidate, err := parseFile(candidatePath)
			if err != nil {
				return fmt.Errorf("parse candidate: %w", err)
			}

			failures := compare(cmd.OutOrStdout(), baseline, candidate, threshold)
			if len(failures) > 0 {
				return fmt.Errorf("performance regression threshold exceeded:\n  - %s", strings.Join(failures, "\n  - "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baselinePath, "baseline", "", "path to baseline benchmark output")
	cmd.Flags().StringVar(&candidatePath, "candidate", "", "path to candidate benchmark output")
	cmd.Flags().Float64Var(&threshold, "threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	_ = cmd.MarkFlagRequired("baseline")
	_ = cmd.MarkFlagRequired("candidate")

	return cmd
}

// compare prints a table of medians and returns one message per regression
// or missing sample.
func compare(w io.Writer, baseline, candidate samples, threshold float64) []string {
	var failures []string
	fmt.Fprintln(w, "benchmark metric baseline candidate delta")

	names := make([]string, 0, len(trackedMetrics))
	for name := range trackedMetrics {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, benchmark := range names {
		for _, metric := range trackedMetrics[benchmark] {
			base := baseline[benchmark][metric]
			cand := candidate[benchmark][metric]
			if len(base) == 0 || len(cand) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", benchmark, metric))
				continue
			}

			baseMedian := median(base)
			candMedian := median(cand)
			if baseMedian <= 0 {
				// allocs/op of zero cannot regress by ratio; any allocation is a regression.
				if candMedian > 0 {
					failures = append(failures, fmt.Sprintf("%s %s went from 0 to %.0f", benchmark, metric, candMedian))
				}
				continue
			}

			delta := (candMedian - baseMedian) / baseMedian
			fmt.Fprintf(w, "%s %s %.3f %.3f %+0.2f%%\n", benchmark, metric, baseMedian, candMedian, delta*100)
			if delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", benchmark, metric, delta*100, threshold*100))
			}
		}
	}
	return failures
}

func parseFile(path string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (samples, error) {
	out := samples{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		name := normalizeName(fields[0])
		if _, ok := trackedMetrics[name]; !ok {
			continue
		}
		if _, ok := out[name]; !ok {
			out[name] = map[string][]float64{}
		}

		for i := 2; i+1 < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			out[name][fields[i+1]] = append(out[name][fields[i+1]], value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeName strips the -GOMAXPROCS suffix.
func normalizeName(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

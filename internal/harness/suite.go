package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarises a batch of scenario runs.
type SuiteResult struct {
	Total     int              `json:"total"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Scenarios []ScenarioReport `json:"scenarios"`
	Failures  []ScenarioReport `json:"failures,omitempty"`
}

// ScenarioReport is the outcome of one scenario file.
type ScenarioReport struct {
	Path          string   `json:"path"`
	Name          string   `json:"name,omitempty"`
	Pass          bool     `json:"pass"`
	GoldenChecked bool     `json:"golden_checked,omitempty"`
	GoldenUpdated bool     `json:"golden_updated,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// SuiteOption configures RunSuite.
type SuiteOption func(*suiteConfig)

type suiteConfig struct {
	golden bool
	update bool
}

// WithGolden compares each scenario against its GoldenPath file when one
// exists. With update set, the golden files are rewritten instead.
func WithGolden(update bool) SuiteOption {
	return func(c *suiteConfig) {
		c.golden = true
		c.update = update
	}
}

// FindScenarios returns the scenario files at path. A file is returned as
// is; a directory is walked for .yaml and .yml files. Results are sorted.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario file. Load and execution failures
// count as failed scenarios rather than aborting the suite.
func RunSuite(paths []string, opts ...SuiteOption) *SuiteResult {
	cfg := &suiteConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	res := &SuiteResult{Scenarios: []ScenarioReport{}}
	for _, path := range paths {
		res.add(runOne(path, cfg))
	}
	return res
}

func runOne(path string, cfg *suiteConfig) ScenarioReport {
	rep := ScenarioReport{Path: path}

	scenario, err := LoadScenario(path)
	if err != nil {
		rep.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return rep
	}
	rep.Name = scenario.Name

	result, err := Run(scenario)
	if err != nil {
		rep.Errors = []string{fmt.Sprintf("scenario execution failed: %v", err)}
		return rep
	}
	rep.Errors = result.Errors

	if cfg.golden {
		golden := GoldenPath(path, scenario.Name)
		if cfg.update {
			if err := WriteGolden(golden, scenario.Name, result); err != nil {
				rep.Errors = append(rep.Errors, err.Error())
				return rep
			}
			rep.GoldenUpdated = true
		} else {
			found, match, err := CompareGolden(golden, scenario.Name, result)
			switch {
			case err != nil:
				rep.Errors = append(rep.Errors, fmt.Sprintf("golden comparison failed: %v", err))
			case found && !match:
				rep.Errors = append(rep.Errors, "outputs do not match golden file (run with --update to regenerate)")
			}
			rep.GoldenChecked = found
		}
	}

	rep.Pass = len(rep.Errors) == 0
	return rep
}

func (r *SuiteResult) add(rep ScenarioReport) {
	r.Total++
	r.Scenarios = append(r.Scenarios, rep)
	if rep.Pass {
		r.Passed++
		return
	}
	r.Failed++
	r.Failures = append(r.Failures, rep)
}

// Package inla fits models with R-INLA, run out of process through Rscript.
package inla

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"diagonal.works/ksa-disease-mapping/internal/inference"
	"diagonal.works/ksa-disease-mapping/internal/logging"
	"diagonal.works/ksa-disease-mapping/internal/optional"
)

//go:embed fit.R
var script []byte

const (
	DefaultRscript = "Rscript"
	graphVariable  = "g"
)

// FitError is returned when the R process fails. Stderr holds R's own
// explanation, eg a missing package or a failed optimisation.
type FitError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (f *FitError) Error() string {
	stderr := strings.TrimSpace(f.Stderr)
	if stderr == "" {
		return fmt.Sprintf("inla: Rscript exited with status %d: %s", f.ExitCode, f.Err)
	}
	return fmt.Sprintf("inla: Rscript exited with status %d: %s", f.ExitCode, stderr)
}

func (f *FitError) Unwrap() error {
	return f.Err
}

type Engine struct {
	// Rscript is the interpreter to run, DefaultRscript if empty.
	Rscript string
	// TempDir is where the private working directory is created, the system
	// default if empty.
	TempDir string
}

func New(rscript string) *Engine {
	return &Engine{Rscript: rscript}
}

func (e *Engine) Name() string {
	return "inla"
}

type input struct {
	N        int              `json:"n"`
	Formula  string           `json:"formula"`
	Family   string           `json:"family"`
	Observed []optional.Int   `json:"observed"`
	Expected []optional.Float `json:"expected"`
}

type output struct {
	Fitted []fitted `json:"fitted"`
}

// fitted mirrors inference.Fitted with a nullable mean, as R writes NA as
// null.
type fitted struct {
	Mean     *float64          `json:"mean"`
	Marginal []inference.Point `json:"marginal"`
}

// Fit writes the graph and data to a private directory, runs the embedded
// script and reads back one fitted value per region. Regions without an
// expected count are passed as missing responses with a unit offset, so the
// graph stays whole, and their results are discarded.
func (e *Engine) Fit(ctx context.Context, model inference.Model, data inference.Data) (*inference.Posterior, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if err := model.Validate(data.Len()); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(e.TempDir, "inla-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	scriptPath := filepath.Join(dir, "fit.R")
	graphPath := filepath.Join(dir, "graph.adj")
	inputPath := filepath.Join(dir, "input.json")
	outputPath := filepath.Join(dir, "output.json")
	if err := os.WriteFile(scriptPath, script, 0o600); err != nil {
		return nil, err
	}
	if err := model.Graph.WriteFile(graphPath); err != nil {
		return nil, err
	}
	in := input{
		N:        data.Len(),
		Formula:  model.Formula(graphVariable),
		Family:   string(model.Family),
		Observed: make([]optional.Int, data.Len()),
		Expected: make([]optional.Float, data.Len()),
	}
	for i := 0; i < data.Len(); i++ {
		if data.Usable(i) {
			in.Observed[i] = data.Observed[i]
			in.Expected[i] = data.Expected[i]
		} else {
			in.Expected[i] = optional.Some(1.0)
		}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(inputPath, b, 0o600); err != nil {
		return nil, err
	}

	rscript := e.Rscript
	if rscript == "" {
		rscript = DefaultRscript
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, rscript, scriptPath, inputPath, graphPath, outputPath)
	cmd.Dir = dir
	cmd.Stderr = &stderr
	start := time.Now()
	logging.Info().Str("rscript", rscript).Str("formula", in.Formula).Int("regions", in.N).Msg("fitting with R-INLA")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fitErr := &FitError{ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			fitErr.ExitCode = exitErr.ExitCode()
		}
		return nil, fitErr
	}
	logging.Info().Dur("elapsed", time.Since(start)).Msg("R-INLA finished")

	b, err = os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("inla: no output written: %w", err)
	}
	var out output
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("inla: bad output: %w", err)
	}
	if len(out.Fitted) != data.Len() {
		return nil, fmt.Errorf("inla: %d fitted values for %d regions", len(out.Fitted), data.Len())
	}
	posterior := &inference.Posterior{Engine: e.Name(), Fitted: make([]optional.Value[inference.Fitted], data.Len())}
	for i, f := range out.Fitted {
		if !data.Usable(i) {
			continue
		}
		if f.Mean == nil {
			return nil, fmt.Errorf("inla: region %d has no posterior mean", i)
		}
		posterior.Fitted[i] = optional.Some(inference.Fitted{Mean: *f.Mean, Marginal: f.Marginal})
	}
	return posterior, nil
}

package validate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// BuildSystem identifies how a target directory is built.
type BuildSystem string

const (
	BuildCargo   BuildSystem = "cargo"
	BuildCMake   BuildSystem = "cmake"
	BuildMake    BuildSystem = "make"
	BuildUnknown BuildSystem = "unknown"
)

// DefaultBuildTimeout bounds one build or check invocation.
const DefaultBuildTimeout = 300 * time.Second

// markerOrder lists marker files in priority order; the first present wins.
var markerOrder = []struct {
	file   string
	system BuildSystem
}{
	{"Cargo.toml", BuildCargo},
	{"CMakeLists.txt", BuildCMake},
	{"Makefile", BuildMake},
	{"makefile", BuildMake},
}

// BuildResult reports one build/check invocation.
type BuildResult struct {
	OK          bool
	System      BuildSystem
	Stdout      string
	Stderr      string
	Diagnostics []string
}

// DetectBuildSystem inspects marker files in dir. Unknown systems yield
// BuildUnknown rather than an error; the caller decides whether best-effort
// is acceptable.
func DetectBuildSystem(dir string) BuildSystem {
	for _, marker := range markerOrder {
		if _, err := os.Stat(filepath.Join(dir, marker.file)); err == nil {
			return marker.system
		}
	}

	return BuildUnknown
}

// Builder runs build/check commands against a target directory.
type Builder struct {
	dir     string
	timeout time.Duration

	// runner executes a prepared command; replaced in tests.
	runner func(ctx context.Context, dir string, name string, args ...string) (stdout, stderr string, err error)
}

// NewBuilder creates a Builder for dir. A non-positive timeout falls back to
// DefaultBuildTimeout.
func NewBuilder(dir string, timeout time.Duration) *Builder {
	if timeout <= 0 {
		timeout = DefaultBuildTimeout
	}

	return &Builder{dir: dir, timeout: timeout, runner: runCommand}
}

func runCommand(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

// Check runs the detected build system's cheapest validation command
// (cargo check, cmake configure, make -n). An unknown build system reports
// ok with an "unknown" diagnostic instead of failing the pipeline.
func (b *Builder) Check(ctx context.Context) (BuildResult, error) {
	return b.run(ctx, false)
}

// Build runs the full build (cargo build, make).
func (b *Builder) Build(ctx context.Context) (BuildResult, error) {
	return b.run(ctx, true)
}

func (b *Builder) run(ctx context.Context, full bool) (BuildResult, error) {
	system := DetectBuildSystem(b.dir)

	result := BuildResult{System: system}

	var name string

	var args []string

	switch system {
	case BuildCargo:
		name = "cargo"
		if full {
			args = []string{"build"}
		} else {
			args = []string{"check"}
		}
	case BuildCMake:
		name = "cmake"
		args = []string{"-S", ".", "-B", "build"}
	case BuildMake:
		name = "make"
		if !full {
			args = []string{"-n"}
		}
	case BuildUnknown:
		result.OK = true
		result.Diagnostics = []string{"unknown build system: validation skipped"}

		return result, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	stdout, stderr, err := b.runner(runCtx, b.dir, name, args...)
	result.Stdout = stdout
	result.Stderr = stderr

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			result.Diagnostics = append(result.Diagnostics,
				fmt.Sprintf("build timed out after %s", b.timeout))

			return result, nil
		}

		exitErr := new(exec.ExitError)
		if errors.As(err, &exitErr) {
			result.Diagnostics = extractDiagnostics(stderr)

			return result, nil
		}

		return result, fmt.Errorf("run %s: %w", name, err)
	}

	result.OK = true

	return result, nil
}

// extractDiagnostics pulls the error lines out of compiler output, keeping
// prompts focused on what actually failed.
func extractDiagnostics(stderr string) []string {
	var diags []string

	for _, line := range strings.Split(stderr, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "error") || strings.HasPrefix(trimmed, "warning: unused") {
			diags = append(diags, trimmed)
		}
	}

	if len(diags) == 0 && strings.TrimSpace(stderr) != "" {
		diags = append(diags, strings.TrimSpace(stderr))
	}

	return diags
}

package validator

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

	"github.com/neto007/HRM-pipeline/internal/common"
)

// maxCompileOutput bounds the compiler output kept for notes and feedback.
const maxCompileOutput = 2000

// CompileResult is the outcome of building one generated file.
type CompileResult struct {
	OK     bool
	Output string // Compiler diagnostics with scratch paths stripped
}

// Compiler builds generated code. An error means the check could not run,
// not that the code failed to compile.
type Compiler interface {
	Compile(ctx context.Context, code string) (CompileResult, error)
}

// GoCompiler runs go build on each file in its own scratch module.
type GoCompiler struct {
	binary  string
	dir     string
	timeout time.Duration
}

// NewGoCompiler creates a compiler from config. It returns nil when the check is disabled.
func NewGoCompiler(cfg common.CompileConfig) *GoCompiler {
	if !cfg.Enabled {
		return nil
	}
	binary := cfg.GoBinary
	if binary == "" {
		binary = "go"
	}
	dir := cfg.SandboxDir
	if dir == "" {
		dir = os.TempDir()
	}
	return &GoCompiler{
		binary:  binary,
		dir:     dir,
		timeout: common.ParseDurationOr(cfg.Timeout, time.Minute),
	}
}

// Compile writes code into a fresh module and builds it, discarding the binary.
func (c *GoCompiler) Compile(ctx context.Context, code string) (CompileResult, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return CompileResult{}, fmt.Errorf("failed to create sandbox: %w", err)
	}
	work, err := os.MkdirTemp(c.dir, "gen-")
	if err != nil {
		return CompileResult{}, fmt.Errorf("failed to create scratch module: %w", err)
	}
	defer os.RemoveAll(work)

	if err := os.WriteFile(filepath.Join(work, "go.mod"), []byte("module hrm/sandbox\n\ngo 1.22\n"), 0o644); err != nil {
		return CompileResult{}, fmt.Errorf("failed to write go.mod: %w", err)
	}
	if err := os.WriteFile(filepath.Join(work, "generated.go"), []byte(code), 0o644); err != nil {
		return CompileResult{}, fmt.Errorf("failed to write source: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, "build", "-o", os.DevNull, ".")
	cmd.Dir = work
	cmd.Env = append(os.Environ(), "GOFLAGS=-mod=mod", "GOTOOLCHAIN=local", "GOWORK=off")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err = cmd.Run()
	output := strings.ReplaceAll(out.String(), work+string(filepath.Separator), "")
	if len(output) > maxCompileOutput {
		output = output[:maxCompileOutput]
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return CompileResult{OK: true, Output: output}, nil
	case ctx.Err() != nil:
		return CompileResult{}, fmt.Errorf("go build timed out: %w", ctx.Err())
	case errors.As(err, &exitErr):
		return CompileResult{OK: false, Output: strings.TrimSpace(output)}, nil
	default:
		return CompileResult{}, fmt.Errorf("failed to run %s: %w", c.binary, err)
	}
}

// Package gpu reads live VRAM telemetry from nvidia-smi. The numbers are
// informational: admission decisions never gate on them, and the snapshot
// is recomputed from the tool on every call to avoid drift from processes
// that die without a clean shutdown.
package gpu

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"fleetd/pkg/types"
)

const defaultSMIPath = "nvidia-smi"

// Source provides on-demand telemetry snapshots.
type Source interface {
	Snapshot(ctx context.Context) (types.GPUTelemetry, error)
}

// SMISource shells out to nvidia-smi with a CSV query.
type SMISource struct {
	path    string
	timeout time.Duration
}

// NewSMISource constructs a source for the given nvidia-smi path
// (default "nvidia-smi" on PATH).
func NewSMISource(path string) *SMISource {
	if path == "" {
		path = defaultSMIPath
	}
	return &SMISource{path: path, timeout: 10 * time.Second}
}

// SetTimeout bounds each nvidia-smi invocation.
func (s *SMISource) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Available reports whether nvidia-smi responds at all.
func (s *SMISource) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return exec.CommandContext(ctx, s.path, "--version").Run() == nil
}

func (s *SMISource) Snapshot(ctx context.Context) (types.GPUTelemetry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, s.path,
		"--query-gpu=memory.total,memory.used,memory.free,utilization.gpu",
		"--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return types.GPUTelemetry{}, fmt.Errorf("nvidia-smi exited with code %d: %s",
				exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return types.GPUTelemetry{}, err
	}
	return parseCSVLine(string(out))
}

// parseCSVLine parses the first line of nvidia-smi CSV output:
// "24576, 8192, 16384, 35". Multi-GPU hosts report the first device.
func parseCSVLine(out string) (types.GPUTelemetry, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return types.GPUTelemetry{}, fmt.Errorf("unexpected nvidia-smi output: %q", line)
	}
	vals := make([]int, 4)
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return types.GPUTelemetry{}, fmt.Errorf("parse nvidia-smi field %q: %w", f, err)
		}
		vals[i] = n
	}
	return types.GPUTelemetry{
		TotalMB:        vals[0],
		UsedMB:         vals[1],
		FreeMB:         vals[2],
		UtilizationPct: vals[3],
	}, nil
}

// Package gpu reports accelerator memory status by querying nvidia-smi.
package gpu

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/botforge/forge3d/pkg/types"
)

// Info is the accelerator status reported by /status
type Info = types.GPUInfo

// Probe queries accelerator status. Implementations never fail: problems
// are reported through Info.Available and Info.Error.
type Probe interface {
	Query(ctx context.Context) Info
}

// SMIProbe runs nvidia-smi
type SMIProbe struct {
	Path    string
	Timeout time.Duration
}

func NewSMIProbe(path string) *SMIProbe {
	if path == "" {
		path = "nvidia-smi"
	}
	return &SMIProbe{Path: path, Timeout: 5 * time.Second}
}

func (p *SMIProbe) Query(ctx context.Context) Info {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Path,
		"--query-gpu=name,memory.total,memory.used,memory.free",
		"--format=csv,noheader,nounits",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return Info{Error: msg}
	}

	info, err := ParseSMI(stdout.String())
	if err != nil {
		return Info{Error: err.Error()}
	}
	return info
}

// ParseSMI parses nvidia-smi CSV output (MiB values, no header, no units)
// and reports the first device
func ParseSMI(output string) (Info, error) {
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(output)))
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return Info{}, fmt.Errorf("unexpected nvidia-smi output: %w", err)
	}
	if len(rows) == 0 {
		return Info{}, fmt.Errorf("no GPU reported")
	}

	row := rows[0]
	if len(row) < 4 {
		return Info{}, fmt.Errorf("unexpected nvidia-smi row: %q", strings.Join(row, ","))
	}

	var mib [3]float64
	for i := range mib {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return Info{}, fmt.Errorf("unexpected memory value %q: %w", row[i+1], err)
		}
		mib[i] = v
	}
	total, used, free := mib[0], mib[1], mib[2]

	return Info{
		Available:   true,
		Name:        strings.TrimSpace(row[0]),
		Count:       len(rows),
		TotalGB:     toGB(total),
		AllocatedGB: toGB(used),
		ReservedGB:  toGB(total - free),
		FreeGB:      toGB(free),
	}, nil
}

func toGB(mib float64) float64 {
	return math.Round(mib/1024*100) / 100
}

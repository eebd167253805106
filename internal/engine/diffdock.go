package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/insilica/dockgate/internal/config"
)

// Confidence buckets for the top-ranked pose score.
const (
	ConfidenceHigh     = "high confidence"
	ConfidenceModerate = "moderate confidence"
	ConfidenceLow      = "low confidence"
)

// stderr fragments that indicate a recoverable device fault rather than
// bad input.
var transientMarkers = []string{
	"CUDA out of memory",
	"CUDA error",
	"device-side assert",
	"cuDNN error",
	"NCCL error",
}

// DiffDock invokes the DiffDock inference module as a subprocess, one
// run per call, pinned to a single accelerator via CUDA_VISIBLE_DEVICES.
type DiffDock struct {
	cfg        config.EngineConfig
	resultsDir string
	logger     *slog.Logger
}

// NewDiffDock creates a DiffDock engine that stores pose artifacts
// under resultsDir.
func NewDiffDock(cfg config.EngineConfig, resultsDir string, log *slog.Logger) (*DiffDock, error) {
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results dir: %w", err)
	}
	return &DiffDock{
		cfg:        cfg,
		resultsDir: resultsDir,
		logger:     log.With("component", "diffdock"),
	}, nil
}

// Dock runs one inference. The subprocess writes its poses into a
// scratch directory; the top-ranked pose is copied into the results dir
// keyed by job ID and referenced by the returned DockResult.
func (d *DiffDock) Dock(ctx context.Context, req DockRequest) (*DockResult, error) {
	workdir, err := os.MkdirTemp("", "diffdock-"+req.JobID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = os.RemoveAll(workdir) }()

	cmd := exec.CommandContext(ctx, d.cfg.Python,
		"-m", "inference",
		"--config", d.cfg.ConfigPath,
		"--protein_path", req.ProteinPath,
		"--ligand", req.Ligand,
		"--out_dir", workdir,
	)
	if d.cfg.WorkDir != "" {
		cmd.Dir = d.cfg.WorkDir
	}
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("CUDA_VISIBLE_DEVICES=%d", req.AcceleratorIndex))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	d.logger.Info("starting docking inference",
		"job_id", req.JobID,
		"protein_id", req.ProteinID,
		"accelerator", req.AcceleratorIndex)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// Let the worker classify the wall-clock timeout.
			return nil, ctx.Err()
		}
		return nil, classifyRunError(err, stderr.String())
	}

	pose, score, err := topRankedPose(workdir)
	if err != nil {
		return nil, err
	}

	ref := filepath.Join(d.resultsDir, req.JobID.String()+".sdf")
	if err := copyFile(pose, ref); err != nil {
		return nil, fmt.Errorf("%w: failed to store result artifact: %v", ErrTransient, err)
	}

	return &DockResult{
		Score:      score,
		Confidence: ConfidenceBucket(score),
		ResultRef:  ref,
	}, nil
}

// ConfidenceBucket maps a pose confidence score to its reporting bucket.
func ConfidenceBucket(score float64) string {
	switch {
	case score > 0.0:
		return ConfidenceHigh
	case score > -1.5:
		return ConfidenceModerate
	default:
		return ConfidenceLow
	}
}

// classifyRunError decides whether a failed subprocess run is transient
// or fatal based on its stderr output.
func classifyRunError(runErr error, stderr string) error {
	for _, marker := range transientMarkers {
		if strings.Contains(stderr, marker) {
			return fmt.Errorf("%w: %s", ErrTransient, firstLineMatching(stderr, marker))
		}
	}
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = runErr.Error()
	}
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return fmt.Errorf("%w: %s", ErrFatal, msg)
}

func firstLineMatching(s, marker string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, marker) {
			return strings.TrimSpace(line)
		}
	}
	return marker
}

// topRankedPose locates the rank-1 pose the inference run produced and
// extracts its confidence score from the file name, which has the form
// rank1_confidence<score>.sdf.
func topRankedPose(workdir string) (string, float64, error) {
	matches, err := filepath.Glob(filepath.Join(workdir, "complex_0", "rank1_confidence*.sdf"))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	if len(matches) == 0 {
		return "", 0, fmt.Errorf("%w: no docking pose generated", ErrFatal)
	}

	pose := matches[0]
	score, err := ScoreFromPoseName(pose)
	if err != nil {
		return "", 0, err
	}
	return pose, score, nil
}

// ScoreFromPoseName parses the confidence score embedded in a rank-1
// pose file name.
func ScoreFromPoseName(path string) (float64, error) {
	name := filepath.Base(path)
	raw := strings.TrimSuffix(strings.TrimPrefix(name, "rank1_confidence"), ".sdf")
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable pose file name %q", ErrFatal, name)
	}
	return score, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

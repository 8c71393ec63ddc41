package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	apperrors "github.com/iori73/crowd-data-dashboard-v2/internal/errors"
	"github.com/iori73/crowd-data-dashboard-v2/internal/logging"
)

// Backend turns an image file into raw text
type Backend interface {
	Name() string
	Extract(ctx context.Context, path string) (string, error)
}

// ImagePlaceholder in CommandBackend args is replaced with the image path
const ImagePlaceholder = "{image}"

// CommandBackend runs an external OCR program and reads its stdout
type CommandBackend struct {
	Command    string
	Args       []string
	Timeout    time.Duration
	Preprocess bool
	logger     *logging.Logger
}

// NewCommandBackend creates a subprocess backend. A zero timeout means 30s.
func NewCommandBackend(command string, args []string, timeout time.Duration, preprocess bool, logger *logging.Logger) *CommandBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewLogger("OCR")
	}
	return &CommandBackend{
		Command:    command,
		Args:       args,
		Timeout:    timeout,
		Preprocess: preprocess,
		logger:     logger,
	}
}

func (b *CommandBackend) Name() string { return "command:" + b.Command }

// Extract runs the command once. The process is killed when the timeout
// elapses or ctx is cancelled.
func (b *CommandBackend) Extract(ctx context.Context, path string) (string, error) {
	imagePath := path
	if b.Preprocess {
		tmp, cleanup, err := PreprocessImage(path)
		if err != nil {
			b.logger.Warn("Preprocessing failed, using original image", "file", path, "error", err)
		} else {
			defer cleanup()
			imagePath = tmp
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.Command, b.buildArgs(imagePath)...)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", apperrors.NewOCRTimeoutError(path, b.Timeout, err)
		}
		perr := apperrors.NewOCRFailedError(path, b.Name(), 0, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())))
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			perr.Details["exit_code"] = exitErr.ExitCode()
		}
		return "", perr
	}

	return strings.TrimSpace(stdout.String()), nil
}

func (b *CommandBackend) buildArgs(imagePath string) []string {
	args := make([]string, 0, len(b.Args)+1)
	replaced := false
	for _, a := range b.Args {
		if strings.Contains(a, ImagePlaceholder) {
			a = strings.ReplaceAll(a, ImagePlaceholder, imagePath)
			replaced = true
		}
		args = append(args, a)
	}
	if !replaced {
		args = append(args, imagePath)
	}
	return args
}

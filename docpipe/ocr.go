package docpipe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner runs an external command. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	r.logger.Debug("docpipe: exec", "cmd", name, "duration_ms", time.Since(start).Milliseconds(), "error", err)
	return stdout.Bytes(), stderr.Bytes(), err
}

// ocrExtractor writes the image to a temporary file and reads tesseract's
// plain text output from stdout.
type ocrExtractor struct {
	cfg    OCRConfig
	runner Runner
}

func (o *ocrExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	f, err := os.CreateTemp("", "docsum-ocr-*")
	if err != nil {
		return "", fmt.Errorf("ocr temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("ocr temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("ocr temp file: %w", err)
	}

	args := []string{f.Name(), "stdout", "-l", o.cfg.Lang}
	if o.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", o.cfg.TessdataDir)
	}
	stdout, stderr, err := o.runner.Run(ctx, o.cfg.Command, args...)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if msg != "" {
			return "", fmt.Errorf("%s: %w: %s", o.cfg.Command, err, msg)
		}
		return "", fmt.Errorf("%s: %w", o.cfg.Command, err)
	}
	return string(stdout), nil
}

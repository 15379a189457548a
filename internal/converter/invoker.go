package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/phrazzld/bookrender/internal/metadata"
	"github.com/phrazzld/bookrender/internal/platform/logger"
)

// Format describes how to produce one output format.
type Format struct {
	// Command is the command template; see BuildCommand.
	Command string

	// Extension of the produced file, without the dot.
	// Defaults to the format name.
	Extension string
}

// Config holds the converter settings.
type Config struct {
	// Formats maps a format name to its settings. Names are matched
	// case-insensitively.
	Formats map[string]Format

	// WorkDir holds temporary input/output files and is the working
	// directory of the converter process. Defaults to os.TempDir().
	WorkDir string

	// Timeout caps the wall-clock time of one conversion. Zero means no limit.
	Timeout time.Duration
}

// Output is a successfully converted file. The caller owns it and must call
// Remove once the file has been consumed.
type Output struct {
	Path      string
	Format    string
	Extension string
}

// Remove deletes the output file.
func (o *Output) Remove() error {
	if err := os.Remove(o.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Invoker converts HTML documents by running configured external commands.
type Invoker struct {
	formats map[string]Format
	workDir string
	timeout time.Duration
	runner  CommandRunner
	logger  *slog.Logger
}

// NewInvoker validates the configuration and creates an Invoker.
// Every command template must parse; the work directory is created if needed.
func NewInvoker(cfg Config, runner CommandRunner, log *slog.Logger) (*Invoker, error) {
	if runner == nil {
		return nil, errors.New("command runner cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create converter work directory: %w", err)
	}

	formats := make(map[string]Format, len(cfg.Formats))
	for name, format := range cfg.Formats {
		name = strings.ToLower(strings.TrimSpace(name))
		if strings.TrimSpace(format.Command) == "" {
			// An empty template means the format is disabled
			continue
		}
		if _, err := ParseTemplate(format.Command); err != nil {
			return nil, fmt.Errorf("format %q: %w", name, err)
		}
		if format.Extension == "" {
			format.Extension = name
		}
		format.Extension = strings.TrimPrefix(format.Extension, ".")
		formats[name] = format
	}

	return &Invoker{
		formats: formats,
		workDir: workDir,
		timeout: cfg.Timeout,
		runner:  runner,
		logger:  log.With(slog.String("component", "converter")),
	}, nil
}

// Formats returns the names of the configured formats.
func (i *Invoker) Formats() []string {
	names := make([]string, 0, len(i.formats))
	for name := range i.formats {
		names = append(names, name)
	}
	return names
}

// Invoke converts html into formatName and returns the produced file.
//
// The temporary input file is removed before Invoke returns, whatever the
// outcome. The output file is removed on failure and handed to the caller on
// success. Failures are returned as *ConversionError.
func (i *Invoker) Invoke(
	ctx context.Context,
	html string,
	formatName string,
	md metadata.Metadata,
) (*Output, error) {
	log := logger.FromContextOrDefault(ctx, i.logger)

	name := strings.ToLower(strings.TrimSpace(formatName))
	format, ok := i.formats[name]
	if !ok {
		log.Error("no conversion command configured", slog.String("format", name))
		return nil, &ConversionError{Kind: KindUnknownFormat, Format: name}
	}

	inputPath, err := i.writeInput(html)
	if err != nil {
		return nil, &ConversionError{Kind: KindWorkspace, Format: name, Err: err}
	}
	defer func() {
		if rmErr := os.Remove(inputPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn("failed to remove conversion input", slog.String("error", rmErr.Error()))
		}
	}()

	output, err := i.allocateOutput(name, format.Extension)
	if err != nil {
		return nil, &ConversionError{Kind: KindWorkspace, Format: name, Err: err}
	}

	if err := i.run(ctx, log, output, format, inputPath, md); err != nil {
		if rmErr := output.Remove(); rmErr != nil {
			log.Warn("failed to remove conversion output", slog.String("error", rmErr.Error()))
		}
		return nil, err
	}

	return output, nil
}

func (i *Invoker) run(
	ctx context.Context,
	log *slog.Logger,
	output *Output,
	format Format,
	inputPath string,
	md metadata.Metadata,
) error {
	cmd, err := BuildCommand(format.Command, inputPath, output.Path, md)
	if err != nil {
		return &ConversionError{Kind: KindInvalidCommand, Format: output.Format, Err: err}
	}
	// Some converters write scratch files into the current directory
	cmd.Dir = i.workDir

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	log.Debug("running conversion command",
		slog.String("format", output.Format),
		slog.String("command", cmd.String()))

	started := time.Now()
	result, err := i.runner.Run(ctx, cmd)
	elapsed := time.Since(started)

	if err != nil {
		kind := KindLaunchFailed
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimedOut
		}
		convErr := &ConversionError{Kind: kind, Format: output.Format, ExitCode: -1, Err: err}
		if result != nil {
			convErr.Stdout, convErr.Stderr = result.Stdout, result.Stderr
		}
		log.Error("conversion command could not complete",
			slog.String("format", output.Format),
			slog.String("command", cmd.String()),
			slog.String("kind", string(kind)),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		return convErr
	}

	if result.ExitCode != 0 {
		log.Error("conversion command has failed",
			slog.String("format", output.Format),
			slog.String("command", cmd.String()),
			slog.Int("exit_code", result.ExitCode),
			slog.String("stdout", result.Stdout),
			slog.String("stderr", result.Stderr),
			slog.Duration("elapsed", elapsed))
		return &ConversionError{
			Kind:     KindNonZeroExit,
			Format:   output.Format,
			ExitCode: result.ExitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
		}
	}

	var size int64
	if info, statErr := os.Stat(output.Path); statErr == nil {
		size = info.Size()
	}
	log.Debug("conversion finished",
		slog.String("format", output.Format),
		slog.Int64("output_bytes", size),
		slog.Duration("elapsed", elapsed))

	return nil
}

// writeInput materializes the HTML document in the work directory.
func (i *Invoker) writeInput(html string) (string, error) {
	f, err := os.CreateTemp(i.workDir, "toconvert-*.html")
	if err != nil {
		return "", fmt.Errorf("creating input file: %w", err)
	}
	path := f.Name()

	if _, err := f.WriteString(html); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("writing input file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("closing input file: %w", err)
	}

	return path, nil
}

// allocateOutput reserves a unique output path with the format's extension.
func (i *Invoker) allocateOutput(format, extension string) (*Output, error) {
	f, err := os.CreateTemp(i.workDir, "converted-*."+extension)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("closing output file: %w", err)
	}

	return &Output{Path: f.Name(), Format: format, Extension: extension}, nil
}

package display

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	Placeholder                = "{}"
	DefaultSetWallpaperCommand = "swaybg --mode fill --image {}"
	DefaultScreenWidthCommand  = "swaymsg -t get_outputs | jq '.[] | select(.focused) | .current_mode.width'"
	DefaultScreenHeightCommand = "swaymsg -t get_outputs | jq '.[] | select(.focused) | .current_mode.height'"
)

var ErrEmptyCommand = errors.New("empty command template")

// Applier shows an image as the desktop wallpaper.
type Applier interface {
	Apply(path string) error
}

// ScreenProber reports the current screen size.
type ScreenProber interface {
	Probe(ctx context.Context) (width, height int, err error)
}

// CommandApplier launches a command template with {} replaced by the image path.
// The process is started and reaped in the background, never awaited.
type CommandApplier struct {
	Template string
	start    func(name string, args ...string) error
}

func NewCommandApplier(template string) *CommandApplier {
	if strings.TrimSpace(template) == "" {
		template = DefaultSetWallpaperCommand
	}
	return &CommandApplier{Template: template, start: startDetached}
}

// Expand splits the template on whitespace and substitutes path into every argument.
// A template without a placeholder gets the path appended.
func Expand(template, path string) ([]string, error) {
	fields := strings.Fields(template)
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}
	substituted := false
	for i, f := range fields {
		if strings.Contains(f, Placeholder) {
			fields[i] = strings.ReplaceAll(f, Placeholder, path)
			substituted = true
		}
	}
	if !substituted {
		fields = append(fields, path)
	}
	return fields, nil
}

func (a *CommandApplier) Apply(path string) error {
	argv, err := Expand(a.Template, path)
	if err != nil {
		return err
	}
	log.WithField("path", path).Debugf("Setting wallpaper with %s", argv[0])
	if err := a.start(argv[0], argv[1:]...); err != nil {
		return fmt.Errorf("starting wallpaper command %q: %w", argv[0], err)
	}
	return nil
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		// Wallpaper daemons like swaybg keep running until replaced.
		if err := cmd.Wait(); err != nil {
			log.WithError(err).Debugf("Wallpaper command %s exited", name)
		}
	}()
	return nil
}

// ShellProber runs one shell command per dimension, each printing a single integer.
type ShellProber struct {
	WidthCommand  string
	HeightCommand string
}

func NewShellProber(widthCmd, heightCmd string) *ShellProber {
	if strings.TrimSpace(widthCmd) == "" {
		widthCmd = DefaultScreenWidthCommand
	}
	if strings.TrimSpace(heightCmd) == "" {
		heightCmd = DefaultScreenHeightCommand
	}
	return &ShellProber{WidthCommand: widthCmd, HeightCommand: heightCmd}
}

func (p *ShellProber) Probe(ctx context.Context) (int, int, error) {
	width, err := runForInt(ctx, p.WidthCommand)
	if err != nil {
		return 0, 0, fmt.Errorf("probing screen width: %w", err)
	}
	height, err := runForInt(ctx, p.HeightCommand)
	if err != nil {
		return 0, 0, fmt.Errorf("probing screen height: %w", err)
	}
	return width, height, nil
}

func runForInt(ctx context.Context, command string) (int, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", command).Output()
	if err != nil {
		return 0, fmt.Errorf("running %q: %w", command, err)
	}
	return ParseDimension(string(out))
}

// ParseDimension reads the first line of command output as a positive integer.
func ParseDimension(s string) (int, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("unexpected screen dimension %q: %w", line, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("unexpected screen dimension %d", n)
	}
	return n, nil
}

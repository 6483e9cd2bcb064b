package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/zombor/receipt-capture/internal/scanning"
)

// ErrNoCamera is returned when no camera is configured
var ErrNoCamera = errors.New("no camera configured")

// Camera is an exclusively held capture device
type Camera interface {
	// Open acquires the device
	Open(ctx context.Context) error
	// Capture grabs one still frame from an open device
	Capture(ctx context.Context) (scanning.Image, error)
	// Close releases the device
	Close() error
}

// CommandCamera captures frames by running an external command that writes a
// single encoded image to stdout, e.g. "fswebcam --no-banner -" or
// "libcamera-still -n -o -".
type CommandCamera struct {
	args []string

	mu   sync.Mutex
	open bool
}

// NewCommandCamera creates a camera from a command line. An empty command
// yields a camera that always fails to open.
func NewCommandCamera(command string) *CommandCamera {
	return &CommandCamera{args: strings.Fields(command)}
}

// Open checks that the capture command exists and marks the device as held
func (c *CommandCamera) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.args) == 0 {
		return ErrNoCamera
	}
	if c.open {
		return fmt.Errorf("camera already open")
	}
	if _, err := exec.LookPath(c.args[0]); err != nil {
		return fmt.Errorf("finding camera command: %w", err)
	}
	c.open = true
	return nil
}

// Capture runs the command and returns its output as an image
func (c *CommandCamera) Capture(ctx context.Context) (scanning.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return scanning.Image{}, fmt.Errorf("camera is not open")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.args[0], c.args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return scanning.Image{}, fmt.Errorf("running camera command: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return scanning.Image{}, fmt.Errorf("camera command produced no image")
	}

	return scanning.NewImage(stdout.Bytes()), nil
}

// Close releases the device
func (c *CommandCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

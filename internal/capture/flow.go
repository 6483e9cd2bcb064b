// Package capture drives one receipt capture session from choosing a photo to
// submitting the confirmed expense.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-capture/internal/credential"
	"github.com/zombor/receipt-capture/internal/form"
	"github.com/zombor/receipt-capture/internal/scanning"
)

var (
	// ErrInvalidTransition is returned for events that do not apply to the current step
	ErrInvalidTransition = errors.New("event not allowed in current step")

	// ErrSubmitInProgress is returned while a submit call is in flight
	ErrSubmitInProgress = errors.New("submission already in progress")

	// ErrFlowClosed is returned for events after the flow was left
	ErrFlowClosed = errors.New("capture flow closed")

	// ErrNoImage is returned when an empty file is chosen
	ErrNoImage = errors.New("no image provided")
)

// DefaultReturnDelay is how long Success is shown when no delay is configured
const DefaultReturnDelay = 2 * time.Second

const (
	missingKeyMessage     = "API key missing. Please enter it in Settings."
	submitFailedNotice    = "Failed to submit. Please try again."
	defaultExtractionFail = "Failed to analyze image."
)

// Submitter sends a confirmed expense to the form endpoint
type Submitter interface {
	Submit(ctx context.Context, e form.Expense) error
}

// Config holds flow settings
type Config struct {
	Vocabulary scanning.Vocabulary
	// ReturnDelay is how long Success is shown before the flow is left
	ReturnDelay time.Duration
	// OnExit is called once when the flow is left, by the user or after Success
	OnExit func()
}

// Flow is the state machine for one capture session. Events are serialized;
// the extraction and submit calls run without holding the lock and are gated by
// the Processing step and the Submitting flag.
type Flow struct {
	id        string
	extractor scanning.Extractor
	store     credential.Store
	submitter Submitter
	camera    Camera
	cfg       Config

	mu         sync.Mutex
	state      State
	cameraHeld bool
	timer      *time.Timer
	closed     bool
	exitOnce   sync.Once
}

// NewFlow starts a session in the Select step
func NewFlow(extractor scanning.Extractor, store credential.Store, submitter Submitter, camera Camera, cfg Config) *Flow {
	if cfg.ReturnDelay <= 0 {
		cfg.ReturnDelay = DefaultReturnDelay
	}

	f := &Flow{
		id:        uuid.New().String(),
		extractor: extractor,
		store:     store,
		submitter: submitter,
		camera:    camera,
		cfg:       cfg,
		state:     SelectState{},
	}
	slog.Info("Capture session started", "session", f.id)
	return f
}

// ID identifies the session in logs
func (f *Flow) ID() string {
	return f.id
}

// State returns the current state
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Closed reports whether the flow has been left
func (f *Flow) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Vocabulary returns the fixed sets the draft is drawn from
func (f *Flow) Vocabulary() scanning.Vocabulary {
	return f.cfg.Vocabulary
}

// transition moves to next, releasing the camera when leaving CameraState.
// Must be called with mu held.
func (f *Flow) transition(next State) {
	prev := f.state
	if prev.Step() == StepCamera && next.Step() != StepCamera {
		f.releaseCamera()
	}
	f.state = next
	slog.Debug("Capture step changed", "session", f.id, "from", prev.Step().String(), "to", next.Step().String())
}

// releaseCamera closes the camera if held. Must be called with mu held.
func (f *Flow) releaseCamera() {
	if !f.cameraHeld {
		return
	}
	f.cameraHeld = false
	if err := f.camera.Close(); err != nil {
		slog.Warn("Failed to release camera", "session", f.id, "error", err)
	}
}

// guard checks that the flow is open and in step. Must be called with mu held.
func (f *Flow) guard(step Step) error {
	if f.closed {
		return ErrFlowClosed
	}
	if f.state.Step() != step {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, f.state.Step())
	}
	return nil
}

// TakePhoto opens the camera
func (f *Flow) TakePhoto(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard(StepSelect); err != nil {
		return err
	}
	if f.camera == nil {
		f.transition(ErrorState{Message: ErrNoCamera.Error()})
		return ErrNoCamera
	}
	if err := f.camera.Open(ctx); err != nil {
		slog.Error("Failed to open camera", "session", f.id, "error", err)
		f.transition(ErrorState{Message: fmt.Sprintf("Could not open camera: %v", err)})
		return fmt.Errorf("opening camera: %w", err)
	}
	f.cameraHeld = true
	f.transition(CameraState{})
	return nil
}

// Shutter captures a frame and starts extraction
func (f *Flow) Shutter(ctx context.Context) error {
	f.mu.Lock()
	if err := f.guard(StepCamera); err != nil {
		f.mu.Unlock()
		return err
	}

	img, err := f.camera.Capture(ctx)
	if err != nil {
		slog.Error("Failed to capture photo", "session", f.id, "error", err)
		f.transition(ErrorState{Message: fmt.Sprintf("Could not capture photo: %v", err)})
		f.mu.Unlock()
		return fmt.Errorf("capturing photo: %w", err)
	}
	f.transition(ProcessingState{Image: img})
	f.mu.Unlock()

	return f.process(ctx, img)
}

// Upload uses a chosen file as the image and starts extraction
func (f *Flow) Upload(ctx context.Context, img scanning.Image) error {
	f.mu.Lock()
	if err := f.guard(StepSelect); err != nil {
		f.mu.Unlock()
		return err
	}
	if len(img.Data) == 0 {
		f.mu.Unlock()
		return ErrNoImage
	}
	f.transition(ProcessingState{Image: img})
	f.mu.Unlock()

	return f.process(ctx, img)
}

// process runs the extraction for the Processing step and moves to Form or Error.
// No request is sent once the flow has been left.
func (f *Flow) process(ctx context.Context, img scanning.Image) error {
	apiKey, ok, err := f.store.Get(credential.APIKeyName)
	if err != nil {
		slog.Error("Failed to read API key", "session", f.id, "error", err)
		return f.fail(img, fmt.Sprintf("Could not read API key: %v", err), err)
	}
	if !ok {
		return f.fail(img, missingKeyMessage, scanning.ErrMissingCredential)
	}

	// Left before the request went out
	if f.Closed() {
		return ErrFlowClosed
	}

	start := time.Now()
	result, err := f.extractor.Extract(ctx, img, apiKey)
	if err != nil {
		slog.Error("Failed to analyze receipt",
			"session", f.id,
			"content_type", img.ContentType,
			"file_size", len(img.Data),
			"error", err,
		)
		reason := defaultExtractionFail
		var extractionErr *scanning.ExtractionError
		switch {
		case errors.As(err, &extractionErr) && extractionErr.Reason != "":
			reason = extractionErr.Reason
		case errors.Is(err, scanning.ErrMissingCredential):
			reason = missingKeyMessage
		}
		return f.fail(img, reason, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFlowClosed
	}

	draft := Normalize(result, f.cfg.Vocabulary.Categories, f.cfg.Vocabulary.Methods)
	score, _ := result.Confidence()
	slog.Info("Receipt analyzed",
		"session", f.id,
		"duration", time.Since(start),
		"amount", draft.Amount,
		"category", draft.Category,
		"method", draft.Method,
		"confidence", score,
	)
	f.transition(FormState{Image: img, Draft: draft, Extraction: result})
	return nil
}

// fail moves a Processing session to Error
func (f *Flow) fail(img scanning.Image, message string, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFlowClosed
	}
	f.transition(ErrorState{Message: message, Image: &img})
	return cause
}

// Edit changes one draft field
func (f *Flow) Edit(field DraftField, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard(StepForm); err != nil {
		return err
	}
	st := f.state.(FormState)
	if st.Submitting {
		return ErrSubmitInProgress
	}

	draft, err := applyEdit(st.Draft, field, value, f.cfg.Vocabulary)
	if err != nil {
		return err
	}
	st.Draft = draft
	st.Notice = ""
	f.transition(st)
	return nil
}

// Retake discards the image and extraction and returns to Select
func (f *Flow) Retake() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard(StepForm); err != nil {
		return err
	}
	if f.state.(FormState).Submitting {
		return ErrSubmitInProgress
	}
	f.transition(SelectState{})
	return nil
}

// Retry leaves the Error step for Select
func (f *Flow) Retry() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard(StepError); err != nil {
		return err
	}
	f.transition(SelectState{})
	return nil
}

// Submit sends the draft. At most one submit is in flight per session; on
// failure the draft is kept and a notice is set.
func (f *Flow) Submit(ctx context.Context) error {
	f.mu.Lock()
	if err := f.guard(StepForm); err != nil {
		f.mu.Unlock()
		return err
	}
	st := f.state.(FormState)
	if st.Submitting {
		f.mu.Unlock()
		return ErrSubmitInProgress
	}
	if err := validateDraft(st.Draft); err != nil {
		st.Notice = err.Error()
		f.transition(st)
		f.mu.Unlock()
		return err
	}
	st.Submitting = true
	st.Notice = ""
	f.transition(st)
	draft := st.Draft
	f.mu.Unlock()

	err := f.submitter.Submit(ctx, draft.expense())

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFlowClosed
	}

	st = f.state.(FormState)
	if err != nil {
		slog.Error("Failed to submit expense", "session", f.id, "error", err)
		st.Submitting = false
		st.Notice = submitFailedNotice
		f.transition(st)
		return err
	}

	slog.Info("Expense submitted", "session", f.id, "amount", draft.Amount, "category", draft.Category, "method", draft.Method)
	f.transition(SuccessState{Image: st.Image, Draft: draft})
	f.timer = time.AfterFunc(f.cfg.ReturnDelay, f.Leave)
	return nil
}

// Leave tears the flow down from any step. The camera is released, a pending
// auto-return is cancelled and OnExit is called once.
func (f *Flow) Leave() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.releaseCamera()
	if f.timer != nil {
		f.timer.Stop()
	}
	step := f.state.Step()
	f.mu.Unlock()

	slog.Info("Capture session ended", "session", f.id, "step", step.String())
	f.exitOnce.Do(func() {
		if f.cfg.OnExit != nil {
			f.cfg.OnExit()
		}
	})
}

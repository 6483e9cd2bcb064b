package capture

import "github.com/zombor/receipt-capture/internal/scanning"

// Step names the position of a session in the capture flow
type Step int

const (
	StepSelect Step = iota
	StepCamera
	StepProcessing
	StepForm
	StepSuccess
	StepError
)

func (s Step) String() string {
	switch s {
	case StepSelect:
		return "select"
	case StepCamera:
		return "camera"
	case StepProcessing:
		return "processing"
	case StepForm:
		return "form"
	case StepSuccess:
		return "success"
	case StepError:
		return "error"
	}
	return "unknown"
}

// State is one of SelectState, CameraState, ProcessingState, FormState,
// SuccessState or ErrorState. Each carries only the data valid in its step.
type State interface {
	Step() Step
	isState()
}

// SelectState waits for the user to choose between the camera and a file
type SelectState struct{}

// CameraState holds the camera open until the shutter is pressed or the flow is left
type CameraState struct{}

// ProcessingState has an extraction in flight for Image
type ProcessingState struct {
	Image scanning.Image
}

// FormState lets the user review and edit the draft before submitting
type FormState struct {
	Image scanning.Image
	Draft Draft
	// Extraction is the raw model output, kept for display only
	Extraction *scanning.ExtractionResult
	Submitting bool
	// Notice is a transient message about the last failed submit
	Notice string
}

// SuccessState records a submitted draft until the flow returns
type SuccessState struct {
	Image scanning.Image
	Draft Draft
}

// ErrorState shows why the session could not continue.
// Image is set when the failure happened after a photo was taken or chosen.
type ErrorState struct {
	Message string
	Image   *scanning.Image
}

func (SelectState) Step() Step     { return StepSelect }
func (CameraState) Step() Step     { return StepCamera }
func (ProcessingState) Step() Step { return StepProcessing }
func (FormState) Step() Step       { return StepForm }
func (SuccessState) Step() Step    { return StepSuccess }
func (ErrorState) Step() Step      { return StepError }

func (SelectState) isState()     {}
func (CameraState) isState()     {}
func (ProcessingState) isState() {}
func (FormState) isState()       {}
func (SuccessState) isState()    {}
func (ErrorState) isState()      {}

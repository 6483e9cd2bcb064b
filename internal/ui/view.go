package ui

import (
	"github.com/zombor/receipt-capture/internal/capture"
)

// analysisView is the confidence banner shown above the form
type analysisView struct {
	Amount     string   `json:"amount"`
	Date       string   `json:"date"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// sessionView is the JSON shape of the active session
type sessionView struct {
	Active     bool           `json:"active"`
	ID         string         `json:"id,omitempty"`
	Step       string         `json:"step"`
	Draft      *capture.Draft `json:"draft,omitempty"`
	Analysis   *analysisView  `json:"analysis,omitempty"`
	HasImage   bool           `json:"has_image"`
	Submitting bool           `json:"submitting"`
	Notice     string         `json:"notice,omitempty"`
	Error      string         `json:"error,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Methods    []string       `json:"methods,omitempty"`
}

// newSessionView renders a flow's state. A nil or closed flow has no session.
func newSessionView(flow *capture.Flow) sessionView {
	if flow == nil || flow.Closed() {
		return sessionView{Step: "none"}
	}

	vocab := flow.Vocabulary()
	view := sessionView{
		Active:     true,
		ID:         flow.ID(),
		Categories: vocab.Categories,
		Methods:    vocab.Methods,
	}

	state := flow.State()
	switch st := state.(type) {
	case capture.ProcessingState:
		view.HasImage = true
	case capture.FormState:
		draft := st.Draft
		view.Draft = &draft
		view.HasImage = true
		view.Submitting = st.Submitting
		view.Notice = st.Notice
		if st.Extraction != nil {
			view.Analysis = &analysisView{
				Amount: st.Extraction.Amount.String(),
				Date:   st.Extraction.Date.String(),
			}
			if score, ok := st.Extraction.Confidence(); ok {
				view.Analysis.Confidence = &score
			}
		}
	case capture.SuccessState:
		draft := st.Draft
		view.Draft = &draft
		view.HasImage = true
	case capture.ErrorState:
		view.Error = st.Message
		view.HasImage = st.Image != nil
	}
	view.Step = state.Step().String()

	return view
}

package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/hireflow/sidecoach/internal/copilot"
	"github.com/hireflow/sidecoach/internal/transcript"
)

var (
	styleFinal = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	stylePartial = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Italic(true)

	styleQuestion = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	styleAnswer = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

// liveView renders the transcript as it grows: finalized utterances are
// printed once and stay put, the in-flight partial is redrawn in place.
type liveView struct {
	mu sync.Mutex

	out           *termenv.Output
	printedFinals int
	partialShown  bool
}

func newLiveView(w io.Writer) *liveView {
	return &liveView{out: termenv.NewOutput(w)}
}

// Render is the session's OnTranscriptUpdate subscriber. It runs on the
// session event pump, so it stays cheap: one line cleared, at most a couple
// printed.
func (v *liveView) Render(slots []transcript.Slot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.clearPartialLocked()

	for i := v.printedFinals; i < len(slots); i++ {
		if !slots[i].Finalized {
			break
		}
		fmt.Fprintln(v.out, styleFinal.Render(slots[i].Text))
		v.printedFinals++
	}

	if len(slots) > v.printedFinals {
		tail := slots[len(slots)-1]
		if !tail.Finalized && tail.Text != "" {
			fmt.Fprint(v.out, stylePartial.Render(tail.Text))
			v.partialShown = true
		}
	}
}

// RenderAnswer prints a detected question and its drafted answer below the
// transcript flow.
func (v *liveView) RenderAnswer(qa copilot.QA) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.clearPartialLocked()
	fmt.Fprintln(v.out, styleQuestion.Render("Q: "+qa.Question))
	fmt.Fprintln(v.out, styleAnswer.Render(qa.Answer))
}

func (v *liveView) RenderError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.clearPartialLocked()
	fmt.Fprintln(v.out, styleError.Render("error: "+err.Error()))
}

// clearPartialLocked wipes the redrawable partial line. Caller holds mu.
func (v *liveView) clearPartialLocked() {
	if v.partialShown {
		v.out.ClearLine()
		fmt.Fprint(v.out, "\r")
		v.partialShown = false
	}
}

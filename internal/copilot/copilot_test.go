package copilot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
)

// fakeCompleter scripts responses by matching the system prompt: detection
// requests get the next entry from detections, answer requests get a canned
// answer derived from the question.
type fakeCompleter struct {
	mu         sync.Mutex
	detections []string
	requests   []openai.ChatCompletionRequest
	err        error
	usage      openai.Usage
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}

	var content string
	if strings.Contains(req.Messages[0].Content, "Extract any interview questions") {
		if len(f.detections) == 0 {
			content = "[]"
		} else {
			content = f.detections[0]
			f.detections = f.detections[1:]
		}
	} else {
		content = "Answer: " + req.Messages[1].Content
	}

	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
		Usage: f.usage,
	}, nil
}

func (f *fakeCompleter) userMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, req := range f.requests {
		out[i] = req.Messages[1].Content
	}
	return out
}

func newTestCopilot(f *fakeCompleter, cfg Config) *Copilot {
	return newWithClient(f, cfg)
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without API key = nil error")
	}
	if _, err := New(Config{APIKey: "sk-test"}); err != nil {
		t.Errorf("New() with API key = %v", err)
	}
}

func TestHandleFinal_DetectsAndAnswers(t *testing.T) {
	f := &fakeCompleter{detections: []string{`["Why do you want this role?"]`}}
	cp := newTestCopilot(f, Config{})

	var answered []QA
	var mu sync.Mutex
	cp.OnAnswer(func(qa QA) {
		mu.Lock()
		answered = append(answered, qa)
		mu.Unlock()
	})

	cp.HandleFinal(context.Background(), "So, why do you want this role?")

	qas := cp.QuestionsAndAnswers()
	if len(qas) != 1 {
		t.Fatalf("got %d QAs, want 1", len(qas))
	}
	if qas[0].Question != "Why do you want this role?" {
		t.Errorf("question = %q", qas[0].Question)
	}
	if !strings.HasPrefix(qas[0].Answer, "Answer: ") {
		t.Errorf("answer = %q", qas[0].Answer)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(answered) != 1 || answered[0] != qas[0] {
		t.Errorf("OnAnswer got %v, want %v", answered, qas)
	}
}

func TestHandleFinal_NoQuestionNoAnswerCall(t *testing.T) {
	f := &fakeCompleter{detections: []string{`[]`}}
	cp := newTestCopilot(f, Config{})

	cp.HandleFinal(context.Background(), "I grew up in Ohio.")

	if got := len(cp.QuestionsAndAnswers()); got != 0 {
		t.Errorf("got %d QAs, want 0", got)
	}
	if got := len(f.userMessages()); got != 1 {
		t.Errorf("made %d LLM calls, want 1 (detection only)", got)
	}
}

func TestHandleFinal_EmptyUtteranceSkipped(t *testing.T) {
	f := &fakeCompleter{}
	cp := newTestCopilot(f, Config{})

	cp.HandleFinal(context.Background(), "   ")

	if got := len(f.userMessages()); got != 0 {
		t.Errorf("made %d LLM calls for a blank utterance, want 0", got)
	}
}

func TestHandleFinal_ContextWindow(t *testing.T) {
	f := &fakeCompleter{}
	cp := newTestCopilot(f, Config{ContextUtterances: 2})

	cp.HandleFinal(context.Background(), "one")
	cp.HandleFinal(context.Background(), "two")
	cp.HandleFinal(context.Background(), "three")
	cp.HandleFinal(context.Background(), "four")

	msgs := f.userMessages()
	if len(msgs) != 4 {
		t.Fatalf("made %d detection calls, want 4", len(msgs))
	}

	last := msgs[3]
	if !strings.Contains(last, "two\nthree") {
		t.Errorf("last detection prompt missing the two-utterance window:\n%s", last)
	}
	if strings.Contains(last, "one") {
		t.Errorf("last detection prompt leaked an utterance outside the window:\n%s", last)
	}
}

func TestHandleFinal_ExistingQuestionsForwarded(t *testing.T) {
	f := &fakeCompleter{detections: []string{`["What is your greatest strength?"]`, `[]`}}
	cp := newTestCopilot(f, Config{})

	cp.HandleFinal(context.Background(), "What is your greatest strength?")
	cp.HandleFinal(context.Background(), "And as I was saying, your greatest strength?")

	msgs := f.userMessages()
	// detection, answer, detection
	if len(msgs) != 3 {
		t.Fatalf("made %d LLM calls, want 3", len(msgs))
	}
	if !strings.Contains(msgs[2], "Already detected:\nWhat is your greatest strength?") {
		t.Errorf("second detection did not carry the already-detected list:\n%s", msgs[2])
	}
}

func TestHandleFinal_DetectionErrorIsNonFatal(t *testing.T) {
	f := &fakeCompleter{err: errors.New("rate limited")}
	cp := newTestCopilot(f, Config{})

	cp.HandleFinal(context.Background(), "Tell me about yourself.")

	if got := len(cp.QuestionsAndAnswers()); got != 0 {
		t.Errorf("got %d QAs after an LLM failure, want 0", got)
	}
}

func TestHandleFinal_MalformedDetectionSkipped(t *testing.T) {
	f := &fakeCompleter{detections: []string{`sure! here are the questions`}}
	cp := newTestCopilot(f, Config{})

	cp.HandleFinal(context.Background(), "Tell me about yourself.")

	if got := len(cp.QuestionsAndAnswers()); got != 0 {
		t.Errorf("got %d QAs from unparseable output, want 0", got)
	}
}

func TestUsageAccumulates(t *testing.T) {
	f := &fakeCompleter{
		detections: []string{`["Q one?"]`},
		usage:      openai.Usage{PromptTokens: 10, CompletionTokens: 5},
	}
	cp := newTestCopilot(f, Config{})

	cp.HandleFinal(context.Background(), "Q one?")

	// One detection call plus one answer call.
	got := cp.Usage()
	if got.InputTokens != 20 || got.OutputTokens != 10 {
		t.Errorf("usage = %+v, want in=20 out=10", got)
	}
}

func TestDefaults(t *testing.T) {
	cp := newWithClient(&fakeCompleter{}, Config{})
	if cp.model != "gpt-4o-mini" {
		t.Errorf("default model = %q", cp.model)
	}
	if cp.ctxWindow != 3 {
		t.Errorf("default context window = %d", cp.ctxWindow)
	}

	cp = newWithClient(&fakeCompleter{}, Config{Model: "gpt-4o", ContextUtterances: 5})
	if cp.model != "gpt-4o" || cp.ctxWindow != 5 {
		t.Errorf("overrides not applied: model=%q window=%d", cp.model, cp.ctxWindow)
	}
}

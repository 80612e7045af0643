package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

// QA is one detected interview question and the drafted answer.
type QA struct {
	Question string
	Answer   string
}

// Usage accumulates token counts across all copilot calls in a session.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// completer is the slice of the OpenAI client the copilot uses; tests swap in
// a fake.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	APIKey string
	Model  string
	// ContextUtterances is how many previous finalized utterances are sent
	// along with a new one, so questions split across utterances still get
	// detected.
	ContextUtterances int
}

// Copilot watches finalized utterances for interview questions and drafts
// answers. Detection failures are logged and skipped; the transcript feed
// never depends on the copilot succeeding.
type Copilot struct {
	llm       completer
	model     string
	ctxWindow int

	mu       sync.Mutex
	finals   []string
	qas      []QA
	usage    Usage
	onAnswer func(QA)
}

func New(cfg Config) (*Copilot, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("copilot API key required")
	}
	return newWithClient(openai.NewClient(cfg.APIKey), cfg), nil
}

func newWithClient(c completer, cfg Config) *Copilot {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	window := cfg.ContextUtterances
	if window <= 0 {
		window = 3
	}
	return &Copilot{
		llm:       c,
		model:     model,
		ctxWindow: window,
	}
}

// OnAnswer registers a callback invoked for every newly answered question.
func (c *Copilot) OnAnswer(fn func(QA)) {
	c.mu.Lock()
	c.onAnswer = fn
	c.mu.Unlock()
}

// QuestionsAndAnswers returns a snapshot of everything answered so far.
func (c *Copilot) QuestionsAndAnswers() []QA {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]QA, len(c.qas))
	copy(out, c.qas)
	return out
}

func (c *Copilot) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// HandleFinal processes one finalized utterance: detect new questions in it
// (with a context window of previous finals), then answer each. Blocking;
// callers run it off the session event pump.
func (c *Copilot) HandleFinal(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	c.mu.Lock()
	window := c.contextBufferLocked()
	existing := make([]string, len(c.qas))
	for i, qa := range c.qas {
		existing[i] = qa.Question
	}
	c.finals = append(c.finals, text)
	c.mu.Unlock()

	questions, err := c.detectQuestions(ctx, window, text, existing)
	if err != nil {
		log.Printf("copilot: question detection failed: %v", err)
		return
	}

	for _, q := range questions {
		answer, err := c.answerQuestion(ctx, q)
		if err != nil {
			log.Printf("copilot: answering %q failed: %v", q, err)
			continue
		}
		qa := QA{Question: q, Answer: answer}

		c.mu.Lock()
		c.qas = append(c.qas, qa)
		fn := c.onAnswer
		c.mu.Unlock()
		if fn != nil {
			fn(qa)
		}
	}
}

// contextBufferLocked returns the last ctxWindow finals joined for context.
// Caller holds mu.
func (c *Copilot) contextBufferLocked() string {
	start := len(c.finals) - c.ctxWindow
	if start < 0 {
		start = 0
	}
	return strings.Join(c.finals[start:], "\n")
}

const detectSystemPrompt = `You are listening to a live job-interview transcript.
Extract any interview questions the interviewer asks in the newest utterance.

Rules:
- Only questions directed at the candidate count.
- Do not repeat questions from the already-detected list.
- Rephrase fragments into one complete question.
- Respond with a JSON array of strings and nothing else. Respond with [] when
  there is no new question.`

func (c *Copilot) detectQuestions(ctx context.Context, window, latest string, existing []string) ([]string, error) {
	var user strings.Builder
	if window != "" {
		user.WriteString("Previous utterances:\n")
		user.WriteString(window)
		user.WriteString("\n\n")
	}
	user.WriteString("Newest utterance:\n")
	user.WriteString(latest)
	if len(existing) > 0 {
		user.WriteString("\n\nAlready detected:\n")
		user.WriteString(strings.Join(existing, "\n"))
	}

	content, err := c.complete(ctx, detectSystemPrompt, user.String(), 0.2)
	if err != nil {
		return nil, err
	}

	var questions []string
	if err := json.Unmarshal([]byte(content), &questions); err != nil {
		return nil, fmt.Errorf("parse question list %q: %w", content, err)
	}
	return questions, nil
}

const answerSystemPrompt = `You are an interview copilot. Draft a concise,
first-person answer the candidate could give to the interviewer's question.
Two short paragraphs at most. No preamble.`

func (c *Copilot) answerQuestion(ctx context.Context, question string) (string, error) {
	return c.complete(ctx, answerSystemPrompt, question, 0.7)
}

func (c *Copilot) complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
	}

	start := time.Now()
	resp, err := c.llm.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no response choices")
	}

	c.mu.Lock()
	c.usage.InputTokens += resp.Usage.PromptTokens
	c.usage.OutputTokens += resp.Usage.CompletionTokens
	c.mu.Unlock()

	log.Printf("copilot: completion in %v, tokens in=%d out=%d",
		time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

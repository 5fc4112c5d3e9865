// Package newsagent generates a daily global news item through an LLM
// tool-calling loop. The loop is an explicit state machine so every
// transition is visible and bounded.
package newsagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/deusflow/trendcurator/internal/metrics"
	"github.com/deusflow/trendcurator/internal/model"
)

// State of the generation run.
type State int

const (
	// Submitted: messages are ready for the next model call.
	Submitted State = iota
	// AwaitingToolResult: the model requested tool calls that have
	// not been answered yet.
	AwaitingToolResult
	// Completed: the model produced a final answer.
	Completed
	// Failed: the run ended without a usable answer.
	Failed
)

func (s State) String() string {
	switch s {
	case Submitted:
		return "submitted"
	case AwaitingToolResult:
		return "awaiting_tool_result"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ErrRunFailed means the loop ended in the Failed state.
var ErrRunFailed = errors.New("news agent run failed")

// toolHandler executes one tool call and returns the text handed back
// to the model.
type toolHandler func(ctx context.Context, args json.RawMessage) (string, error)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type newsStore interface {
	SaveNews(ctx context.Context, n model.News) error
	RecentKeywords(ctx context.Context, since time.Time, languageCode string) ([]string, error)
}

// output is the final answer schema the model is instructed to emit.
type output struct {
	NewsContent    string `json:"news_content"`
	SampleQuestion string `json:"sample_question"`
	Keyword        string `json:"keyword"`
}

// Agent drives one generation run per invocation.
type Agent struct {
	client       chatClient
	model        string
	store        newsStore
	toolbox      *Toolbox
	tools        map[string]toolHandler
	toolDefs     []openai.Tool
	languageCode string
	windowDays   int
	leadDays     int
	maxRounds    int
	backoff      time.Duration
	now          func() time.Time
}

// Option configures an Agent beyond its required collaborators.
type Option func(*Agent)

func WithMaxRounds(n int) Option {
	return func(a *Agent) { a.maxRounds = n }
}

func WithBackoff(d time.Duration) Option {
	return func(a *Agent) { a.backoff = d }
}

// WithLeadWindow sets how many trailing days of ingested articles are
// offered to the model as research leads.
func WithLeadWindow(days int) Option {
	return func(a *Agent) {
		if days > 0 {
			a.leadDays = days
		}
	}
}

func New(client chatClient, model string, store newsStore, toolbox *Toolbox, languageCode string, opts ...Option) *Agent {
	a := &Agent{
		client:       client,
		model:        model,
		store:        store,
		toolbox:      toolbox,
		tools:        toolbox.handlers(),
		toolDefs:     toolbox.definitions(),
		languageCode: languageCode,
		windowDays:   7,
		leadDays:     3,
		maxRounds:    10,
		backoff:      2 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes the state machine until Completed or Failed. Each round
// is one model call; tool rounds answer every requested call before
// resubmitting. The round bound caps cost when the model loops on
// tools without converging.
func (a *Agent) Run(ctx context.Context) (model.News, error) {
	excluded, err := a.store.RecentKeywords(ctx, a.now().AddDate(0, 0, -a.windowDays), a.languageCode)
	if err != nil {
		return model.News{}, err
	}

	userMsg := "Produce today's developer news item."
	leads, err := a.toolbox.RecentLeads(ctx, a.leadDays, 15)
	if err != nil {
		log.Printf("newsagent: could not load recent leads: %v", err)
	} else if len(leads) > 0 {
		userMsg += "\n\nRecently ingested article titles you may start from:\n- " + strings.Join(leads, "\n- ")
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: a.systemPrompt(excluded)},
		{Role: openai.ChatMessageRoleUser, Content: userMsg},
	}

	state := Submitted
	var final output

	for round := 0; round < a.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return model.News{}, err
		}

		switch state {
		case Submitted:
			resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:    a.model,
				Messages: messages,
				Tools:    a.toolDefs,
			})
			if err != nil {
				log.Printf("newsagent: round %d model call failed: %v", round, err)
				if !sleepCtx(ctx, a.backoff) {
					return model.News{}, ctx.Err()
				}
				continue
			}
			if len(resp.Choices) == 0 {
				state = Failed
				continue
			}

			msg := resp.Choices[0].Message
			messages = append(messages, msg)
			if len(msg.ToolCalls) > 0 {
				state = AwaitingToolResult
				continue
			}
			if err := json.Unmarshal([]byte(msg.Content), &final); err != nil || final.NewsContent == "" {
				log.Printf("newsagent: unusable final answer: %v", err)
				state = Failed
				continue
			}
			state = Completed

		case AwaitingToolResult:
			last := messages[len(messages)-1]
			for _, call := range last.ToolCalls {
				result := a.dispatch(ctx, call)
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: call.ID,
					Content:    result,
				})
			}
			state = Submitted

		case Completed:
			return a.persist(ctx, final)

		case Failed:
			return model.News{}, ErrRunFailed
		}
	}

	if state == Completed {
		return a.persist(ctx, final)
	}
	return model.News{}, fmt.Errorf("no answer within %d rounds: %w", a.maxRounds, ErrRunFailed)
}

// dispatch routes one tool call through the handler table. Unknown
// tools and handler errors are reported back to the model as text so
// the conversation can recover instead of aborting the run.
func (a *Agent) dispatch(ctx context.Context, call openai.ToolCall) string {
	handler, ok := a.tools[call.Function.Name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", call.Function.Name)
	}
	result, err := handler(ctx, json.RawMessage(call.Function.Arguments))
	if err != nil {
		log.Printf("newsagent: tool %s failed: %v", call.Function.Name, err)
		return "error: " + err.Error()
	}
	return result
}

func (a *Agent) persist(ctx context.Context, out output) (model.News, error) {
	news := model.News{
		ID:             uuid.NewString(),
		UserID:         "global",
		Content:        out.NewsContent,
		SampleQuestion: out.SampleQuestion,
		Keyword:        out.Keyword,
		LanguageCode:   a.languageCode,
		Published:      a.now(),
	}
	if err := a.store.SaveNews(ctx, news); err != nil {
		return model.News{}, err
	}
	metrics.Global.IncrementNewsGenerated()
	return news, nil
}

func (a *Agent) systemPrompt(excluded []string) string {
	prompt := `You are a technology news writer. Research one current,
noteworthy developer topic using the available tools, then answer with
a single JSON object and nothing else:
{"news_content": "...", "sample_question": "...", "keyword": "..."}

news_content: a short spoken-style news item about the topic.
sample_question: one question a listener might ask after hearing it.
keyword: the single proper noun identifying the topic.

Always consult tools before answering. Do not invent facts.`
	if len(excluded) > 0 {
		prompt += "\n\nDo not cover these recently covered topics: "
		for i, kw := range excluded {
			if i > 0 {
				prompt += ", "
			}
			prompt += kw
		}
	}
	return prompt
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

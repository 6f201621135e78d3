// Package orchestrator implements the consult/continue/end state machine
// that drives a Consultation: resolving a model and system prompt,
// splicing in RAG context, calling the provider adapter, and persisting
// the exchange through the conversation service (spec §4.G).
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/consultd/consultd/internal/apierr"
	"github.com/consultd/consultd/internal/model"
	"github.com/consultd/consultd/internal/provider"
	"github.com/consultd/consultd/internal/rag"
)

// thinkingSummaryLimit is the maximum length of the surfaced reasoning
// summary, per spec §4.G.
const thinkingSummaryLimit = 500

const truncationMarker = "…"

// Conversations is the subset of the conversation service the
// orchestrator depends on.
type Conversations interface {
	Create(ctx context.Context, modelName, systemPrompt string) (*model.Conversation, error)
	Get(ctx context.Context, id string) (*model.Conversation, error)
	AddMessage(ctx context.Context, id string, role model.MessageRole, content string, maxMessages int) (*model.Message, int, error)
	Archive(ctx context.Context, id string, reason model.EndReason) (bool, error)
}

// Completer is the subset of the provider adapter the orchestrator
// depends on.
type Completer interface {
	Complete(ctx context.Context, modelName string, messages []provider.Message, systemPrompt string, opts provider.Options) (*provider.Result, error)
}

// Retriever is the subset of the RAG pipeline the orchestrator depends
// on.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts rag.RetrieveOptions) (string, error)
}

// ConfigLookup resolves the effective config the orchestrator needs:
// the default model, provider credentials, request timeout, and max
// exchanges (derived from maxMessages).
type ConfigLookup interface {
	Get(ctx context.Context) (model.EffectiveConfig, error)
}

// ModelExists reports whether modelName is in the fixed model
// catalogue (spec §4.F/§6); the actual request shaping lives in the
// provider adapter.
type ModelExists func(modelName string) bool

// Orchestrator implements consult/continue/end.
type Orchestrator struct {
	conversations Conversations
	provider      Completer
	rag           Retriever
	config        ConfigLookup
	modelExists   ModelExists
}

// New builds an Orchestrator.
func New(conversations Conversations, completer Completer, retriever Retriever, config ConfigLookup, modelExists ModelExists) *Orchestrator {
	return &Orchestrator{
		conversations: conversations,
		provider:      completer,
		rag:           retriever,
		config:        config,
		modelExists:   modelExists,
	}
}

// ConsultInput is the payload for Consult.
type ConsultInput struct {
	Question             string
	Mode                 string
	Context              string
	DocIDs               []string
	DocTitles            []string
	Folder               string
	Model                string
	DisableRAG           bool
	SystemPromptOverride string
}

// ContinueInput is the payload for Continue.
type ContinueInput struct {
	ConversationID string
	Message        string
	DocIDs         []string
	DocTitles      []string
	Folder         string
}

// Thinking is the surfaced reasoning summary.
type Thinking struct {
	Summary string
}

// Metadata accompanies every consult/continue response.
type Metadata struct {
	ResponseTimeMs int64
	TokensUsed     int
	Thinking       *Thinking
}

// Result is the shared consult/continue response shape.
type Result struct {
	ConversationID string
	Answer         string
	Model          string
	Mode           string
	MessageCount   int
	CanContinue    bool
	Metadata       Metadata
}

// EndResult is the response shape for End.
type EndResult struct {
	Status         string
	ConversationID string
	TotalMessages  int
}

// Consult creates a new conversation and runs the first exchange.
func (o *Orchestrator) Consult(ctx context.Context, in ConsultInput) (*Result, error) {
	cfg, err := o.config.Get(ctx)
	if err != nil {
		return nil, err
	}

	modelName := in.Model
	if modelName == "" {
		modelName = cfg.DefaultModel
	}

	if !o.modelExists(modelName) {
		return nil, apierr.Newf(apierr.ValidationError, "unknown model %q", modelName)
	}

	if err := requireCredentials(cfg, modelName); err != nil {
		return nil, err
	}

	mode := resolveMode(in.Mode)
	systemPrompt := systemPromptFor(mode)
	if in.SystemPromptOverride != "" {
		systemPrompt = in.SystemPromptOverride
	}

	var ragContext string
	if !in.DisableRAG {
		ragContext, err = o.ragContextFor(ctx, in.Question, in.DocIDs, in.DocTitles, in.Folder)
		if err != nil {
			return nil, err
		}
	}
	if ragContext != "" {
		systemPrompt = systemPrompt + "\n\n" + ragContext
	}

	conv, err := o.conversations.Create(ctx, modelName, systemPrompt)
	if err != nil {
		return nil, err
	}

	userTurn := renderUserTurn(in.Context, in.Question)
	if _, _, err := o.conversations.AddMessage(ctx, conv.ID, model.RoleUser, userTurn, cfg.MaxMessages); err != nil {
		return nil, err
	}

	return o.callAndAppend(ctx, conv.ID, modelName, systemPrompt, string(mode), cfg)
}

// Continue runs one more exchange against an existing conversation.
func (o *Orchestrator) Continue(ctx context.Context, in ContinueInput) (*Result, error) {
	cfg, err := o.config.Get(ctx)
	if err != nil {
		return nil, err
	}

	conv, err := o.conversations.Get(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}

	if !o.modelExists(conv.Model) {
		return nil, apierr.Newf(apierr.ValidationError, "unknown model %q", conv.Model)
	}
	if err := requireCredentials(cfg, conv.Model); err != nil {
		return nil, err
	}

	ragContext, err := o.ragContextFor(ctx, in.Message, in.DocIDs, in.DocTitles, in.Folder)
	if err != nil {
		return nil, err
	}
	turnSystemPrompt := conv.SystemPrompt
	if ragContext != "" {
		turnSystemPrompt = turnSystemPrompt + "\n\n" + ragContext
	}

	if _, _, err := o.conversations.AddMessage(ctx, conv.ID, model.RoleUser, in.Message, cfg.MaxMessages); err != nil {
		return nil, err
	}

	return o.callAndAppend(ctx, conv.ID, conv.Model, turnSystemPrompt, "", cfg)
}

// End archives a conversation as completed.
func (o *Orchestrator) End(ctx context.Context, conversationID string) (*EndResult, error) {
	conv, err := o.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	changed, err := o.conversations.Archive(ctx, conversationID, model.EndReasonCompleted)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, apierr.Newf(apierr.ValidationError, "conversation %q is already archived", conversationID)
	}
	return &EndResult{
		Status:         "ended",
		ConversationID: conversationID,
		TotalMessages:  len(conv.Messages),
	}, nil
}

func (o *Orchestrator) callAndAppend(ctx context.Context, conversationID, modelName, systemPrompt, mode string, cfg model.EffectiveConfig) (*Result, error) {
	conv, err := o.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	messages := make([]provider.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		messages = append(messages, provider.Message{Role: string(m.Role), Content: m.Content})
	}

	res, err := o.provider.Complete(ctx, modelName, messages, systemPrompt, provider.Options{RequestTimeoutMs: cfg.RequestTimeout})
	if err != nil {
		return nil, err
	}

	_, count, err := o.conversations.AddMessage(ctx, conversationID, model.RoleAssistant, res.Content, cfg.MaxMessages)
	if err != nil {
		return nil, err
	}

	var thinking *Thinking
	if res.ReasoningContent != "" {
		thinking = &Thinking{Summary: truncateSummary(res.ReasoningContent)}
	}

	return &Result{
		ConversationID: conversationID,
		Answer:         res.Content,
		Model:          modelName,
		Mode:           mode,
		MessageCount:   count,
		CanContinue:    count < 2*cfg.MaxMessages,
		Metadata: Metadata{
			ResponseTimeMs: res.ResponseTimeMs,
			TokensUsed:     res.TokensUsed,
			Thinking:       thinking,
		},
	}, nil
}

func (o *Orchestrator) ragContextFor(ctx context.Context, query string, docIDs, docTitles []string, folder string) (string, error) {
	if o.rag == nil {
		return "", nil
	}
	return o.rag.Retrieve(ctx, query, rag.RetrieveOptions{DocIDs: docIDs, DocTitles: docTitles, Folder: folder})
}

func renderUserTurn(contextText, question string) string {
	if contextText == "" {
		return question
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", contextText, question)
}

func truncateSummary(reasoning string) string {
	s := strings.TrimSpace(reasoning)
	if len(s) <= thinkingSummaryLimit {
		return s
	}
	cut := thinkingSummaryLimit - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + truncationMarker
}

func requireCredentials(cfg model.EffectiveConfig, modelName string) error {
	family := providerKeyFor(modelName)
	pc, ok := cfg.Providers[family]
	if !ok || !pc.Enabled || pc.APIKey == "" {
		return apierr.Newf(apierr.AuthError, "no credentials configured for model %q", modelName)
	}
	return nil
}

func providerKeyFor(modelName string) string {
	switch {
	case strings.HasPrefix(modelName, "deepseek-"):
		return "deepseek"
	case strings.HasPrefix(modelName, "gpt-"):
		return "openai"
	default:
		return modelName
	}
}

package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/consultd/consultd/internal/apierr"
	"github.com/consultd/consultd/internal/model"
	"github.com/consultd/consultd/internal/provider"
	"github.com/consultd/consultd/internal/rag"
)

type fakeConversations struct {
	convs map[string]*model.Conversation
	next  int
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{convs: make(map[string]*model.Conversation)}
}

func (f *fakeConversations) Create(ctx context.Context, modelName, systemPrompt string) (*model.Conversation, error) {
	f.next++
	id := "conv-" + string(rune('0'+f.next))
	conv := &model.Conversation{ID: id, Model: modelName, SystemPrompt: systemPrompt, Status: model.ConversationActive}
	f.convs[id] = conv
	return conv, nil
}

func (f *fakeConversations) Get(ctx context.Context, id string) (*model.Conversation, error) {
	conv, ok := f.convs[id]
	if !ok {
		return nil, apierr.New(apierr.NotFound, "not found")
	}
	return conv, nil
}

// AddMessage mirrors conversation.Service.AddMessage's behavior of
// auto-archiving as "timeout" when the cap is breached, so this fake
// matches the real collaborator the orchestrator is wired to in
// production.
func (f *fakeConversations) AddMessage(ctx context.Context, id string, role model.MessageRole, content string, maxMessages int) (*model.Message, int, error) {
	conv, ok := f.convs[id]
	if !ok {
		return nil, 0, apierr.New(apierr.NotFound, "not found")
	}
	if len(conv.Messages) >= 2*maxMessages {
		reason := model.EndReasonTimeout
		conv.Status = model.ConversationArchived
		conv.EndReason = &reason
		return nil, len(conv.Messages), apierr.New(apierr.LimitExceeded, "cap reached")
	}
	msg := model.Message{ConversationID: id, Ordinal: len(conv.Messages), Role: role, Content: content}
	conv.Messages = append(conv.Messages, msg)
	return &msg, len(conv.Messages), nil
}

func (f *fakeConversations) Archive(ctx context.Context, id string, reason model.EndReason) (bool, error) {
	conv, ok := f.convs[id]
	if !ok {
		return false, apierr.New(apierr.NotFound, "not found")
	}
	if conv.Status == model.ConversationArchived {
		return false, nil
	}
	conv.Status = model.ConversationArchived
	conv.EndReason = &reason
	return true, nil
}

type fakeCompleter struct {
	reply     string
	reasoning string
	calls     int
}

func (f *fakeCompleter) Complete(ctx context.Context, modelName string, messages []provider.Message, systemPrompt string, opts provider.Options) (*provider.Result, error) {
	f.calls++
	return &provider.Result{Content: f.reply, ReasoningContent: f.reasoning, ResponseTimeMs: 42}, nil
}

type fakeRetriever struct {
	context string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, opts rag.RetrieveOptions) (string, error) {
	return f.context, nil
}

type fakeConfig struct {
	cfg model.EffectiveConfig
}

func (f *fakeConfig) Get(ctx context.Context) (model.EffectiveConfig, error) {
	return f.cfg, nil
}

func enabledConfig(maxMessages int) model.EffectiveConfig {
	return model.EffectiveConfig{
		DefaultModel:   "deepseek-chat",
		MaxMessages:    maxMessages,
		RequestTimeout: 180000,
		Providers: map[string]model.ProviderConfig{
			"deepseek": {Enabled: true, APIKey: "sk-test"},
		},
	}
}

func alwaysExists(string) bool { return true }

func TestConsultReturnsAnswerAndCanContinue(t *testing.T) {
	convs := newFakeConversations()
	completer := &fakeCompleter{reply: "the answer"}
	cfg := &fakeConfig{cfg: enabledConfig(2)}
	o := New(convs, completer, nil, cfg, alwaysExists)

	res, err := o.Consult(context.Background(), ConsultInput{Question: "why does this crash", Mode: "debug"})
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if res.Answer != "the answer" {
		t.Fatalf("unexpected answer %q", res.Answer)
	}
	if res.MessageCount != 2 {
		t.Fatalf("expected messageCount=2, got %d", res.MessageCount)
	}
	if !res.CanContinue {
		t.Fatal("expected canContinue=true after first exchange at maxMessages=2")
	}
	if res.Mode != "debug" {
		t.Fatalf("expected mode=debug, got %q", res.Mode)
	}
}

func TestConsultFailsAuthErrorWithoutCredentials(t *testing.T) {
	convs := newFakeConversations()
	completer := &fakeCompleter{reply: "x"}
	cfg := &fakeConfig{cfg: model.EffectiveConfig{DefaultModel: "deepseek-chat", MaxMessages: 5, Providers: map[string]model.ProviderConfig{}}}
	o := New(convs, completer, nil, cfg, alwaysExists)

	_, err := o.Consult(context.Background(), ConsultInput{Question: "hi"})
	if apierr.KindOf(err) != apierr.AuthError {
		t.Fatalf("expected AUTH_ERROR, got %v", err)
	}
}

func TestContinueReachesLimitThenEndFails(t *testing.T) {
	convs := newFakeConversations()
	completer := &fakeCompleter{reply: "reply"}
	cfg := &fakeConfig{cfg: enabledConfig(2)}
	o := New(convs, completer, nil, cfg, alwaysExists)
	ctx := context.Background()

	first, err := o.Consult(ctx, ConsultInput{Question: "Q1"})
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}

	second, err := o.Continue(ctx, ContinueInput{ConversationID: first.ConversationID, Message: "Q2"})
	if err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if second.MessageCount != 4 || second.CanContinue {
		t.Fatalf("expected messageCount=4 canContinue=false, got %+v", second)
	}

	_, err = o.Continue(ctx, ContinueInput{ConversationID: first.ConversationID, Message: "Q3"})
	if apierr.KindOf(err) != apierr.LimitExceeded {
		t.Fatalf("expected LIMIT_EXCEEDED, got %v", err)
	}

	if _, err := o.End(ctx, first.ConversationID); err == nil {
		t.Fatal("expected End to fail on an already-archived conversation")
	}
}

func TestConsultSplicesRagContextIntoSystemPrompt(t *testing.T) {
	convs := newFakeConversations()
	completer := &fakeCompleter{reply: "ok"}
	retriever := &fakeRetriever{context: "Relevant Context (RAG):\n- [doc | upload | chunk #0] alpha"}
	cfg := &fakeConfig{cfg: enabledConfig(5)}
	o := New(convs, completer, retriever, cfg, alwaysExists)

	if _, err := o.Consult(context.Background(), ConsultInput{Question: "what is alpha"}); err != nil {
		t.Fatalf("Consult: %v", err)
	}
	var stored *model.Conversation
	for _, c := range convs.convs {
		stored = c
	}
	if !strings.Contains(stored.SystemPrompt, "Relevant Context (RAG):") {
		t.Fatalf("expected RAG context spliced into system prompt, got %q", stored.SystemPrompt)
	}
}

func TestThinkingSummaryTruncatedAt500(t *testing.T) {
	convs := newFakeConversations()
	long := strings.Repeat("a", 600)
	completer := &fakeCompleter{reply: "ok", reasoning: long}
	cfg := &fakeConfig{cfg: enabledConfig(5)}
	o := New(convs, completer, nil, cfg, alwaysExists)

	res, err := o.Consult(context.Background(), ConsultInput{Question: "q"})
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if res.Metadata.Thinking == nil {
		t.Fatal("expected thinking summary to be set")
	}
	if len(res.Metadata.Thinking.Summary) != thinkingSummaryLimit {
		t.Fatalf("expected truncated summary of length %d, got %d", thinkingSummaryLimit, len(res.Metadata.Thinking.Summary))
	}
	if !strings.HasSuffix(res.Metadata.Thinking.Summary, truncationMarker) {
		t.Fatalf("expected trailing truncation marker, got %q", res.Metadata.Thinking.Summary)
	}
}

func TestConsultWithDisableRAGSkipsRetriever(t *testing.T) {
	convs := newFakeConversations()
	completer := &fakeCompleter{reply: "ok"}
	retriever := &fakeRetriever{context: "Relevant Context (RAG):\n- [doc | upload | chunk #0] alpha"}
	cfg := &fakeConfig{cfg: enabledConfig(5)}
	o := New(convs, completer, retriever, cfg, alwaysExists)

	if _, err := o.Consult(context.Background(), ConsultInput{Question: "what is alpha", DisableRAG: true}); err != nil {
		t.Fatalf("Consult: %v", err)
	}
	var stored *model.Conversation
	for _, c := range convs.convs {
		stored = c
	}
	if strings.Contains(stored.SystemPrompt, "Relevant Context (RAG):") {
		t.Fatal("expected RAG context to be skipped when DisableRAG is set")
	}
}

func TestConsultWithSystemPromptOverrideReplacesModePrompt(t *testing.T) {
	convs := newFakeConversations()
	completer := &fakeCompleter{reply: "ok"}
	cfg := &fakeConfig{cfg: enabledConfig(5)}
	o := New(convs, completer, nil, cfg, alwaysExists)

	if _, err := o.Consult(context.Background(), ConsultInput{Question: "q", SystemPromptOverride: "be terse"}); err != nil {
		t.Fatalf("Consult: %v", err)
	}
	var stored *model.Conversation
	for _, c := range convs.convs {
		stored = c
	}
	if stored.SystemPrompt != "be terse" {
		t.Fatalf("expected override system prompt, got %q", stored.SystemPrompt)
	}
}

func TestEndReturnsTotalMessages(t *testing.T) {
	convs := newFakeConversations()
	completer := &fakeCompleter{reply: "ok"}
	cfg := &fakeConfig{cfg: enabledConfig(5)}
	o := New(convs, completer, nil, cfg, alwaysExists)
	ctx := context.Background()

	first, err := o.Consult(ctx, ConsultInput{Question: "q"})
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}
	res, err := o.End(ctx, first.ConversationID)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if res.Status != "ended" || res.TotalMessages != 2 {
		t.Fatalf("unexpected end result %+v", res)
	}
}

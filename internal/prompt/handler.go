// Package prompt gates natural-language prompts and dispatches them to the
// executor for the selected run mode.
package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"

	"github.com/dataagent/dataagent/internal/agent"
	"github.com/dataagent/dataagent/internal/instruments"
	"github.com/dataagent/dataagent/internal/llm"
	"github.com/dataagent/dataagent/internal/nl2sql"
	"github.com/dataagent/dataagent/internal/observability"
	"github.com/dataagent/dataagent/internal/store"
	"github.com/dataagent/dataagent/internal/warehouse"
)

var (
	ErrInvalidRunMode    = errors.New("prompt: invalid run mode")
	ErrEmptyPrompt       = errors.New("prompt: prompt is required")
	// ErrSessionInProgress is returned when another prompt is still running
	// under the same session id.
	ErrSessionInProgress = errors.New("prompt: session is already running")
)

type TableContext interface {
	SimilarTableDefsForPrompt(ctx context.Context, prompt string) (string, error)
}

type ResultStore interface {
	SaveResult(ctx context.Context, in store.SaveResultInput) (store.SessionRecord, error)
}

// Archiver copies a finished session directory to durable storage and returns
// the prefix it was written under.
type Archiver interface {
	Archive(ctx context.Context, sessionID, dir string, result any) (string, error)
}

type Config struct {
	BaseDir           string
	AssistantName     string
	DefaultRunMode    string
	Schema            string
	Model             string
	Temperature       float64
	MaxTokens         int
	MaxRounds         int
	InnovationWorkers int
}

type Deps struct {
	LLM        llm.Client
	Warehouse  warehouse.Manager
	Tables     TableContext
	Translator nl2sql.Translator
	Store      ResultStore
	Archiver   Archiver
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

type Request struct {
	Prompt  string `json:"prompt"`
	RunMode string `json:"run_mode"`
}

type Handler struct {
	cfg         Config
	client      llm.Client
	warehouse   warehouse.Manager
	tables      TableContext
	translator  nl2sql.Translator
	store       ResultStore
	archiver    Archiver
	clock       clockwork.Clock
	log         *slog.Logger
	explainPool pond.ResultPool[bool]

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewHandler(cfg Config, deps Deps) (*Handler, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base dir is required")
	}
	if cfg.AssistantName == "" {
		cfg.AssistantName = "Turbo4"
	}
	if cfg.DefaultRunMode == "" {
		cfg.DefaultRunMode = RunModeAssistantAPI
	}
	if !ValidRunMode(cfg.DefaultRunMode) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRunMode, cfg.DefaultRunMode)
	}
	if cfg.Schema == "" {
		cfg.Schema = "atomic"
	}
	if cfg.InnovationWorkers <= 0 {
		cfg.InnovationWorkers = 3
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Translator == nil {
		translator, err := nl2sql.NewLLMTranslator(deps.LLM, nl2sql.Config{
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		deps.Translator = translator
	}

	return &Handler{
		cfg:         cfg,
		client:      deps.LLM,
		warehouse:   deps.Warehouse,
		tables:      deps.Tables,
		translator:  deps.Translator,
		store:       deps.Store,
		archiver:    deps.Archiver,
		clock:       deps.Clock,
		log:         deps.Logger,
		explainPool: pond.NewResultPool[bool](cfg.InnovationWorkers),
		inFlight:    make(map[string]struct{}),
	}, nil
}

// Handle runs one prompt end to end: session setup, gate, executor, and
// persistence of the outcome.
func (h *Handler) Handle(ctx context.Context, req Request) (agent.ConversationResult, error) {
	raw := strings.TrimSpace(req.Prompt)
	if raw == "" {
		return agent.ConversationResult{}, ErrEmptyPrompt
	}
	mode := req.RunMode
	if mode == "" {
		mode = h.cfg.DefaultRunMode
	}
	if !ValidRunMode(mode) {
		return agent.ConversationResult{}, fmt.Errorf("%w: %s", ErrInvalidRunMode, mode)
	}

	sessionID := GenerateSessionID(h.cfg.AssistantName+raw, h.clock.Now())
	if !h.reserve(sessionID) {
		return agent.ConversationResult{SessionID: sessionID, RunMode: mode}, fmt.Errorf("%w: %s", ErrSessionInProgress, sessionID)
	}
	defer h.release(sessionID)
	ctx = observability.ContextWithSessionID(ctx, sessionID)
	in, err := instruments.Open(ctx, instruments.Options{
		BaseDir:   h.cfg.BaseDir,
		SessionID: sessionID,
		Warehouse: h.warehouse,
		Logger:    h.log,
	})
	if err != nil {
		return agent.ConversationResult{}, fmt.Errorf("open instruments: %w", err)
	}
	defer func() { _ = in.Close() }()

	s := session{rawPrompt: raw, prompt: WrapPrompt(raw), instruments: in}
	if h.tables != nil {
		defs, err := h.tables.SimilarTableDefsForPrompt(ctx, raw)
		if err != nil {
			h.log.WarnContext(ctx, "failed to load similar table definitions", slog.Any("error", err))
		}
		s.tableDefinitions = defs
	}

	gate, err := h.promptConfidence(ctx, in, s.prompt)
	if err != nil {
		result := h.complete(ctx, s, mode, agent.ConversationResult{ErrorMessage: fmt.Sprintf("gate failed: %v", err)})
		return result, fmt.Errorf("gate prompt: %w", err)
	}
	s.confidence = gate.confidence
	route := Route(gate.confidence)
	observability.ObserveGateDecision(route)

	executor := h.executorFor(route, mode, s)
	started := h.clock.Now()
	result, execErr := executor.Execute(ctx)
	observability.ObserveExecutor(mode, h.clock.Since(started))
	result.Confidence = gate.confidence
	result.Messages = append(append([]agent.Chat(nil), gate.result.Messages...), result.Messages...)
	result.Cost += gate.result.Cost
	result.Tokens += gate.result.Tokens

	if execErr != nil {
		result.Success = false
		result.ErrorMessage = execErr.Error()
		return h.complete(ctx, s, mode, result), fmt.Errorf("execute %s: %w", mode, execErr)
	}
	if route == RouteDataAnalysis && result.Success {
		h.finishDataAnalysis(ctx, s, &result)
	}
	return h.complete(ctx, s, mode, result), nil
}

// reserve claims sessionID for one running prompt; the session directory is
// reset on open, so two prompts must never share it at the same time.
func (h *Handler) reserve(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inFlight[sessionID]; busy {
		return false
	}
	h.inFlight[sessionID] = struct{}{}
	return true
}

func (h *Handler) release(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inFlight, sessionID)
}

func (h *Handler) executorFor(route, mode string, s session) Executor {
	switch route {
	case RouteInformational:
		return informationalExecutor{h: h, s: s}
	case RouteDataAnalysis:
		switch mode {
		case RunModeAutogen:
			return teamExecutor{h: h, s: s}
		case RunModeCrewAI:
			return crewExecutor{h: h, s: s}
		case RunModeDirect:
			return directExecutor{h: h, s: s}
		default:
			return assistantExecutor{h: h, s: s}
		}
	default:
		return invalidExecutor{}
	}
}

// complete stamps the result with its session, archives and persists it.
// Persistence outlives the request so abandoned prompts are still recorded.
func (h *Handler) complete(ctx context.Context, s session, mode string, result agent.ConversationResult) agent.ConversationResult {
	result.SessionID = s.instruments.SessionID()
	result.RunMode = mode
	if result.Suggestions == nil {
		result.Suggestions = []string{}
	}
	observability.ObservePrompt(mode, result.Success)
	h.log.InfoContext(ctx, "prompt finished",
		slog.String("run_mode", mode),
		slog.Bool("success", result.Success),
		slog.Int("confidence", result.Confidence),
		slog.Int("tokens", result.Tokens),
		slog.Float64("cost", result.Cost),
	)

	if err := s.instruments.WriteAgentChats("all", result.Messages); err != nil {
		h.log.WarnContext(ctx, "failed to write conversation transcript", slog.Any("error", err))
	}

	persistCtx := context.WithoutCancel(ctx)
	var archivePrefix string
	if h.archiver != nil {
		prefix, err := h.archiver.Archive(persistCtx, result.SessionID, s.instruments.RootDir(), result.Result)
		if err != nil {
			h.log.WarnContext(ctx, "failed to archive session", slog.Any("error", err))
		}
		archivePrefix = prefix
	}

	if h.store != nil {
		if _, err := h.store.SaveResult(persistCtx, saveInput(s, mode, result, archivePrefix)); err != nil {
			h.log.WarnContext(ctx, "failed to persist result", slog.Any("error", err))
		}
	}
	return result
}

func saveInput(s session, mode string, result agent.ConversationResult, archivePrefix string) store.SaveResultInput {
	return store.SaveResultInput{
		SessionID:         result.SessionID,
		Prompt:            s.rawPrompt,
		RunMode:           mode,
		Success:           result.Success,
		ErrorMessage:      result.ErrorMessage,
		LastMessage:       result.LastMessageStr,
		SQL:               result.SQL,
		ResultJSON:        marshalOrNil(result.Result),
		FollowUp:          result.FollowUp,
		SuggestionsJSON:   marshalOrNil(result.Suggestions),
		VisualizationJSON: marshalOrNil(result.Visualization),
		CostUSD:           result.Cost,
		Tokens:            result.Tokens,
		ArchivePrefix:     archivePrefix,
	}
}

func marshalOrNil(value any) json.RawMessage {
	if value == nil {
		return nil
	}
	if v, ok := value.(*agent.Visualization); ok && v == nil {
		return nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return encoded
}

func (h *Handler) agentOptions() agent.Options {
	return agent.Options{
		Model:       h.cfg.Model,
		Temperature: h.cfg.Temperature,
		MaxTokens:   h.cfg.MaxTokens,
		MaxRounds:   h.cfg.MaxRounds,
		Clock:       h.clock,
		Logger:      h.log,
	}
}

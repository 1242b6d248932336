package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/askbase/askbase/internal/prompt"
	"github.com/askbase/askbase/internal/tenant"
	"github.com/askbase/askbase/internal/vectorstore"
)

// Outcome classifies how an answer was produced.
type Outcome string

const (
	// OutcomeGrounded means the backend answered with retrieved context.
	OutcomeGrounded Outcome = "grounded"
	// OutcomeUngrounded means the backend answered without any context.
	OutcomeUngrounded Outcome = "ungrounded"
	// OutcomeBackendUnavailable means the generation backend failed and
	// a canned or excerpt fallback was used.
	OutcomeBackendUnavailable Outcome = "backend-unavailable"
	// OutcomeInternalError means the pipeline itself failed and a
	// generic apology was returned.
	OutcomeInternalError Outcome = "internal-error"
)

const (
	// noContextSentinel is the context string used when retrieval found
	// nothing relevant.
	noContextSentinel = "No relevant information found."

	fallbackNoKnowledge = "I don't have specific information about that in my knowledge base. " +
		"Could you please provide more details or ask about something else?"

	fallbackInternalError = "I'm sorry, I encountered an error while processing your request."

	// excerptLimit bounds the context excerpt used as a best-effort
	// answer when the backend is down but retrieval succeeded.
	excerptLimit = 300
)

// AnswerRequest is one user question against a tenant's knowledge base.
type AnswerRequest struct {
	TenantID  int64
	SessionID string
	Message   string

	// Prompts are request-supplied system prompt fragments.
	Prompts []tenant.Prompt

	// Tenant supplies legacy prompts used only when Prompts is empty.
	Tenant *tenant.Info
}

// Source cites one retrieved chunk's origin.
type Source struct {
	Type      vectorstore.SourceType `json:"type"`
	ID        int64                  `json:"id"`
	Name      string                 `json:"name"`
	URL       string                 `json:"url,omitempty"`
	Relevance float64                `json:"relevance_score"`
}

// Metadata describes how the answer was produced.
type Metadata struct {
	Model         string `json:"model"`
	TokenEstimate int    `json:"tokens_used"`
	ContextChunks int    `json:"context_chunks"`
	Error         string `json:"error,omitempty"`
}

// AnswerResult is always well-formed: non-empty response text, the
// session id in effect, and whatever sources retrieval produced.
type AnswerResult struct {
	Response  string   `json:"response"`
	Sources   []Source `json:"sources"`
	SessionID string   `json:"session_id"`
	Outcome   Outcome  `json:"-"`
	Metadata  Metadata `json:"metadata"`
}

// Answer runs the query pipeline. It never returns an error: every
// failure is absorbed into a degraded but well-formed result.
func (s *Service) Answer(ctx context.Context, req AnswerRequest) (result *AnswerResult) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("answer pipeline panic",
				"tenant_id", req.TenantID, "panic", r)
			result = &AnswerResult{
				Response:  fallbackInternalError,
				Sources:   []Source{},
				SessionID: sessionID,
				Outcome:   OutcomeInternalError,
				Metadata:  Metadata{Model: s.cfg.Model, Error: fmt.Sprint(r)},
			}
		}
	}()

	matches := s.retrieve(ctx, req.TenantID, req.Message)
	contextBlock := assembleContext(matches)
	grounded := len(matches) > 0

	systemPrompt := s.composeSystemPrompt(req)
	userPrompt := buildUserPrompt(req.Message, contextBlock, grounded)

	response, outcome := s.generate(ctx, systemPrompt, userPrompt, contextBlock, grounded)

	result = &AnswerResult{
		Response:  response,
		Sources:   deriveSources(matches),
		SessionID: sessionID,
		Outcome:   outcome,
		Metadata: Metadata{
			Model:         s.cfg.Model,
			TokenEstimate: tokenEstimate(response),
			ContextChunks: len(matches),
		},
	}

	// Persistence failures never affect the computed answer.
	if err := s.sessions.AppendTurn(ctx, req.TenantID, sessionID, req.Message, response); err != nil {
		s.logger.Error("saving conversation turn",
			"tenant_id", req.TenantID, "session_id", sessionID, "error", err)
	}

	return result
}

// retrieve embeds the query and searches the tenant's chunks. Both
// steps degrade to an empty match set on failure.
func (s *Service) retrieve(ctx context.Context, tenantID int64, message string) []vectorstore.Match {
	embedding, err := s.embedder.EmbedOne(ctx, message)
	if err != nil {
		s.logger.Error("embedding query", "tenant_id", tenantID, "error", err)
		return nil
	}

	matches, err := s.store.SimilaritySearch(ctx, tenantID, embedding, s.cfg.TopK, s.cfg.SimilarityThreshold)
	if err != nil {
		s.logger.Error("similarity search", "tenant_id", tenantID, "error", err)
		return nil
	}
	return matches
}

func (s *Service) composeSystemPrompt(req AnswerRequest) string {
	layers := []prompt.Layer{prompt.Platform(s.cfg.PlatformPrompt)}

	var tenantLayers []prompt.Layer
	for _, p := range req.Prompts {
		if p.Type != "system" || strings.TrimSpace(p.Text) == "" {
			continue
		}
		tenantLayers = append(tenantLayers, prompt.Layer{
			Tier:  prompt.TierTenant,
			Order: p.Order,
			Text:  p.Text,
		})
	}

	if len(tenantLayers) == 0 && req.Tenant != nil {
		for _, p := range req.Tenant.Prompts {
			if p.Type != "system" || strings.TrimSpace(p.Text) == "" {
				continue
			}
			tenantLayers = append(tenantLayers, prompt.Layer{
				Tier:  prompt.TierLegacy,
				Order: p.Order,
				Text:  p.Text,
			})
		}
	}

	return prompt.Compose(append(layers, tenantLayers...))
}

// generate calls the backend and applies the local fallback policy on
// failure: a canned message without context, a context excerpt with it.
func (s *Service) generate(ctx context.Context, systemPrompt, userPrompt, contextBlock string, grounded bool) (string, Outcome) {
	response, err := s.generator.Generate(ctx, systemPrompt, userPrompt)
	if err == nil {
		if grounded {
			return response, OutcomeGrounded
		}
		return response, OutcomeUngrounded
	}

	s.logger.Error("generation backend failed", "error", err)
	if !grounded {
		return fallbackNoKnowledge, OutcomeBackendUnavailable
	}
	return "Based on the information I have: " + truncateRunes(contextBlock, excerptLimit) + "...",
		OutcomeBackendUnavailable
}

// assembleContext joins retrieved chunks, each prefixed with a source
// label, or returns the no-context sentinel when nothing was retrieved.
func assembleContext(matches []vectorstore.Match) string {
	if len(matches) == 0 {
		return noContextSentinel
	}

	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = "Source: " + sourceLabel(m) + "\n" + m.Content
	}
	return strings.Join(parts, prompt.Separator)
}

func buildUserPrompt(message, contextBlock string, grounded bool) string {
	if !grounded {
		return message + "\n\nNote: I don't have specific information about this in my knowledge base."
	}
	return fmt.Sprintf(`Based on the following context, please answer the question:

Context:
%s

Question: %s

Please provide a helpful and accurate answer based on the context provided. If the context doesn't fully answer the question, mention that.`,
		contextBlock, message)
}

// sourceLabel picks a human-readable name for a match from its
// metadata, defaulting to "{type} {id}".
func sourceLabel(m vectorstore.Match) string {
	key := "filename"
	if m.SourceType == vectorstore.SourceLink {
		key = "title"
	}
	if name, ok := m.Metadata[key].(string); ok && name != "" {
		return name
	}
	return fmt.Sprintf("%s %d", m.SourceType, m.SourceID)
}

func deriveSources(matches []vectorstore.Match) []Source {
	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		src := Source{
			Type:      m.SourceType,
			ID:        m.SourceID,
			Relevance: m.Similarity,
		}
		switch m.SourceType {
		case vectorstore.SourceLink:
			src.Name = metadataString(m.Metadata, "title", fmt.Sprintf("Link %d", m.SourceID))
			src.URL = metadataString(m.Metadata, "url", "")
		default:
			src.Name = metadataString(m.Metadata, "filename", fmt.Sprintf("Document %d", m.SourceID))
		}
		sources = append(sources, src)
	}
	return sources
}

func metadataString(metadata map[string]any, key, fallback string) string {
	if value, ok := metadata[key].(string); ok && value != "" {
		return value
	}
	return fallback
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"AlphaPilot/internal/domain/models"
	domsvc "AlphaPilot/internal/domain/service"
	xhttp "AlphaPilot/pkg/http"
)

// Config describes one chat-completion style reasoning endpoint.
type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// HTTPProvider calls a chat-completion endpoint and parses the structured
// role reply. The hard timeout lives on the HTTP client; the caller's ctx
// deadline still wins when shorter.
type HTTPProvider struct {
	cfg    Config
	client *xhttp.Client
}

// NewHTTPProvider creates a reasoning provider client.
func NewHTTPProvider(cfg Config) (*HTTPProvider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("reasoning provider %s: base url is required", cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
	}, nil
}

// Name identifies the provider in logs and fallback chains.
func (p *HTTPProvider) Name() string { return p.cfg.Name }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// roleReplyJSON is the structured content the model is asked to return.
type roleReplyJSON struct {
	Rationale    string  `json:"rationale"`
	ProposedSize float64 `json:"proposed_size"`
	Verdict      string  `json:"verdict"`
}

// Deliberate runs one role pass.
func (p *HTTPProvider) Deliberate(ctx context.Context, req domsvc.RoleRequest) (*domsvc.RoleReply, error) {
	payload := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(req.Role)},
			{Role: "user", Content: userPrompt(req)},
		},
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if p.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + p.cfg.APIKey
	}

	var decoded chatResponse
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions",
		Headers: headers,
		Body:    payload,
	}, &decoded)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.cfg.Name, err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("provider %s: empty response", p.cfg.Name)
	}

	return parseReply(decoded.Choices[0].Message.Content)
}

// parseReply decodes the structured reply; free-text answers degrade to a
// rationale-only reply rather than failing the pass.
func parseReply(content string) (*domsvc.RoleReply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty reply content")
	}

	var structured roleReplyJSON
	if err := json.Unmarshal([]byte(content), &structured); err != nil {
		return &domsvc.RoleReply{Rationale: content}, nil
	}

	reply := &domsvc.RoleReply{
		Rationale:    structured.Rationale,
		ProposedSize: structured.ProposedSize,
	}
	switch strings.ToLower(structured.Verdict) {
	case "approve":
		reply.Verdict = models.ConsensusApprove
	case "reject":
		reply.Verdict = models.ConsensusReject
	case "defer":
		reply.Verdict = models.ConsensusDefer
	}
	if reply.Rationale == "" {
		reply.Rationale = content
	}
	return reply, nil
}

func systemPrompt(role models.Role) string {
	switch role {
	case models.RoleAnalyst:
		return "You are the analyst. Assess signal quality and market context for the asset. " +
			"Respond as JSON: {\"rationale\": string}."
	case models.RoleRiskManager:
		return "You are the risk manager. Propose a position size as an equity fraction. " +
			"The hard cap is enforced in code regardless of your answer. " +
			"Respond as JSON: {\"rationale\": string, \"proposed_size\": number}."
	case models.RoleContrarian:
		return "You are the contrarian. Argue against this trade. If the case against it " +
			"is decisive, verdict reject. Respond as JSON: {\"rationale\": string, \"verdict\": \"reject\"|\"approve\"}."
	case models.RoleCoordinator:
		return "You are the coordinator. Synthesize the prior passes into a final consensus " +
			"and size. Respond as JSON: {\"rationale\": string, \"proposed_size\": number, " +
			"\"verdict\": \"approve\"|\"reject\"|\"defer\"}."
	}
	return "Respond as JSON: {\"rationale\": string}."
}

func userPrompt(req domsvc.RoleRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "asset: %s\n", req.Score.AssetID)
	fmt.Fprintf(&b, "composite_strength: %.4f\n", req.Score.CompositeStrength)
	fmt.Fprintf(&b, "confidence_tier: %s\n", req.Score.Tier)
	fmt.Fprintf(&b, "contributing_sources: %s\n", strings.Join(req.Score.ContributingSources, ","))
	fmt.Fprintf(&b, "validation_passed: %t\n", req.Verdict.Passed)
	if len(req.Verdict.FailedChecks) > 0 {
		fmt.Fprintf(&b, "failed_checks: %s\n", strings.Join(req.Verdict.FailedChecks, ","))
	}
	fmt.Fprintf(&b, "max_size: %.4f\n", req.MaxSize)
	for _, role := range models.DeliberationOrder {
		prior, ok := req.PriorOutputs[role]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s_said: %s\n", role, prior.Rationale)
		if prior.ProposedSize > 0 {
			fmt.Fprintf(&b, "%s_size: %.4f\n", role, prior.ProposedSize)
		}
		if prior.Verdict != "" {
			fmt.Fprintf(&b, "%s_verdict: %s\n", role, prior.Verdict)
		}
	}
	return b.String()
}

package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"vitalflow/internal/logger"
)

const explainPrompt = `You are a medical assistant. Analyze the following alert and patient context:
%s

Return a JSON object with keys:
- summary: a short summary of the situation.
- risk_level: "High", "Moderate", or "Low".
- suggested_checks: a list of things to check.
- suggested_actions: a list of immediate actions.`

const planPrompt = `You are a medical assistant. Generate a discharge plan for a patient based on the following context:
%s

Return a JSON object with keys:
- discharge_summary: a short plain-language summary.
- home_care_instructions: a list of instructions.
- recommended_meds: a list of objects with "name", "dose", "duration".
- followup_days: integer number of days for follow-up.`

// LLMClient implements Explainer and Planner against an Ollama-compatible
// generation endpoint. Backend-side failures (unreachable, bad status,
// malformed output) degrade to the fixed fallback payloads; only hitting the
// bounded per-call deadline surfaces as an error, so a stuck backend cannot
// stall a consumer iteration silently.
type LLMClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewLLMClient creates a client with a bounded per-call timeout
func NewLLMClient(baseURL, model string, timeout time.Duration) *LLMClient {
	if model == "" {
		model = "llama3"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// generate posts the prompt and unmarshals the model's JSON answer into out.
// A nil return with out untouched never happens: either out is filled or an
// error is returned.
func (c *LLMClient) generate(ctx context.Context, prompt string, out any) error {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm backend returned status %d", resp.StatusCode)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return fmt.Errorf("malformed llm envelope: %w", err)
	}

	if err := json.Unmarshal([]byte(gen.Response), out); err != nil {
		return fmt.Errorf("malformed llm output: %w", err)
	}

	return nil
}

// deadlineHit reports whether the failure was the bounded per-call timeout
func deadlineHit(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.Canceled)
}

// ExplainAlert implements Explainer
func (c *LLMClient) ExplainAlert(ctx context.Context, ac *AlertContext) (*Explanation, error) {
	log := logger.WithComponent("llm_client")

	ctxJSON, err := json.Marshal(ac)
	if err != nil {
		return nil, err
	}

	var out Explanation
	if err := c.generate(ctx, fmt.Sprintf(explainPrompt, ctxJSON), &out); err != nil {
		if deadlineHit(ctx, err) {
			return nil, err
		}
		log.Error().Err(err).Msg("explanation generation failed, using fallback")
		return FallbackExplanation(), nil
	}
	return &out, nil
}

// PlanDischarge implements Planner
func (c *LLMClient) PlanDischarge(ctx context.Context, pc *PlanContext) (*Plan, error) {
	log := logger.WithComponent("llm_client")

	ctxJSON, err := json.Marshal(pc)
	if err != nil {
		return nil, err
	}

	var out Plan
	if err := c.generate(ctx, fmt.Sprintf(planPrompt, ctxJSON), &out); err != nil {
		if deadlineHit(ctx, err) {
			return nil, err
		}
		log.Error().Err(err).Msg("plan generation failed, using fallback")
		return FallbackPlan(), nil
	}
	if out.FollowupDays <= 0 {
		out.FollowupDays = 7
	}
	return &out, nil
}

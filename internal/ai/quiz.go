package ai

import (
	"context"
	"fmt"

	"github.com/scamshield/scamshield/internal/metrics"
)

// quizResponse is the wire shape of the gateway's quiz generator.
type quizResponse struct {
	Questions []string `json:"questions"`
	Rubric    []string `json:"rubric"`
}

// quizScoreResponse is the wire shape of the gateway's quiz scorer. The
// decision vocabulary is the gateway's (release|warn|cancel); callers
// normalize it to their own.
type quizScoreResponse struct {
	Score    int      `json:"score"`
	Decision string   `json:"decision"`
	Reasons  []string `json:"reasons"`
}

// IssueQuiz asks the gateway to generate verification questions for the
// given risk signals. Errors are returned so the caller can fall back to
// its deterministic question set.
func (c *Client) IssueQuiz(ctx context.Context, signals map[string]any) (questions, rubric []string, err error) {
	if c == nil || c.baseURL == "" {
		return nil, nil, fmt.Errorf("ai gateway not configured")
	}

	var out quizResponse
	if err := c.post(ctx, "/ai/quiz", map[string]any{"signals": signals}, &out); err != nil {
		metrics.AIFallbacksTotal.WithLabelValues("quiz_issue").Inc()
		return nil, nil, err
	}
	if len(out.Questions) == 0 {
		metrics.AIFallbacksTotal.WithLabelValues("quiz_issue").Inc()
		return nil, nil, fmt.Errorf("gateway returned no questions")
	}
	return out.Questions, out.Rubric, nil
}

// ScoreQuiz asks the gateway to evaluate quiz answers. Returns the raw
// score (0..100, higher = riskier), the gateway decision string, and the
// reasons. Errors are returned so the caller can apply its conservative
// default.
func (c *Client) ScoreQuiz(ctx context.Context, questions, answers []string) (score int, decision string, reasons []string, err error) {
	if c == nil || c.baseURL == "" {
		return 0, "", nil, fmt.Errorf("ai gateway not configured")
	}

	var out quizScoreResponse
	if err := c.post(ctx, "/ai/quiz/score", map[string]any{
		"questions": questions,
		"answers":   answers,
	}, &out); err != nil {
		metrics.AIFallbacksTotal.WithLabelValues("quiz_score").Inc()
		return 0, "", nil, err
	}
	if out.Score < 0 {
		out.Score = 0
	}
	if out.Score > 100 {
		out.Score = 100
	}
	return out.Score, out.Decision, out.Reasons, nil
}

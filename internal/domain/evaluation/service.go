package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Assistant answers one question, typically over HTTP.
type Assistant interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Result is the scored outcome for one question.
type Result struct {
	QuestionID       int       `json:"question_id"`
	Question         string    `json:"question"`
	Category         string    `json:"category"`
	Difficulty       string    `json:"difficulty"`
	ExpectedKeywords []string  `json:"expected_keywords"`
	Response         string    `json:"assistant_response,omitempty"`
	Error            string    `json:"error,omitempty"`
	Accuracy         int       `json:"accuracy_score"`
	Helpfulness      int       `json:"helpfulness_score"`
	Citation         int       `json:"citation_score"`
	Average          float64   `json:"average_score"`
	Timestamp        time.Time `json:"timestamp"`
}

// Scores holds averaged metrics.
type Scores struct {
	Accuracy    float64 `json:"accuracy"`
	Helpfulness float64 `json:"helpfulness"`
	Citation    float64 `json:"citation_quality"`
	Overall     float64 `json:"overall"`
}

// Summary aggregates the run.
type Summary struct {
	TotalQuestions      int     `json:"total_questions"`
	SuccessfulQuestions int     `json:"successful_questions"`
	SuccessRate         string  `json:"success_rate"`
	AverageScores       Scores  `json:"average_scores"`
	Duration            float64 `json:"duration_seconds"`
}

// Report is written as the evaluation artifact.
type Report struct {
	Summary             Summary           `json:"evaluation_summary"`
	DifficultyBreakdown map[string]Scores `json:"difficulty_breakdown"`
	CategoryBreakdown   map[string]Scores `json:"category_breakdown"`
	Results             []Result          `json:"detailed_results"`
}

// Runner asks every dataset question in order.
type Runner struct {
	assistant Assistant
	delay     time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner builds a runner that waits delay between questions.
func NewRunner(assistant Assistant, delay time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		assistant: assistant,
		delay:     delay,
		logger:    logger.With("component", "evaluation.runner"),
		now:       time.Now,
	}
}

// Run evaluates the dataset. progress, when set, is called once per question.
func (r *Runner) Run(ctx context.Context, ds Dataset, progress func(int)) (Report, error) {
	started := r.now()
	results := make([]Result, 0, len(ds.Questions))
	for i, q := range ds.Questions {
		if i > 0 && r.delay > 0 {
			timer := time.NewTimer(r.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Report{}, ctx.Err()
			case <-timer.C:
			}
		}
		results = append(results, r.evaluate(ctx, q))
		if progress != nil {
			progress(1)
		}
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	report := BuildReport(results)
	report.Summary.Duration = r.now().Sub(started).Seconds()
	return report, nil
}

func (r *Runner) evaluate(ctx context.Context, q Question) Result {
	res := Result{
		QuestionID:       q.ID,
		Question:         q.Question,
		Category:         q.Category,
		Difficulty:       q.Difficulty,
		ExpectedKeywords: q.ExpectedContains,
	}
	answer, err := r.assistant.Ask(ctx, q.Question)
	res.Timestamp = r.now().UTC()
	if err != nil {
		r.logger.Warn("evaluation question failed", "id", q.ID, "error", err)
		res.Error = err.Error()
		return res
	}
	res.Response = answer
	res.Accuracy = ScoreAccuracy(answer, q.ExpectedContains)
	res.Helpfulness = ScoreHelpfulness(answer)
	res.Citation = ScoreCitation(answer)
	res.Average = float64(res.Accuracy+res.Helpfulness+res.Citation) / 3
	r.logger.Debug("evaluation question scored", "id", q.ID, "average", res.Average)
	return res
}

// BuildReport aggregates scored results. Failed questions count toward the averages with zero scores.
func BuildReport(results []Result) Report {
	report := Report{
		DifficultyBreakdown: breakdown(results, func(r Result) string { return r.Difficulty }),
		CategoryBreakdown:   breakdown(results, func(r Result) string { return r.Category }),
		Results:             results,
	}
	report.Summary.TotalQuestions = len(results)
	for _, r := range results {
		if r.Average > 0 {
			report.Summary.SuccessfulQuestions++
		}
	}
	rate := 0.0
	if len(results) > 0 {
		rate = float64(report.Summary.SuccessfulQuestions) / float64(len(results)) * 100
	}
	report.Summary.SuccessRate = fmt.Sprintf("%.1f%%", rate)
	report.Summary.AverageScores = average(results)
	return report
}

func breakdown(results []Result, key func(Result) string) map[string]Scores {
	groups := map[string][]Result{}
	for _, r := range results {
		k := key(r)
		if k == "" {
			k = "unknown"
		}
		groups[k] = append(groups[k], r)
	}
	out := make(map[string]Scores, len(groups))
	for k, group := range groups {
		out[k] = average(group)
	}
	return out
}

func average(results []Result) Scores {
	if len(results) == 0 {
		return Scores{}
	}
	var s Scores
	for _, r := range results {
		s.Accuracy += float64(r.Accuracy)
		s.Helpfulness += float64(r.Helpfulness)
		s.Citation += float64(r.Citation)
		s.Overall += r.Average
	}
	n := float64(len(results))
	return Scores{
		Accuracy:    round2(s.Accuracy / n),
		Helpfulness: round2(s.Helpfulness / n),
		Citation:    round2(s.Citation / n),
		Overall:     round2(s.Overall / n),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

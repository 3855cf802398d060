package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"dolphinpod/internal/apperr"
)

const (
	defaultComment    = "Good work today! Take a moment to look back on how your day went."
	defaultSuggestion = "Tomorrow, try one small thing that helps you relax."
	defaultReportNote = "This is a good moment to reflect on how today went."

	maxReportComments = 3
)

var defaultReportSuggestion = Suggestion{
	Title:       "Take a breath",
	Description: "At some point today, close your eyes for 30 seconds and take three slow breaths.",
	Difficulty:  "easy",
	WhyThis:     "A tiny step that fits into any day.",
}

const (
	commentSystemPrompt = "You are a warm digital-wellbeing coach reviewing a user's smartphone day. " +
		"Never blame the user; be empathetic and concrete. " +
		`Reply only with JSON: {"comment": "...", "suggestion": "..."}.`

	reportSystemPrompt = "You write a short daily digital-wellbeing report from the usage metrics and check-in answers given as JSON. " +
		`Reply only with JSON: {"title": "...", "summary": "...", "comments": ["..."], ` +
		`"suggestions": [{"title": "...", "description": "...", "difficulty": "easy|medium|hard", "why_this": "..."}]}. ` +
		"Use at most three comments and exactly one suggestion."

	questionSystemPrompt = "You generate one check-in question for a digital-wellbeing app. " +
		"The user JSON carries the step (1-3), context and previous answers. " +
		`Reply only with JSON: {"step": n, "question": "...", "options": [{"value": "...", "label": "..."}], "allow_free_text": true|false}.`
)

type CheckInSummary struct {
	Answer string `json:"answer"`
	Text   string `json:"text,omitempty"`
}

// DailyInput is the day summary a comment is written from.
type DailyInput struct {
	Date            string          `json:"date"`
	Nickname        string          `json:"nickname,omitempty"`
	TotalMinutes    int             `json:"total_minutes"`
	NightMinutes    int             `json:"late_night_minutes"`
	TargetMinutes   int             `json:"target_minutes"`
	CategoryMinutes map[string]int  `json:"category_minutes,omitempty"`
	UnlockCount     int             `json:"unlock_count"`
	SessionCount    int             `json:"session_count"`
	CheckIn         *CheckInSummary `json:"check_in,omitempty"`
}

type Comment struct {
	Comment    string `json:"comment"`
	Suggestion string `json:"suggestion"`
}

type ReportInput struct {
	UserProfile    map[string]any `json:"user_profile,omitempty"`
	TodayMetrics   map[string]any `json:"today_metrics,omitempty"`
	ProfileMetrics map[string]any `json:"profile_metrics,omitempty"`
	CheckinAnswers map[string]any `json:"checkin_answers,omitempty"`
	Constraints    map[string]any `json:"constraints,omitempty"`
}

type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty"`
	WhyThis     string `json:"why_this"`
}

type Report struct {
	Title       string       `json:"title"`
	Summary     string       `json:"summary"`
	Comments    []string     `json:"comments"`
	Suggestions []Suggestion `json:"suggestions"`
}

type PreviousAnswer struct {
	Step           int      `json:"step"`
	SelectedValues []string `json:"selected_values"`
	FreeText       string   `json:"free_text,omitempty"`
}

type QuestionInput struct {
	User            map[string]any   `json:"user"`
	Step            int              `json:"step"`
	Context         map[string]any   `json:"context"`
	PreviousAnswers []PreviousAnswer `json:"previous_answers"`
	QuestionPolicy  map[string]any   `json:"question_policy,omitempty"`
}

// Reporter builds prompts, calls the model and repairs its answers.
type Reporter struct {
	llm    Completer
	cache  ReportCache
	logger zerolog.Logger
}

// NewReporter returns a Reporter. cache may be nil.
func NewReporter(llm Completer, cache ReportCache, logger zerolog.Logger) *Reporter {
	return &Reporter{llm: llm, cache: cache, logger: logger.With().Str("component", "llm").Logger()}
}

func (r *Reporter) ask(ctx context.Context, kind, system string, input any) (gjson.Result, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return gjson.Result{}, apperr.Internal(fmt.Errorf("encode %s input: %w", kind, err))
	}
	text, err := r.llm.Complete(ctx, kind, system, string(payload))
	if err != nil {
		return gjson.Result{}, err
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(raw), nil
}

// DailyComment writes a comment and a suggestion for the day. Missing
// fields in the model output fall back to fixed defaults.
func (r *Reporter) DailyComment(ctx context.Context, in DailyInput) (Comment, error) {
	out, err := r.ask(ctx, "daily_comment", commentSystemPrompt, in)
	if err != nil {
		return Comment{}, err
	}
	c := Comment{
		Comment:    strings.TrimSpace(out.Get("comment").String()),
		Suggestion: strings.TrimSpace(out.Get("suggestion").String()),
	}
	if c.Comment == "" {
		c.Comment = defaultComment
	}
	if c.Suggestion == "" {
		c.Suggestion = defaultSuggestion
	}
	return c, nil
}

// DailyReport generates the report, or returns the cached one for
// cacheKey. An empty cacheKey bypasses the cache.
func (r *Reporter) DailyReport(ctx context.Context, cacheKey string, in ReportInput) (Report, error) {
	if r.cache != nil && cacheKey != "" {
		cached, ok, err := r.cache.Get(ctx, cacheKey)
		if err != nil {
			r.logger.Warn().Err(err).Str("key", cacheKey).Msg("report cache read failed")
		} else if ok {
			var rep Report
			if err := json.Unmarshal(cached, &rep); err == nil {
				return rep, nil
			}
		}
	}

	out, err := r.ask(ctx, "daily_report", reportSystemPrompt, in)
	if err != nil {
		return Report{}, err
	}
	rep := normalizeReport(out)

	if r.cache != nil && cacheKey != "" {
		if body, err := json.Marshal(rep); err == nil {
			if err := r.cache.Set(ctx, cacheKey, body); err != nil {
				r.logger.Warn().Err(err).Str("key", cacheKey).Msg("report cache write failed")
			}
		}
	}
	return rep, nil
}

// normalizeReport accepts a single suggestion object in place of a list,
// a single comment string in place of a list, and fills empty lists with
// defaults.
func normalizeReport(out gjson.Result) Report {
	rep := Report{
		Title:   strings.TrimSpace(out.Get("title").String()),
		Summary: strings.TrimSpace(out.Get("summary").String()),
	}

	comments := out.Get("comments")
	if comments.IsArray() {
		for _, c := range comments.Array() {
			if s := strings.TrimSpace(c.String()); s != "" {
				rep.Comments = append(rep.Comments, s)
			}
		}
	} else if s := strings.TrimSpace(comments.String()); s != "" {
		rep.Comments = []string{s}
	}
	if len(rep.Comments) > maxReportComments {
		rep.Comments = rep.Comments[:maxReportComments]
	}
	if len(rep.Comments) == 0 {
		rep.Comments = []string{defaultReportNote}
	}

	if sg, ok := firstSuggestion(out.Get("suggestions")); ok {
		rep.Suggestions = []Suggestion{sg}
	}
	if len(rep.Suggestions) == 0 {
		rep.Suggestions = []Suggestion{defaultReportSuggestion}
	}
	return rep
}

// firstSuggestion returns the first entry with a title or description.
// A single object is accepted in place of a list.
func firstSuggestion(v gjson.Result) (Suggestion, bool) {
	var items []gjson.Result
	switch {
	case v.IsArray():
		items = v.Array()
	case v.IsObject():
		items = []gjson.Result{v}
	}
	for _, s := range items {
		sg := Suggestion{
			Title:       s.Get("title").String(),
			Description: s.Get("description").String(),
			Difficulty:  s.Get("difficulty").String(),
			WhyThis:     s.Get("why_this").String(),
		}
		if sg.Title == "" && sg.Description == "" {
			continue
		}
		switch sg.Difficulty {
		case "easy", "medium", "hard":
		default:
			sg.Difficulty = "easy"
		}
		return sg, true
	}
	return Suggestion{}, false
}

// CheckInQuestion generates the question for step 1 to 3 and returns the
// model's JSON object.
func (r *Reporter) CheckInQuestion(ctx context.Context, in QuestionInput) (json.RawMessage, error) {
	if in.Step < 1 || in.Step > 3 {
		return nil, apperr.Validation("step must be between 1 and 3")
	}
	if in.PreviousAnswers == nil {
		in.PreviousAnswers = []PreviousAnswer{}
	}
	out, err := r.ask(ctx, "checkin_question", questionSystemPrompt, in)
	if err != nil {
		return nil, err
	}
	if !out.IsObject() || strings.TrimSpace(out.Get("question").String()) == "" {
		return nil, apperr.Upstream(apperr.CategoryLLMOutput, fmt.Errorf("question output has no question: %.200s", out.Raw))
	}
	return json.RawMessage(out.Raw), nil
}

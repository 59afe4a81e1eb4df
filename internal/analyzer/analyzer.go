// Package analyzer classifies page contexts and turns the findings into
// executable instructions. The rules are deliberately simple heuristics;
// the Analyzer interface is the seam where a model-backed implementation
// would plug in.
package analyzer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/contextbridge/backend/internal/instruction"
	"github.com/contextbridge/backend/internal/logging"
	"github.com/contextbridge/backend/internal/types"
)

// Analyzer produces an analysis and follow-up instructions for a context.
type Analyzer interface {
	Analyze(ctx *types.PageContext) *types.ContextAnalysis
	Instructions(ctx *types.PageContext, analysis *types.ContextAnalysis) []instruction.Instruction
}

// Rules is the rule-based Analyzer.
type Rules struct {
	log *logging.Logger

	emailRe *regexp.Regexp
	phoneRe *regexp.Regexp
	urlRe   *regexp.Regexp
}

// NewRules creates a rule-based analyzer with precompiled patterns.
func NewRules(log *logging.Logger) *Rules {
	if log == nil {
		log = logging.NewNop()
	}
	return &Rules{
		log:     log.WithComponent("analyzer"),
		emailRe: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		phoneRe: regexp.MustCompile(`(\+\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
		urlRe:   regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`),
	}
}

// Analyze classifies the page and collects issues and suggestions.
func (r *Rules) Analyze(ctx *types.PageContext) *types.ContextAnalysis {
	pageType := r.pageType(ctx)
	issues := r.issues(ctx)
	suggestions := r.suggestions(ctx, pageType, issues)

	analysis := &types.ContextAnalysis{
		PageType:    pageType,
		UserIntent:  intent(pageType),
		Issues:      issues,
		Suggestions: suggestions,
		Confidence:  confidence(ctx, issues),
	}

	r.log.Debug("context analyzed",
		zap.String("url", ctx.URL),
		zap.String("page_type", pageType),
		zap.Int("issues", len(issues)))
	return analysis
}

// Instructions generates follow-up instructions from an analysis.
func (r *Rules) Instructions(ctx *types.PageContext, analysis *types.ContextAnalysis) []instruction.Instruction {
	var out []instruction.Instruction

	switch analysis.PageType {
	case types.PageTypeForm:
		out = append(out, r.formInstructions(ctx)...)
	case types.PageTypeCheckout:
		out = append(out, notify(instruction.PriorityHigh, &instruction.ContextualNotification{
			Message:   "You're in the checkout process. Please review your order carefully.",
			AutoClose: boolPtr(false),
		}))
	case types.PageTypeError:
		out = append(out, notify(instruction.PriorityHigh, &instruction.ContextualNotification{
			Message:   "It looks like there's an error on this page. Would you like to go back or try refreshing?",
			AutoClose: boolPtr(false),
			Actions: []instruction.Action{
				{Label: "Go Back", Action: "go_back"},
				{Label: "Refresh", Action: "refresh"},
			},
		}))
	}

	if ctx.Viewport != nil && ctx.Viewport.Width < 768 {
		out = append(out, newInstruction(instruction.TypeContentInstruction, instruction.PriorityLow, &instruction.ContentInstruction{
			Action:   instruction.ContentActionShowTooltip,
			Selector: "body",
			Content:  "Tip: You're viewing this on a mobile device. Tap and hold for more options.",
			Duration: 5000,
		}))
	}

	for _, issue := range analysis.Issues {
		out = append(out, r.issueInstructions(issue)...)
	}

	return out
}

func (r *Rules) pageType(ctx *types.PageContext) string {
	url := strings.ToLower(ctx.URL)
	title := strings.ToLower(ctx.Title)
	text := ""
	if ctx.DOM != nil {
		text = strings.ToLower(ctx.DOM.Text)
	}
	haystack := title + " " + text

	if containsAny(url, "checkout", "cart", "payment", "billing") {
		return types.PageTypeCheckout
	}
	if containsAny(url, "dashboard", "admin", "panel") {
		return types.PageTypeDashboard
	}
	if containsAny(haystack, "error", "404", "500", "not found", "server error") {
		return types.PageTypeError
	}
	if containsAny(haystack, "loading", "please wait", "processing") {
		return types.PageTypeLoading
	}
	if ctx.DOM != nil && len(ctx.DOM.Forms) > 0 {
		return types.PageTypeForm
	}
	return types.PageTypeContent
}

func intent(pageType string) string {
	switch pageType {
	case types.PageTypeForm:
		return types.IntentFormFilling
	case types.PageTypeCheckout:
		return types.IntentPurchasing
	default:
		return types.IntentBrowsing
	}
}

func (r *Rules) issues(ctx *types.PageContext) []types.Issue {
	var issues []types.Issue
	if ctx.DOM == nil {
		return issues
	}

	for _, input := range ctx.DOM.Inputs {
		if input.Required && input.Value == "" {
			issues = append(issues, types.Issue{
				Type:     "validation",
				Severity: "medium",
				Message:  fmt.Sprintf("Required field '%s' is empty", fieldName(input)),
				Element:  fieldSelector(input),
			})
		}
		if input.Value != "" {
			if re := r.patternFor(input.Type); re != nil && !re.MatchString(input.Value) {
				issues = append(issues, types.Issue{
					Type:     "validation",
					Severity: "medium",
					Message:  fmt.Sprintf("Field '%s' does not look like a valid %s", fieldName(input), input.Type),
					Element:  fieldSelector(input),
				})
			}
		}
		if input.Placeholder == "" && input.Name == "" {
			issues = append(issues, types.Issue{
				Type:     "accessibility",
				Severity: "low",
				Message:  "Input field missing label or placeholder",
				Element:  fieldSelector(input),
			})
		}
	}

	if len(ctx.DOM.Text) > 50_000 {
		issues = append(issues, types.Issue{
			Type:     "performance",
			Severity: "medium",
			Message:  "Page contains large amount of text content",
			Element:  "body",
		})
	}

	if ctx.Viewport != nil && ctx.Viewport.Width < 768 {
		issues = append(issues, types.Issue{
			Type:     "usability",
			Severity: "low",
			Message:  "Mobile viewport detected - ensure responsive design",
			Element:  "viewport",
		})
	}

	return issues
}

// patternFor maps an input type to its format pattern, nil when the type
// has no checkable format.
func (r *Rules) patternFor(inputType string) *regexp.Regexp {
	switch inputType {
	case "email":
		return r.emailRe
	case "tel":
		return r.phoneRe
	case "url":
		return r.urlRe
	}
	return nil
}

func (r *Rules) suggestions(ctx *types.PageContext, pageType string, issues []types.Issue) []types.Suggestion {
	var out []types.Suggestion

	if pageType == types.PageTypeForm && ctx.DOM != nil && len(ctx.DOM.Forms) > 0 {
		out = append(out, types.Suggestion{
			Type:    "improvement",
			Message: "Consider adding form validation feedback",
			Action:  "add_validation",
		})
	}
	if pageType == types.PageTypeCheckout {
		out = append(out, types.Suggestion{
			Type:    "next_step",
			Message: "Review your order before proceeding to payment",
			Action:  "review_order",
		})
	}

	validation := 0
	for _, i := range issues {
		if i.Type == "validation" {
			validation++
		}
	}
	if validation > 0 {
		out = append(out, types.Suggestion{
			Type:    "improvement",
			Message: fmt.Sprintf("Fix %d validation issues before proceeding", validation),
			Action:  "fix_validation",
		})
	}

	return out
}

func confidence(ctx *types.PageContext, issues []types.Issue) float64 {
	c := 0.5
	if ctx.DOM != nil && ctx.DOM.Text != "" {
		c += 0.2
	}
	if ctx.DOM != nil && len(ctx.DOM.Forms) > 0 {
		c += 0.1
	}
	if ctx.Viewport != nil {
		c += 0.1
	}
	if len(issues) > 0 {
		bonus := float64(len(issues)) * 0.05
		if bonus > 0.2 {
			bonus = 0.2
		}
		c += bonus
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

func (r *Rules) formInstructions(ctx *types.PageContext) []instruction.Instruction {
	var out []instruction.Instruction
	if ctx.DOM == nil {
		return out
	}

	for _, form := range ctx.DOM.Forms {
		var emptyRequired []types.InputField
		for _, f := range form.Fields {
			if f.Required && f.Value == "" {
				emptyRequired = append(emptyRequired, f)
			}
		}

		for i, f := range emptyRequired {
			if i >= 3 {
				break
			}
			out = append(out, newInstruction(instruction.TypeFormAssistance, instruction.PriorityMedium, &instruction.FormAssistance{
				Action:   instruction.FormActionHighlightField,
				Selector: fieldSelector(f),
				Message:  fmt.Sprintf("This field is required: %s", fieldName(f)),
			}))
		}

		if len(emptyRequired) > 0 {
			out = append(out, notify(instruction.PriorityMedium, &instruction.ContextualNotification{
				Message:   fmt.Sprintf("Please complete %d required fields to continue", len(emptyRequired)),
				AutoClose: boolPtr(false),
				Actions: []instruction.Action{
					{Label: "Highlight Fields", Action: "highlight_required_fields"},
				},
			}))
		}
	}

	return out
}

func (r *Rules) issueInstructions(issue types.Issue) []instruction.Instruction {
	switch issue.Type {
	case "validation":
		if issue.Element == "" {
			return nil
		}
		prio := instruction.PriorityMedium
		if issue.Severity == "high" {
			prio = instruction.PriorityHigh
		}
		return []instruction.Instruction{
			newInstruction(instruction.TypeFormAssistance, prio, &instruction.FormAssistance{
				Action:   instruction.FormActionShowError,
				Selector: issue.Element,
				Message:  issue.Message,
			}),
		}
	case "accessibility":
		return []instruction.Instruction{
			notify(instruction.PriorityLow, &instruction.ContextualNotification{
				Message:   fmt.Sprintf("Accessibility issue detected: %s", issue.Message),
				Duration:  8000,
				AutoClose: boolPtr(true),
			}),
		}
	}
	return nil
}

// BehaviorSummary aggregates visit patterns over a context history.
type BehaviorSummary struct {
	PagesVisited       int      `json:"pages_visited"`
	PageTypes          []string `json:"page_types"`
	AverageTimePerPage float64  `json:"average_time_per_page"`
	Patterns           []string `json:"behavior_patterns"`
}

// Behavior analyzes visit patterns across a history of contexts.
func (r *Rules) Behavior(history []*types.PageContext) BehaviorSummary {
	if len(history) == 0 {
		return BehaviorSummary{}
	}

	urls := make(map[string]bool)
	typeSet := make(map[string]bool)
	timeSpent := make(map[string]int64)
	for i, ctx := range history {
		urls[ctx.URL] = true
		typeSet[r.pageType(ctx)] = true
		if i+1 < len(history) {
			timeSpent[ctx.URL] += history[i+1].Timestamp - ctx.Timestamp
		}
	}

	var avg float64
	if len(timeSpent) > 0 {
		var total int64
		for _, t := range timeSpent {
			total += t
		}
		avg = float64(total) / float64(len(timeSpent))
	}

	pageTypes := make([]string, 0, len(typeSet))
	for t := range typeSet {
		pageTypes = append(pageTypes, t)
	}

	return BehaviorSummary{
		PagesVisited:       len(urls),
		PageTypes:          pageTypes,
		AverageTimePerPage: avg,
		Patterns:           r.patterns(history),
	}
}

func (r *Rules) patterns(history []*types.PageContext) []string {
	var patterns []string
	if len(history) < 2 {
		return patterns
	}

	sawCheckout := false
	sawSuccess := false
	sawError := false
	formAbandoned := false

	for _, ctx := range history {
		switch r.pageType(ctx) {
		case types.PageTypeCheckout:
			sawCheckout = true
		case types.PageTypeError:
			sawError = true
		case types.PageTypeForm:
			if !formAbandoned && ctx.DOM != nil {
				for _, inp := range ctx.DOM.Inputs {
					if inp.Required && inp.Value == "" {
						formAbandoned = true
						break
					}
				}
			}
		}
		url := strings.ToLower(ctx.URL)
		if strings.Contains(url, "success") || strings.Contains(url, "thank") {
			sawSuccess = true
		}
	}

	if formAbandoned {
		patterns = append(patterns, "form_abandonment")
	}
	if sawCheckout && !sawSuccess {
		patterns = append(patterns, "checkout_abandonment")
	}
	if sawError {
		patterns = append(patterns, "error_encountered")
	}
	return patterns
}

// newInstruction builds an analyzer-authored instruction. Analyzer IDs are
// UUIDs so they are distinguishable from session message IDs.
func newInstruction(t instruction.Type, prio instruction.Priority, data instruction.Payload) instruction.Instruction {
	return instruction.Instruction{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: types.NowMillis(),
		Priority:  prio,
		Data:      data,
	}
}

func notify(prio instruction.Priority, data *instruction.ContextualNotification) instruction.Instruction {
	return newInstruction(instruction.TypeContextualNotification, prio, data)
}

func fieldName(f types.InputField) string {
	if f.Name != "" {
		return f.Name
	}
	if f.ID != "" {
		return f.ID
	}
	return "Field"
}

func fieldSelector(f types.InputField) string {
	if f.ID != "" {
		return "#" + f.ID
	}
	if f.Name != "" {
		return fmt.Sprintf("[name='%s']", f.Name)
	}
	return "input"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func boolPtr(b bool) *bool { return &b }

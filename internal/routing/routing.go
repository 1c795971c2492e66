// Package routing classifies an incoming chat message in a single LLM call:
// whether it's an in-scope business question, which department it belongs
// to, and whether the question is too ambiguous to answer without asking
// the user to clarify. On any parse or provider failure it falls back to
// the safe default — treat it as business, ask for clarification — rather
// than silently answering with no department scope.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	qerrors "github.com/northbound/deptqa/internal/errors"
	"github.com/northbound/deptqa/internal/llmclient"
)

const maxSecondaryDepartments = 2

// UnknownDepartment is the primary department routing falls back to when
// the classifier can't place the question, or places it outside the known
// department set.
const UnknownDepartment = "unknown"

// Result is the routing classifier's decision for one message.
type Result struct {
	IsBusiness            bool     `json:"is_business"`
	BusinessConfidence    float64  `json:"business_confidence"`
	PrimaryDepartment     string   `json:"primary_department"`
	DepartmentConfidence  float64  `json:"department_confidence"`
	SecondaryDepartments  []string `json:"secondary_departments"`
	NeedsClarification    bool     `json:"needs_clarification"`
	ClarifyingQuestion    string   `json:"clarifying_question"`
}

// safeDefault is returned whenever the classifier call or its output can't
// be trusted: treat the message as in-scope but ask the user to narrow it
// down, rather than guessing a department.
func safeDefault(question string) Result {
	return Result{
		IsBusiness:         true,
		PrimaryDepartment:  UnknownDepartment,
		NeedsClarification: true,
		ClarifyingQuestion: question,
	}
}

// Classifier routes chat messages to a department using an LLM structured
// output call, with a deterministic post-validation pass against the
// department codes actually known to the service.
type Classifier struct {
	llm    llmclient.Provider
	logger *slog.Logger
}

// New builds a Classifier.
func New(llm llmclient.Provider, logger *slog.Logger) *Classifier {
	return &Classifier{llm: llm, logger: logger}
}

const systemPromptTemplate = `You are the routing assistant for an internal company Q&A system.
Respond strictly as JSON matching this shape:
{"is_business":bool,"business_confidence":0..1,"primary_department":string,"department_confidence":0..1,"secondary_departments":[string],"needs_clarification":bool,"clarifying_question":string}

Rules:
- If it's ambiguous whether the question is business-related, lean is_business=true.
- If the question is ambiguous enough that answering risks being wrong, set needs_clarification=true and provide exactly one clarifying_question.
- primary_department must be one of the known department codes, or "unknown".
- secondary_departments holds at most two additional plausible departments, or an empty list.

Known department codes: %s
`

// Route classifies userText against the given department codes. Any
// failure to call the provider or parse its response degrades to the safe
// default rather than propagating an error, since routing failures must
// never block the chat turn outright — they just lose department scoping.
func (c *Classifier) Route(ctx context.Context, userText string, departmentCodes []string, sessionContext string) Result {
	codes := normalizeCodes(departmentCodes)
	hint := "(none)"
	if len(codes) > 0 {
		hint = strings.Join(codes, ", ")
	}

	systemPrompt := fmt.Sprintf(systemPromptTemplate, hint)
	userPrompt := "User question:\n" + userText
	if sessionContext != "" {
		userPrompt += "\n\nRecent conversation summary:\n" + sessionContext
	}

	raw, err := c.llm.CompleteJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		c.logger.Warn("routing llm call failed, falling back to safe default", slog.Any("error", err))
		return safeDefault("We hit a temporary error routing your question. Could you try again?")
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.logger.Warn("routing response failed to parse, falling back to safe default",
			slog.Any("error", qerrors.Wrap(qerrors.ErrCodeRoutingFailed, err)))
		return safeDefault("Could you tell me which procedure, policy, or topic your question is about?")
	}

	if err := validate(result); err != nil {
		c.logger.Warn("routing response failed validation, falling back to safe default", slog.Any("error", err))
		return safeDefault("Could you tell me which procedure, policy, or topic your question is about?")
	}

	return postValidate(result, codes)
}

func validate(r Result) error {
	if r.NeedsClarification && strings.TrimSpace(r.ClarifyingQuestion) == "" {
		return fmt.Errorf("routing: needs_clarification set with no clarifying_question")
	}
	if strings.TrimSpace(r.PrimaryDepartment) == "" {
		return fmt.Errorf("routing: primary_department is empty")
	}
	return nil
}

// postValidate re-checks the classifier's department picks against the
// department codes actually registered with the service, since the model
// can hallucinate a department that doesn't exist (or no longer does).
func postValidate(r Result, knownCodes []string) Result {
	if r.PrimaryDepartment != UnknownDepartment && len(knownCodes) > 0 && !contains(knownCodes, r.PrimaryDepartment) {
		r.NeedsClarification = true
		r.ClarifyingQuestion = "Which department does this relate to? Choose from: " + strings.Join(knownCodes, ", ")
		r.PrimaryDepartment = UnknownDepartment
		r.DepartmentConfidence = 0
		r.SecondaryDepartments = nil
	}

	if len(knownCodes) > 0 {
		var filtered []string
		for _, d := range r.SecondaryDepartments {
			if d == r.PrimaryDepartment || !contains(knownCodes, d) {
				continue
			}
			if !contains(filtered, d) {
				filtered = append(filtered, d)
			}
			if len(filtered) == maxSecondaryDepartments {
				break
			}
		}
		r.SecondaryDepartments = filtered
	}

	return r
}

func normalizeCodes(codes []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

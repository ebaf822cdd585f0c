package driver

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/oxidize/pkg/collector"
)

// Plan is the oracle's answer for one unit: where the translation goes and
// what it is.
type Plan struct {
	// Module is the slash-separated module path under src/, without the
	// .rs suffix, e.g. "net/parser".
	Module string `json:"module"`

	// RustSignature is the public signature of the generated item.
	RustSignature string `json:"rust_signature"`

	// Code is the complete Rust source for the unit.
	Code string `json:"code"`
}

// planSchema constrains oracle answers before anything touches disk.
const planSchema = `{
  "type": "object",
  "required": ["module", "rust_signature", "code"],
  "properties": {
    "module": {"type": "string", "minLength": 1, "pattern": "^[A-Za-z_][A-Za-z0-9_/]*$"},
    "rust_signature": {"type": "string", "minLength": 1},
    "code": {"type": "string", "minLength": 1}
  }
}`

// ErrMalformedPlan means the oracle answer was not a usable plan.
var ErrMalformedPlan = errors.New("oracle answer is not a valid translation plan")

// ParsePlan extracts and validates the JSON plan from an oracle answer.
// Answers wrapped in markdown code fences are unwrapped first.
func ParsePlan(answer string) (*Plan, error) {
	raw := stripFences(answer)

	var decoded any

	err := json.Unmarshal([]byte(raw), &decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(planSchema),
		gojsonschema.NewGoLoader(decoded),
	)
	if err != nil {
		return nil, fmt.Errorf("validate plan: %w", err)
	}

	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrMalformedPlan, strings.Join(reasons, "; "))
	}

	var plan Plan

	err = json.Unmarshal([]byte(raw), &plan)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	return &plan, nil
}

// stripFences unwraps a ```...``` fenced block when the whole answer is one.
func stripFences(answer string) string {
	trimmed := strings.TrimSpace(answer)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line.
		trimmed = trimmed[idx+1:]
	}

	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	return strings.TrimSpace(trimmed)
}

// promptInput carries everything a unit prompt is built from.
type promptInput struct {
	ctx         *collector.Context
	crateName   string
	notes       string
	diagnostics []string
	groupSource []groupMember
}

type groupMember struct {
	name   string
	source string
}

// buildPrompt renders the translation request. References the oracle cannot
// rely on are stated explicitly so the prompt never asserts false
// completeness.
func buildPrompt(in promptInput) string {
	var b strings.Builder

	rec := in.ctx.Record

	fmt.Fprintf(&b, "Translate the following %s function to Rust for the crate %q.\n\n", rec.Language, in.crateName)
	fmt.Fprintf(&b, "Function: %s\n", rec.DisplayName())

	if rec.Signature != "" {
		fmt.Fprintf(&b, "Original signature: %s\n", rec.Signature)
	}

	fmt.Fprintf(&b, "\nOriginal source (%s:%d):\n```\n%s\n```\n", rec.File, rec.StartLine, in.ctx.Source)

	if len(in.ctx.Refs) > 0 {
		b.WriteString("\nReferenced symbols:\n")

		for _, ref := range in.ctx.Refs {
			writeRef(&b, ref)
		}
	}

	for _, member := range in.groupSource {
		fmt.Fprintf(&b, "\nMutually recursive with %s (translate against its original form):\n```\n%s\n```\n",
			member.name, member.source)
	}

	if len(in.diagnostics) > 0 {
		b.WriteString("\nThe previous attempt failed to build. Fix these diagnostics:\n")

		for _, diag := range in.diagnostics {
			fmt.Fprintf(&b, "- %s\n", diag)
		}
	}

	if in.notes != "" {
		fmt.Fprintf(&b, "\nAdditional notes:\n%s\n", in.notes)
	}

	b.WriteString("\nAnswer with a single JSON object, no prose: " +
		`{"module": "<module path under src/, slash-separated>", ` +
		`"rust_signature": "<public signature>", "code": "<complete Rust source>"}` + "\n")

	return b.String()
}

func writeRef(b *strings.Builder, ref collector.Ref) {
	switch ref.Status {
	case collector.RefTranslated:
		fmt.Fprintf(b, "- %s: already translated as %s::%s", ref.Name, ref.Module, ref.RustSymbol)

		if ref.Ambiguous {
			b.WriteString(" (several candidates exist; this is the most recent)")
		}

		b.WriteString("\n")
	case collector.RefPending:
		if ref.Replacement != nil {
			fmt.Fprintf(b, "- %s: will be replaced by %s::%s, call that instead\n",
				ref.Name, ref.Replacement.Library, ref.Replacement.Routine)

			return
		}

		fmt.Fprintf(b, "- %s: not yet translated, original at %s:%d:\n```\n%s\n```\n",
			ref.Name, ref.File, ref.StartLine, ref.Source)
	case collector.RefExternal:
		fmt.Fprintf(b, "- %s: external, status unknown; use the closest std or crate equivalent\n", ref.Name)
	}
}

package ai

import (
	"fmt"
	"strings"

	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/adapter"
)

// buildPrompt renders the system and user messages for a generation request.
// Prompt wording stays here so every provider sends the same thing.
func buildPrompt(req adapter.ContentRequest) (system, user string) {
	switch req.Kind {
	case model.ActionApplyToJob:
		system = "You write concise, professional cover letters. Address the role directly, reference concrete experience from the candidate summary, and stay under 300 words."
	default:
		system = "You write short, professional social media content for a career-focused audience."
	}

	var b strings.Builder
	if req.Role != "" {
		fmt.Fprintf(&b, "Role: %s\n", req.Role)
	}
	if req.ProfileSummary != "" {
		fmt.Fprintf(&b, "Candidate summary:\n%s\n", req.ProfileSummary)
	}
	if req.JobDescription != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n", req.JobDescription)
	}
	return system, b.String()
}

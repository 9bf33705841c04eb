package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/faultline/faultline/internal/evidence"
	"github.com/faultline/faultline/internal/fix"
	"github.com/faultline/faultline/internal/session"
	"github.com/fatih/color"
)

func phaseString(p session.Phase) string {
	switch p {
	case session.PhaseDiagnosisComplete:
		return color.GreenString(string(p))
	case session.PhaseFixInProgress:
		return color.YellowString(string(p))
	default:
		return color.CyanString(string(p))
	}
}

func confidenceString(c int) string {
	s := fmt.Sprintf("%d/100", c)
	switch {
	case c >= 80:
		return color.GreenString(s)
	case c >= 50:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

func severityString(s evidence.Severity) string {
	switch s {
	case evidence.SeverityCritical, evidence.SeverityHigh:
		return color.RedString(string(s))
	case evidence.SeverityMedium:
		return color.YellowString(string(s))
	default:
		return color.HiBlackString(string(s))
	}
}

func renderDiagnosis(w io.Writer, st *session.InvestigationState) {
	fmt.Fprintf(w, "Service:    %s\n", st.Incident.Service)
	fmt.Fprintf(w, "Severity:   %s\n", st.Incident.Severity)
	fmt.Fprintf(w, "Phase:      %s\n", phaseString(st.Phase))
	fmt.Fprintf(w, "Confidence: %s\n", confidenceString(st.OverallConfidence))
	if st.Reinvestigated {
		fmt.Fprintf(w, "Note:       %s\n", color.YellowString("verdict was challenged and re-investigated"))
	}

	if len(st.TasksCompleted) > 0 {
		names := make([]string, 0, len(st.TasksCompleted))
		for name := range st.TasksCompleted {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			rec := st.TasksCompleted[name]
			mark := color.GreenString("✓")
			if rec.Status == session.TaskFailed {
				mark = color.RedString("✗")
			} else if rec.Status == session.TaskSkipped {
				mark = color.HiBlackString("-")
			}
			parts = append(parts, name+" "+mark)
		}
		fmt.Fprintf(w, "Tasks:      %s\n", strings.Join(parts, "  "))
	}

	if len(st.Findings) > 0 {
		fmt.Fprintf(w, "\n%s\n", color.New(color.Bold).Sprint("Findings"))
		for i, f := range st.Findings {
			fmt.Fprintf(w, "  %d. [%s %s] %s\n", i+1, severityString(f.Severity), confidenceString(f.Confidence), f.Summary)
			if f.Verdict != nil && f.Verdict.Verdict == evidence.VerdictChallenged {
				fmt.Fprintf(w, "     %s\n", color.YellowString("critic challenged: "+f.Verdict.Reasoning))
			}
		}
	}

	if len(st.Pins) > 0 {
		fmt.Fprintf(w, "\n%s\n", color.New(color.Bold).Sprint("Evidence"))
		for _, p := range st.Pins {
			fmt.Fprintf(w, "  - [%s] %s %s\n", confidenceString(p.Confidence), p.Claim,
				color.HiBlackString("("+p.Source.Tool+")"))
		}
	}

	if len(st.Negatives) > 0 {
		fmt.Fprintf(w, "\n%s\n", color.New(color.Bold).Sprint("Ruled out"))
		for _, n := range st.Negatives {
			line := n.Checked
			if n.Note != "" {
				line += ": " + n.Note
			}
			fmt.Fprintf(w, "  - %s %s\n", line, color.HiBlackString("("+n.Location+")"))
		}
	}

	if st.Fix != nil {
		fmt.Fprintln(w)
		renderFix(w, st.Fix)
	}
}

func renderFix(w io.Writer, st *fix.State) {
	status := string(st.Status)
	switch st.Status {
	case fix.StatusPRCreated:
		status = color.GreenString(status)
	case fix.StatusRejected, fix.StatusFailed:
		status = color.RedString(status)
	default:
		status = color.YellowString(status)
	}
	fmt.Fprintf(w, "%s %s (attempt %d/%d)\n", color.New(color.Bold).Sprint("Fix:"), status, st.Attempt, st.MaxAttempts)
	if st.Proposal != nil && st.Proposal.Summary != "" {
		fmt.Fprintf(w, "  %s\n", st.Proposal.Summary)
	}
	if st.Branch != "" {
		fmt.Fprintf(w, "  Branch: %s\n", st.Branch)
	}
	if st.PRURL != "" {
		fmt.Fprintf(w, "  PR:     %s\n", color.CyanString(st.PRURL))
	}
	if st.Error != "" {
		fmt.Fprintf(w, "  Error:  %s\n", color.RedString(st.Error))
	}
}

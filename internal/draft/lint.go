package draft

import (
	"strings"

	"casedesk.org/internal/apperr"
)

// FlagLinter rejects flags whose message reads like a legal conclusion.
// It is a phrase blocklist and so advisory; review remains the control.
type FlagLinter struct {
	phrases []string
}

func NewFlagLinter(phrases []string) *FlagLinter {
	l := &FlagLinter{}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			l.phrases = append(l.phrases, p)
		}
	}
	return l
}

// Check validates every flag and returns the first violation.
func (l *FlagLinter) Check(flags []Flag) error {
	for i, f := range flags {
		if strings.TrimSpace(f.Kind) == "" {
			return apperr.Invalid("", "flag %d: kind is required", i)
		}
		switch f.Severity {
		case SeverityInfo, SeverityWarning, SeverityCritical:
		default:
			return apperr.Invalid("", "flag %d: unknown severity %q", i, f.Severity)
		}
		if strings.TrimSpace(f.Action) == "" {
			return apperr.Invalid("", "flag %d: action directive is required", i)
		}
		if phrase, hit := l.match(f.Message); hit {
			return apperr.Invalid(apperr.CodeFlagLegalConclusion, "flag %d: message states a legal conclusion (%q)", i, phrase)
		}
		if phrase, hit := l.match(f.Action); hit {
			return apperr.Invalid(apperr.CodeFlagLegalConclusion, "flag %d: action states a legal conclusion (%q)", i, phrase)
		}
	}
	return nil
}

func (l *FlagLinter) match(text string) (string, bool) {
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	for _, p := range l.phrases {
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

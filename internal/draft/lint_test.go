package draft

import (
	"testing"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/config"
)

func TestFlagLinter(t *testing.T) {
	l := NewFlagLinter(config.DefaultFlagPhrases)
	cases := []struct {
		name string
		flag Flag
		code string
	}{
		{"ok", Flag{Kind: "docs", Severity: SeverityInfo, Message: "Bank statements older than 3 months", Action: "needs more documents"}, ""},
		{"conclusion", Flag{Kind: "outcome", Severity: SeverityCritical, Message: "Discharge will be denied", Action: "needs interview"}, apperr.CodeFlagLegalConclusion},
		{"spacing", Flag{Kind: "outcome", Severity: SeverityWarning, Message: "The debtor  IS\tLIABLE for this", Action: "needs interview"}, apperr.CodeFlagLegalConclusion},
		{"action conclusion", Flag{Kind: "outcome", Severity: SeverityWarning, Message: "Asset transfer found", Action: "tell client they will lose"}, apperr.CodeFlagLegalConclusion},
		{"severity", Flag{Kind: "docs", Severity: "urgent", Message: "x", Action: "y"}, apperr.CodeValidationFailed},
		{"no action", Flag{Kind: "docs", Severity: SeverityInfo, Message: "x"}, apperr.CodeValidationFailed},
		{"no kind", Flag{Severity: SeverityInfo, Message: "x", Action: "y"}, apperr.CodeValidationFailed},
	}
	for _, tc := range cases {
		err := l.Check([]Flag{tc.flag})
		if tc.code == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if apperr.CodeOf(err) != tc.code {
			t.Errorf("%s: got %v want %s", tc.name, err, tc.code)
		}
	}
}

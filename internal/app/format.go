package app

import (
	"fmt"
	"time"

	"github.com/imoes/agora/internal/domain"
)

// System message texts are client-facing German strings; the clients
// render them verbatim, so the wording is part of the contract.

func callStartedText(user *domain.User, audioOnly bool) string {
	label := "Videoanruf"
	if audioOnly {
		label = "Audioanruf"
	}
	return fmt.Sprintf("%s hat einen %s gestartet", user.DisplayName, label)
}

func callEndedText(d time.Duration) string {
	return "Anruf beendet – Dauer: " + formatCallDuration(d)
}

// formatCallDuration renders whole seconds, with minutes split off once
// the call lasted at least one.
func formatCallDuration(d time.Duration) string {
	total := int(d / time.Second)
	if total < 0 {
		total = 0
	}
	mins := total / 60
	secs := total % 60
	if mins > 0 {
		return fmt.Sprintf("%d Min. %d Sek.", mins, secs)
	}
	return fmt.Sprintf("%d Sek.", secs)
}

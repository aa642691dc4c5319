package notify

import (
	"fmt"
	"strings"

	"github.com/NovaLinkLabs/memberlink/backend/internal/presentation"
)

// LinkSuccessCard announces a freshly established account link.
func LinkSuccessCard(username, method string) Message {
	return Message{Text: fmt.Sprintf("Account linked.\nUsername: %s\nMethod: %s", username, method)}
}

// BalanceCard renders the presentation view as a compact text card.
func BalanceCard(view presentation.View) Message {
	var card strings.Builder
	fmt.Fprintf(&card, "Account: %s\n", view.Username)
	fmt.Fprintf(&card, "Balance: %s\n", view.BalanceDisplay)
	fmt.Fprintf(&card, "Tier: %s (%d%%", view.Tier, view.ProgressPercent)
	if view.NextTier != "" {
		fmt.Fprintf(&card, " to %s", view.NextTier)
	}
	card.WriteString(")\n")
	fmt.Fprintf(&card, "Points: %d\n", view.Points)
	fmt.Fprintf(&card, "Last sync: %s", view.LastSyncDisplay)
	return Message{Text: card.String()}
}

// NotLinkedCard prompts an unlinked user to link an account first.
func NotLinkedCard() Message {
	return Message{Text: "No account is linked yet. Link your gaming account to see your balance."}
}

package dispatch

import (
	"fmt"
	"strings"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/memory"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
)

// FormatContext renders up to n of the most-recent-first turns, oldest first,
// as a prompt prefix. It returns "" when there is nothing to render.
func FormatContext(turns []memory.Turn, n int) string {
	if len(turns) == 0 || n <= 0 {
		return ""
	}
	if len(turns) > n {
		turns = turns[:n]
	}

	var b strings.Builder
	b.WriteString("Recent conversation context:\n")
	for i := len(turns) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turns[i].UserMessage, turns[i].AssistantResponse)
	}
	b.WriteString("\nCurrent query: ")
	return b.String()
}

// HistoryLabel picks the command_type stored with a turn. It is independent of
// the router's decision: math is only recorded for explicit solve/calculate
// requests.
func HistoryLabel(utterance string) router.CommandType {
	lower := strings.ToLower(utterance)
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}

	switch {
	case router.IsStopPhrase(lower):
		return router.CommandVoiceControl
	case has("open", "close", "volume", "mute"):
		return router.CommandSystem
	case has("solve", "calculate"):
		return router.CommandMath
	case has("code", "program"):
		return router.CommandCode
	case has("mysql", "database", "sql"):
		return router.CommandDatabase
	case has("email", "inbox"):
		return router.CommandEmail
	case has("news"):
		return router.CommandNews
	case strings.HasPrefix(lower, "open youtube"), strings.HasPrefix(lower, "open chrome"):
		return router.CommandWeb
	}
	return router.CommandGeneral
}

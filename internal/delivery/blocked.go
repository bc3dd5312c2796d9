package delivery

import "strings"

// Canonical "recipient unreachable" signatures. Codes are matched exactly
// (case-insensitive); phrases are matched as substrings of the error message.
// The set is deliberately closed: anything not listed here is transient, so a
// flaky network can never archive a user's routes.
var blockedCodes = map[string]struct{}{
	"FORBIDDEN_BOT_BLOCKED": {},
	"USER_DEACTIVATED":      {},
	"CHAT_NOT_FOUND":        {},
}

var blockedPhrases = []string{
	"bot was blocked by the user",
	"user is deactivated",
	"chat not found",
	"bot was kicked from",
}

// IsBlockedError reports whether a failed outcome means the recipient blocked
// the bot (or is otherwise permanently unreachable).
func IsBlockedError(o Outcome) bool {
	if o.Success {
		return false
	}
	if _, ok := blockedCodes[strings.ToUpper(strings.TrimSpace(o.ErrorCode))]; ok {
		return true
	}
	msg := strings.ToLower(o.ErrorMessage)
	for _, p := range blockedPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// ClassifyFailure maps a failed outcome to its FailureKind. Calling it on a
// successful outcome is a caller bug; it answers transient to stay total.
func ClassifyFailure(o Outcome) FailureKind {
	if IsBlockedError(o) {
		return FailureBlocked
	}
	return FailureTransient
}

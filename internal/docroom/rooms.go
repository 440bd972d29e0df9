package docroom

import "strings"

// Room naming. The primary document lives in a session-scoped room until
// the idea is first persisted, after which the key derives from the idea id.
func DocumentRoom(ideaID string) string {
	return "idea-doc-" + strings.TrimSpace(ideaID)
}

func PreSaveDocumentRoom(sessionID string) string {
	return "idea-doc-new-" + strings.TrimSpace(sessionID)
}

func PlanRoom(ideaID string) string {
	return "impl-plan-" + strings.TrimSpace(ideaID)
}

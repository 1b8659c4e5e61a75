package store

import "fmt"

// Collection names under the per-agent key prefix.
const (
	CollectionNotes         = "notes"
	CollectionLists         = "lists"
	CollectionSchedules     = "schedules"
	CollectionExpenses      = "expenses"
	CollectionMemory        = "memory"
	CollectionSkills        = "skills"
	CollectionSubscriptions = "subscriptions"
	CollectionLocations     = "locations"
	CollectionUndo          = "undo"
	CollectionWorkingMemory = "workingMemory"
	CollectionTelegramFiles = "telegramFiles"
)

// Append-only shared streams.
const (
	KeyUsageEvents    = "user_usage_events"
	KeyResourceEvents = "user_resource_events"
)

// UserWorkspaceKey addresses a user's agent workspace document.
func UserWorkspaceKey(userID string) string {
	return fmt.Sprintf("user:%s:agentWorkspace", userID)
}

// AgentCollectionKey addresses one collection owned by (userID, agentID).
func AgentCollectionKey(userID, agentID, collection string) string {
	return fmt.Sprintf("user:%s:agent:%s:%s", userID, agentID, collection)
}

// AgentPrefix is the scan prefix covering every collection of one agent.
func AgentPrefix(userID, agentID string) string {
	return fmt.Sprintf("user:%s:agent:%s:", userID, agentID)
}

// UserPrefix is the scan prefix covering everything a user owns.
func UserPrefix(userID string) string {
	return fmt.Sprintf("user:%s:", userID)
}

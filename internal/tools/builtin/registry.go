package builtin

import (
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/scheduler"
	"github.com/Drakonis96/optimAIzer-sub001/internal/toolregistry"
)

// Collaborators are the agent's external backends. Nil members leave their
// tools unregistered, so an agent without a calendar integration never shows
// calendar tools to the model.
type Collaborators struct {
	Outbound  ports.Outbound
	Scheduler *scheduler.Scheduler
	Searcher  ports.WebSearcher
	Calendar  ports.CalendarBackend
	Email     ports.EmailBackend
	Home      ports.HomeBackend
	Media     ports.MediaBackend
}

// RegistryConfig tunes the assembled tool set.
type RegistryConfig struct {
	// Permissions gates calls by category; nil allows everything.
	Permissions toolregistry.PermissionFunc

	// Dedup tunes the calendar-creation idempotency window.
	Dedup toolregistry.DedupConfig

	// WorkDir is the terminal tool's working directory.
	WorkDir string
}

// BuildRegistry assembles one agent's tool registry: store-backed tools
// always, collaborator-backed tools when the backend is wired, everything
// inside the permission decorator, and undo_last registered dead last so its
// inverse dispatch can reach every other tool.
func BuildRegistry(binding Binding, collab Collaborators, cfg RegistryConfig) *toolregistry.Registry {
	binding = binding.withDefaults()
	reg := toolregistry.New()
	gate := func(tool ports.ToolExecutor) ports.ToolExecutor {
		return toolregistry.WrapPermissioned(tool, cfg.Permissions)
	}

	reg.MustRegister(
		gate(NewCreateNote(binding)),
		gate(NewSearchNotes(binding)),
		gate(NewUpdateNote(binding)),
		gate(NewDeleteNote(binding)),
		gate(NewAddToList(binding)),
		gate(NewRemoveFromList(binding)),
		gate(NewCheckListItem(binding)),
		gate(NewShowList(binding)),
		gate(NewAddExpense(binding)),
		gate(NewListExpenses(binding)),
		gate(NewDeleteExpense(binding)),
		gate(NewSaveMemory(binding)),
		gate(NewRecallMemory(binding)),
		gate(NewForgetMemory(binding)),
		gate(NewUpdateWorkingMemory(binding)),
	)

	if collab.Scheduler != nil {
		reg.MustRegister(
			gate(NewSetReminder(binding, collab.Scheduler)),
			gate(NewScheduleTask(binding, collab.Scheduler)),
			gate(NewCancelReminder(binding, collab.Scheduler)),
			gate(NewListReminders(binding, collab.Scheduler)),
			gate(NewSetLocationReminder(binding, collab.Scheduler)),
			gate(NewCreateSubscription(binding, collab.Scheduler)),
			gate(NewListSubscriptions(binding, collab.Scheduler)),
			gate(NewDeleteSubscription(binding, collab.Scheduler)),
		)
	}
	if collab.Searcher != nil {
		reg.MustRegister(gate(NewWebSearch(binding, collab.Searcher)))
	}
	reg.MustRegister(gate(NewFetchWebpage(binding)))

	if collab.Outbound != nil {
		reg.MustRegister(gate(NewSendTelegramMessage(binding, collab.Outbound)))
	}
	if collab.Calendar != nil {
		// Creation sits inside the idempotency window; the permission gate
		// wraps outermost so a denied call is never reported "already done".
		create := toolregistry.WrapDeduplicated(
			NewCreateCalendarEvent(binding, collab.Calendar),
			CalendarFingerprint(binding.UserID, binding.AgentID, collab.Calendar.Name()),
			cfg.Dedup,
			binding.Logger,
		)
		reg.MustRegister(
			gate(create),
			gate(NewUpdateCalendarEvent(binding, collab.Calendar)),
			gate(NewDeleteCalendarEvent(binding, collab.Calendar)),
			gate(NewListCalendarEvents(binding, collab.Calendar)),
		)
	}
	if collab.Email != nil {
		reg.MustRegister(
			gate(NewSendEmail(binding, collab.Email)),
			gate(NewReplyEmail(binding, collab.Email)),
			gate(NewSearchEmail(binding, collab.Email)),
			gate(NewReadEmail(binding, collab.Email)),
		)
	}
	if collab.Home != nil {
		reg.MustRegister(
			gate(NewGetHomeState(binding, collab.Home)),
			gate(NewSetHomeState(binding, collab.Home)),
		)
	}
	if collab.Media != nil {
		reg.MustRegister(
			gate(NewSearchMedia(binding, collab.Media)),
			gate(NewRequestMedia(binding, collab.Media)),
			gate(NewDeleteMedia(binding, collab.Media)),
		)
	}

	reg.MustRegister(
		gate(NewRunTerminalCommand(binding, cfg.WorkDir)),
		gate(NewExecuteCode(binding)),
	)

	reg.MustRegister(gate(NewUndoLast(binding, reg)))
	return reg
}

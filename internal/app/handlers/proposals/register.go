package proposals

import (
	"log/slog"
	"time"

	"rateguard/internal/app/commands"
	"rateguard/internal/app/execution"
	"rateguard/internal/app/policies"
	"rateguard/internal/app/queries"
	"rateguard/internal/app/uow"
	domainproposal "rateguard/internal/domain/proposal"
)

// Deps carries everything the proposal handlers need.
type Deps struct {
	Units    uow.UoWFactory
	Guards   GuardPolicy
	Risk     domainproposal.RiskPolicy
	Approval domainproposal.ApprovalPolicy
	Engine   *execution.Engine
	Locker   policies.ExecutionLocker
	LockTTL  time.Duration
	Receipts policies.ReceiptArchive
	Events   Events
	Logger   *slog.Logger
	Now      Clock
}

// Register binds every proposal command and query to the buses.
func Register(cmdBus *commands.InMemoryBus, queryBus *queries.InMemoryBus, d Deps) {
	commands.RegisterHandler(cmdBus, submitKey, &SubmitHandler{
		Units:    d.Units,
		Guards:   d.Guards,
		Risk:     d.Risk,
		Approval: d.Approval,
		Events:   d.Events,
		Logger:   d.Logger,
		Now:      d.Now,
	})
	commands.RegisterHandler(cmdBus, approveKey, &ApproveHandler{Units: d.Units, Events: d.Events, Now: d.Now})
	commands.RegisterHandler(cmdBus, rejectKey, &RejectHandler{Units: d.Units, Events: d.Events, Now: d.Now})
	commands.RegisterHandler(cmdBus, executeKey, &ExecuteHandler{
		Units:    d.Units,
		Engine:   d.Engine,
		Locker:   d.Locker,
		LockTTL:  d.LockTTL,
		Receipts: d.Receipts,
		Events:   d.Events,
		Logger:   d.Logger,
		Now:      d.Now,
	})
	bulk := &BulkHandler{Units: d.Units, Events: d.Events, Now: d.Now}
	commands.RegisterHandler(cmdBus, bulkApproveKey, bulk.Approve())
	commands.RegisterHandler(cmdBus, bulkRejectKey, bulk.Reject())

	queries.RegisterHandler(queryBus, getKey, &GetHandler{Units: d.Units})
	queries.RegisterHandler(queryBus, listKey, &ListHandler{Units: d.Units})
	queries.RegisterHandler(queryBus, calendarKey, &CalendarHandler{Units: d.Units})
	queries.RegisterHandler(queryBus, impactKey, &ImpactHandler{Units: d.Units, Guards: d.Guards})
}

package proposals

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rateguard/internal/app/commands"
	"rateguard/internal/app/dto"
	"rateguard/internal/app/execution"
	"rateguard/internal/app/middleware"
	appoutbox "rateguard/internal/app/outbox"
	"rateguard/internal/app/policies"
	"rateguard/internal/app/queries"
	"rateguard/internal/app/validation"
	"rateguard/internal/domain/guardrail"
	domainproposal "rateguard/internal/domain/proposal"
	"rateguard/internal/infra/lock"
	"rateguard/internal/infra/pms"
	"rateguard/internal/infra/storage/memory"
)

var testNow = time.Date(2025, 12, 20, 9, 0, 0, 0, time.UTC)

type staticGuards struct {
	guard guardrail.Guard
}

func (s staticGuards) GuardFor(string) guardrail.Guard { return s.guard }

type recordingArchive struct {
	mu       sync.Mutex
	receipts []policies.Receipt
}

func (r *recordingArchive) Store(_ context.Context, receipt policies.Receipt) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, receipt)
	return "receipts/" + receipt.ProposalID, nil
}

type fixture struct {
	cmds    commands.Bus
	queries queries.Bus
	pms     *pms.Memory
	locker  *lock.Memory
	outbox  *memory.Outbox
	store   *memory.ProposalStore
	archive *recordingArchive
}

func newFixture(t *testing.T, approval domainproposal.ApprovalPolicy) *fixture {
	t.Helper()
	store := memory.NewProposalStore()
	box := memory.NewOutbox()
	units := memory.Factory{Proposals: store, Outbox: box}
	fake := pms.NewMemory()
	locker := lock.NewMemory()
	archive := &recordingArchive{}
	clock := Clock(func() time.Time { return testNow })

	cmdBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()
	Register(cmdBus, queryBus, Deps{
		Units:    units,
		Guards:   staticGuards{guard: guardrail.Guard{MaxChangePct: 30}},
		Risk:     domainproposal.DefaultRiskPolicy(),
		Approval: approval,
		Engine:   &execution.Engine{Units: units, PMS: fake, Now: clock},
		Locker:   locker,
		Receipts: archive,
		Events:   Events{Outbox: box},
		Now:      clock,
	})
	v := validation.New()
	return &fixture{
		cmds: middleware.ChainCommands(cmdBus,
			middleware.Validation(v),
			middleware.Idempotency(memory.NewIdempotencyStore(), middleware.IdempotencyOptions{}),
			middleware.OutboxFlush(box, nil),
			middleware.Transaction(units, nil),
		),
		queries: middleware.ChainQueries(queryBus, middleware.QueryValidation(v)),
		pms:     fake,
		locker:  locker,
		outbox:  box,
		store:   store,
		archive: archive,
	}
}

func (f *fixture) submit(t *testing.T, cmd SubmitProposalCommand) dto.Proposal {
	t.Helper()
	res, err := commands.Dispatch[SubmitProposalCommand, dto.SubmitResult](context.Background(), f.cmds, cmd)
	require.NoError(t, err)
	return res.Proposal
}

func basicSubmit(id string) SubmitProposalCommand {
	confidence := 90
	return SubmitProposalCommand{
		ProposalID:    id,
		ListingID:     "lst-1",
		StartDate:     "2026-01-01",
		EndDate:       "2026-01-05",
		CurrentPrice:  decimal.NewNullDecimal(decimal.NewFromInt(500)),
		ProposedPrice: decimal.NewNullDecimal(decimal.NewFromInt(560)),
		Confidence:    &confidence,
	}
}

func (f *fixture) get(t *testing.T, id string) dto.Proposal {
	t.Helper()
	p, err := queries.Ask[GetProposalQuery, dto.Proposal](context.Background(), f.queries, GetProposalQuery{ProposalID: id})
	require.NoError(t, err)
	return p
}

func (f *fixture) execute(t *testing.T, id string) dto.ExecutionResult {
	t.Helper()
	res, err := commands.Dispatch[ExecuteProposalCommand, dto.ExecutionResult](context.Background(), f.cmds, ExecuteProposalCommand{ProposalID: id})
	require.NoError(t, err)
	return res
}

func (f *fixture) approve(id string) (dto.Proposal, error) {
	return commands.Dispatch[ApproveProposalCommand, dto.Proposal](context.Background(), f.cmds, ApproveProposalCommand{ProposalID: id, Reviewer: "alice"})
}

func eventNames(box *memory.Outbox) []string {
	var names []string
	for _, rec := range box.Delivered() {
		names = append(names, rec.Name)
	}
	return names
}

func TestSubmitDerivesChangeAndRisk(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	p := f.submit(t, basicSubmit("p1"))

	assert.Equal(t, "pending", p.Status)
	assert.Equal(t, 12, p.ChangePct)
	assert.Equal(t, "medium", p.Risk)
	assert.False(t, p.Clamped)
	assert.Equal(t, 5, p.Nights)
	assert.Equal(t, []string{"proposal.submitted"}, eventNames(f.outbox))
}

func TestSubmitClipsToMaxChange(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	cmd := basicSubmit("p1")
	cmd.ProposedPrice = decimal.NewNullDecimal(decimal.NewFromInt(900))
	p := f.submit(t, cmd)

	assert.True(t, p.Clamped)
	assert.True(t, p.ProposedPrice.Decimal.Equal(decimal.NewFromInt(650)))
	assert.True(t, p.RequestedPrice.Decimal.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, 30, p.ChangePct)
	assert.Equal(t, "high", p.Risk)
}

func TestSubmitAutoApprovesLowRiskWhenEnabled(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{AutoApproveLowRisk: true})
	cmd := basicSubmit("p1")
	cmd.ProposedPrice = decimal.NewNullDecimal(decimal.NewFromInt(520))

	res, err := commands.Dispatch[SubmitProposalCommand, dto.SubmitResult](context.Background(), f.cmds, cmd)
	require.NoError(t, err)
	assert.Equal(t, "approved", res.Proposal.Status)
	assert.True(t, res.Proposal.AutoApproved)
	assert.Equal(t, domainproposal.SystemReviewer, res.Proposal.ReviewedBy)
	assert.Equal(t, []string{"proposal.submitted", "proposal.approved"}, eventNames(f.outbox))

	medium := f.submit(t, basicSubmit("p2"))
	assert.Equal(t, "pending", medium.Status)
}

func TestSubmitZeroCurrentPriceNeedsReview(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{AutoApproveLowRisk: true})
	cmd := basicSubmit("p1")
	cmd.CurrentPrice = decimal.NewNullDecimal(decimal.Zero)
	cmd.ProposedPrice = decimal.NewNullDecimal(decimal.NewFromInt(10000))

	res, err := commands.Dispatch[SubmitProposalCommand, dto.SubmitResult](context.Background(), f.cmds, cmd)
	require.NoError(t, err)
	assert.Equal(t, "pending", res.Proposal.Status)
	assert.False(t, res.Proposal.AutoApproved)
	assert.Equal(t, "no current price to compare against", res.Decision)

	res2 := f.execute(t, "p1")
	assert.False(t, res2.Success)
	assert.Zero(t, f.pms.Calls())
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	bad := 150
	cases := map[string]func(*SubmitProposalCommand){
		"missing listing":   func(c *SubmitProposalCommand) { c.ListingID = "" },
		"inverted range":    func(c *SubmitProposalCommand) { c.EndDate = "2025-12-01" },
		"bad date":          func(c *SubmitProposalCommand) { c.StartDate = "tomorrow" },
		"confidence range":  func(c *SubmitProposalCommand) { c.Confidence = &bad },
		"negative proposed": func(c *SubmitProposalCommand) { c.ProposedPrice = decimal.NewNullDecimal(decimal.NewFromInt(-1)) },
		"missing current":   func(c *SubmitProposalCommand) { c.CurrentPrice = decimal.NullDecimal{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := basicSubmit("p-" + name)
			mutate(&cmd)
			_, err := commands.Dispatch[SubmitProposalCommand, dto.SubmitResult](context.Background(), f.cmds, cmd)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}
	assert.Zero(t, f.store.Len())
}

func TestSubmitIsIdempotent(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	cmd := basicSubmit("")
	cmd.IdempotencyKeyV = "req-1"

	first := f.submit(t, cmd)
	second := f.submit(t, cmd)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.store.Len())
}

func TestApproveOnlyOnce(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	f.submit(t, basicSubmit("p1"))

	p, err := f.approve("p1")
	require.NoError(t, err)
	assert.Equal(t, "approved", p.Status)
	assert.Equal(t, "alice", p.ReviewedBy)

	_, err = f.approve("p1")
	var terr *domainproposal.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domainproposal.StatusApproved, terr.Current)
	assert.Equal(t, "proposal p1: already approved", err.Error())

	_, err = commands.Dispatch[RejectProposalCommand, dto.Proposal](context.Background(), f.cmds, RejectProposalCommand{ProposalID: "p1"})
	require.ErrorIs(t, err, domainproposal.ErrInvalidTransition)
}

func TestApproveUnknownProposal(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	_, err := f.approve("missing")
	require.ErrorIs(t, err, domainproposal.ErrProposalNotFound)
}

func TestRejectRecordsNote(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	f.submit(t, basicSubmit("p1"))

	p, err := commands.Dispatch[RejectProposalCommand, dto.Proposal](context.Background(), f.cmds, RejectProposalCommand{ProposalID: "p1", Reviewer: "bob", Note: "event weekend"})
	require.NoError(t, err)
	assert.Equal(t, "rejected", p.Status)
	assert.Equal(t, "event weekend", p.RejectionNote)
}

func TestExecuteHappyPath(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	f.submit(t, basicSubmit("p1"))
	_, err := f.approve("p1")
	require.NoError(t, err)

	res := f.execute(t, "p1")

	assert.True(t, res.Success)
	assert.Equal(t, 5, res.UpdatedDays)
	assert.Equal(t, 5, res.TotalDays)
	assert.True(t, res.Verified)
	assert.Equal(t, "executed", res.Status)
	assert.Equal(t, "receipts/p1", res.ReceiptKey)

	stored := f.get(t, "p1")
	assert.Equal(t, "executed", stored.Status)
	assert.Equal(t, 1, stored.ExecutionAttempts)
	require.NotNil(t, stored.ExecutedAt)
	require.Len(t, f.archive.receipts, 1)
	assert.Equal(t, 1, f.archive.receipts[0].Attempt)
	assert.Contains(t, eventNames(f.outbox), "proposal.executed")
}

func TestExecuteFailureRevertsAndRetrySucceeds(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	f.submit(t, basicSubmit("p1"))
	_, err := f.approve("p1")
	require.NoError(t, err)
	f.pms.FailOn("lst-1", time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), nil)

	res := f.execute(t, "p1")
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.UpdatedDays)
	assert.False(t, res.Verified)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, "pending", res.Status)

	stored := f.get(t, "p1")
	assert.Equal(t, "pending", stored.Status)
	assert.True(t, stored.ProposedPrice.Decimal.Equal(decimal.NewFromInt(560)))
	require.NotNil(t, stored.LastExecution)
	assert.False(t, stored.LastExecution.Success)

	f.pms.ClearFailures()
	_, err = f.approve("p1")
	require.NoError(t, err)
	retry := f.execute(t, "p1")
	assert.True(t, retry.Success)
	assert.True(t, retry.Verified)
	assert.Equal(t, "executed", f.get(t, "p1").Status)
	assert.Equal(t, 2, f.get(t, "p1").ExecutionAttempts)
}

func TestExecuteRequiresApproval(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	f.submit(t, basicSubmit("p1"))

	res := f.execute(t, "p1")
	assert.False(t, res.Success)
	assert.Equal(t, "proposal is pending, expected approved", res.Error)
	assert.Zero(t, f.pms.Calls())
	assert.Equal(t, "pending", f.get(t, "p1").Status)

	missing := f.execute(t, "nope")
	assert.Equal(t, "proposal not found", missing.Error)
}

func TestExecuteRefusesConcurrentRun(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	f.submit(t, basicSubmit("p1"))
	_, err := f.approve("p1")
	require.NoError(t, err)

	unlock, err := f.locker.TryLock(context.Background(), lockKey("p1"), time.Minute)
	require.NoError(t, err)
	res := f.execute(t, "p1")
	assert.False(t, res.Success)
	assert.Equal(t, execution.ErrInProgress.Error(), res.Error)
	assert.Zero(t, f.pms.Calls())
	require.NoError(t, unlock(context.Background()))

	assert.True(t, f.execute(t, "p1").Success)
}

func TestBulkApprove(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		f.submit(t, basicSubmit(id))
	}

	res, err := commands.Dispatch[BulkApproveCommand, dto.BulkResult](context.Background(), f.cmds, BulkApproveCommand{ProposalIDs: []string{"p1", "p2", "p3", "p1"}})
	require.NoError(t, err)
	assert.Equal(t, dto.BulkResult{Success: true, Count: 3}, res)
	for _, id := range []string{"p1", "p2", "p3"} {
		assert.Equal(t, "approved", f.get(t, id).Status)
	}
	untouched := f.get(t, "p4")
	assert.Equal(t, "pending", untouched.Status)
	assert.Empty(t, untouched.ReviewedBy)
	assert.Zero(t, f.pms.Calls(), "approval never pushes prices")
}

func TestCommittedCommandSurvivesEventSinkOutage(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	f.submit(t, basicSubmit("p1"))
	down := true
	f.outbox.Sink = func(context.Context, appoutbox.EventRecord) error {
		if down {
			return errors.New("kafka down")
		}
		return nil
	}

	p, err := f.approve("p1")
	require.NoError(t, err)
	assert.Equal(t, "approved", p.Status)
	assert.Equal(t, 1, f.outbox.Pending())

	res := f.execute(t, "p1")
	assert.True(t, res.Success)
	assert.Equal(t, "executed", res.Status)

	down = false
	require.NoError(t, f.outbox.Flush(context.Background()))
	assert.Zero(t, f.outbox.Pending())
	assert.Equal(t, []string{"proposal.submitted", "proposal.approved", "proposal.executed"}, eventNames(f.outbox))
}

func TestBulkIsAllOrNothing(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	f.submit(t, basicSubmit("p1"))
	f.submit(t, basicSubmit("p2"))
	_, err := f.approve("p2")
	require.NoError(t, err)

	_, err = commands.Dispatch[BulkRejectCommand, dto.BulkResult](context.Background(), f.cmds, BulkRejectCommand{ProposalIDs: []string{"p1", "p2"}})
	require.ErrorIs(t, err, domainproposal.ErrInvalidTransition)
	assert.Equal(t, "pending", f.get(t, "p1").Status)

	_, err = commands.Dispatch[BulkRejectCommand, dto.BulkResult](context.Background(), f.cmds, BulkRejectCommand{ProposalIDs: []string{"p1", "ghost"}})
	require.ErrorIs(t, err, domainproposal.ErrProposalNotFound)
	assert.Equal(t, "pending", f.get(t, "p1").Status)
}

func TestBulkRejectsEmptyList(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	for _, ids := range [][]string{nil, {}, {""}} {
		_, err := commands.Dispatch[BulkApproveCommand, dto.BulkResult](context.Background(), f.cmds, BulkApproveCommand{ProposalIDs: ids})
		require.ErrorIs(t, err, validation.ErrValidation)
	}

	bare := &BulkHandler{Units: memory.Factory{Proposals: memory.NewProposalStore()}}
	_, err := bare.Approve().Handle(context.Background(), BulkApproveCommand{})
	require.ErrorIs(t, err, validation.ErrValidation)
}

func TestListAndCalendar(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	f.submit(t, basicSubmit("p1"))
	other := basicSubmit("p2")
	other.StartDate, other.EndDate = "2026-01-04", "2026-01-06"
	f.submit(t, other)
	_, err := f.approve("p1")
	require.NoError(t, err)

	pending, err := queries.Ask[ListProposalsQuery, []dto.Proposal](context.Background(), f.queries, ListProposalsQuery{Statuses: []string{"pending"}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p2", pending[0].ID)

	_, err = queries.Ask[ListProposalsQuery, []dto.Proposal](context.Background(), f.queries, ListProposalsQuery{Statuses: []string{"done"}})
	require.ErrorIs(t, err, validation.ErrValidation)

	cal, err := queries.Ask[CalendarQuery, dto.Calendar](context.Background(), f.queries, CalendarQuery{ListingID: "lst-1", From: "2026-01-01", To: "2026-01-06"})
	require.NoError(t, err)
	require.Len(t, cal.Days, 6)
	first := cal.Days[0]
	assert.Equal(t, "approved", first.ProposalStatus)
	assert.True(t, first.CurrentPrice.Equal(decimal.NewFromInt(560)))
	assert.False(t, first.ProposedPrice.Valid)
	assert.Equal(t, "p1", cal.Days[2].ProposalID)
	// equal timestamps: the higher id wins the overlapping nights
	assert.Equal(t, "p2", cal.Days[3].ProposalID)
}

func TestImpact(t *testing.T) {
	f := newFixture(t, domainproposal.ApprovalPolicy{})
	f.submit(t, basicSubmit("p1"))

	impact, err := queries.Ask[ImpactQuery, dto.Impact](context.Background(), f.queries, ImpactQuery{
		ProposalID:   "p1",
		OccupancyPct: decimal.NewFromInt(80),
		MarketPrice:  decimal.NewNullDecimal(decimal.NewFromInt(500)),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, impact.BookedDays)
	assert.True(t, impact.Impact.Equal(decimal.NewFromInt(240)))
	assert.Equal(t, "above", impact.Position)
	assert.True(t, impact.SafeChange)

	_, err = queries.Ask[ImpactQuery, dto.Impact](context.Background(), f.queries, ImpactQuery{ProposalID: "p1", OccupancyPct: decimal.NewFromInt(101)})
	require.ErrorIs(t, err, validation.ErrValidation)
}

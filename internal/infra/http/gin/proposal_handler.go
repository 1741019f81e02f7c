package ginserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"rateguard/internal/app/commands"
	"rateguard/internal/app/dto"
	proposalapp "rateguard/internal/app/handlers/proposals"
	"rateguard/internal/app/queries"
	"rateguard/internal/app/validation"
	domainproposal "rateguard/internal/domain/proposal"
	"rateguard/internal/domain/shared/money"
)

const reviewerHeader = "X-Reviewer"

type ProposalHandler struct {
	Commands         commands.Bus
	Queries          queries.Bus
	Logger           *slog.Logger
	ExecutionTimeout time.Duration
}

type submitRequest struct {
	ID            string              `json:"id"`
	ListingID     string              `json:"listingId"`
	StartDate     string              `json:"startDate"`
	EndDate       string              `json:"endDate"`
	CurrentPrice  decimal.NullDecimal `json:"currentPrice"`
	ProposedPrice decimal.NullDecimal `json:"proposedPrice"`
	Confidence    *int                `json:"confidence"`
	Reason        string              `json:"reason"`
}

type reviewRequest struct {
	Reviewer string `json:"reviewer"`
	Note     string `json:"note"`
}

type bulkRequest struct {
	ProposalIDs []string `json:"proposalIds"`
	Reviewer    string   `json:"reviewer"`
	Note        string   `json:"note"`
}

func (h ProposalHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, err)
		return
	}
	cmd := proposalapp.SubmitProposalCommand{
		ProposalID:      req.ID,
		ListingID:       req.ListingID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		CurrentPrice:    req.CurrentPrice,
		ProposedPrice:   req.ProposedPrice,
		Confidence:      req.Confidence,
		Reason:          req.Reason,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[proposalapp.SubmitProposalCommand, dto.SubmitResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h ProposalHandler) List(c *gin.Context) {
	q := proposalapp.ListProposalsQuery{ListingID: strings.TrimSpace(c.Query("listing_id"))}
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if s := strings.TrimSpace(part); s != "" {
				q.Statuses = append(q.Statuses, s)
			}
		}
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.respondWithError(c, http.StatusBadRequest, validation.Invalid("limit", "numeric"))
			return
		}
		q.Limit = limit
	}
	items, err := queries.Ask[proposalapp.ListProposalsQuery, []dto.Proposal](c.Request.Context(), h.Queries, q)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h ProposalHandler) Get(c *gin.Context) {
	p, err := queries.Ask[proposalapp.GetProposalQuery, dto.Proposal](c.Request.Context(), h.Queries, proposalapp.GetProposalQuery{ProposalID: c.Param("id")})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h ProposalHandler) Approve(c *gin.Context) {
	req, ok := h.bindReview(c)
	if !ok {
		return
	}
	cmd := proposalapp.ApproveProposalCommand{ProposalID: c.Param("id"), Reviewer: req.Reviewer}
	p, err := commands.Dispatch[proposalapp.ApproveProposalCommand, dto.Proposal](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h ProposalHandler) Reject(c *gin.Context) {
	req, ok := h.bindReview(c)
	if !ok {
		return
	}
	cmd := proposalapp.RejectProposalCommand{ProposalID: c.Param("id"), Reviewer: req.Reviewer, Note: req.Note}
	p, err := commands.Dispatch[proposalapp.RejectProposalCommand, dto.Proposal](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h ProposalHandler) Execute(c *gin.Context) {
	ctx := c.Request.Context()
	if h.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ExecutionTimeout)
		defer cancel()
	}
	res, err := commands.Dispatch[proposalapp.ExecuteProposalCommand, dto.ExecutionResult](ctx, h.Commands, proposalapp.ExecuteProposalCommand{ProposalID: c.Param("id")})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h ProposalHandler) Impact(c *gin.Context) {
	q := proposalapp.ImpactQuery{ProposalID: c.Param("id"), OccupancyPct: decimal.NewFromInt(100)}
	if raw := c.Query("occupancy"); raw != "" {
		occ, err := money.Parse(raw)
		if err != nil {
			h.respondWithError(c, http.StatusBadRequest, validation.Invalid("occupancy", "decimal"))
			return
		}
		q.OccupancyPct = occ
	}
	if raw := c.Query("market_price"); raw != "" {
		market, err := money.Parse(raw)
		if err != nil {
			h.respondWithError(c, http.StatusBadRequest, validation.Invalid("market_price", "decimal"))
			return
		}
		q.MarketPrice = decimal.NewNullDecimal(market)
	}
	impact, err := queries.Ask[proposalapp.ImpactQuery, dto.Impact](c.Request.Context(), h.Queries, q)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, impact)
}

func (h ProposalHandler) BulkApprove(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, err)
		return
	}
	cmd := proposalapp.BulkApproveCommand{ProposalIDs: req.ProposalIDs, Reviewer: reviewerOf(c, req.Reviewer)}
	res, err := commands.Dispatch[proposalapp.BulkApproveCommand, dto.BulkResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h ProposalHandler) BulkReject(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, err)
		return
	}
	cmd := proposalapp.BulkRejectCommand{ProposalIDs: req.ProposalIDs, Reviewer: reviewerOf(c, req.Reviewer), Note: req.Note}
	res, err := commands.Dispatch[proposalapp.BulkRejectCommand, dto.BulkResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h ProposalHandler) Calendar(c *gin.Context) {
	q := proposalapp.CalendarQuery{ListingID: c.Param("id"), From: c.Query("from"), To: c.Query("to")}
	cal, err := queries.Ask[proposalapp.CalendarQuery, dto.Calendar](c.Request.Context(), h.Queries, q)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, cal)
}

// bindReview accepts an empty body; the reviewer may also come from a header.
func (h ProposalHandler) bindReview(c *gin.Context) (reviewRequest, bool) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondWithError(c, http.StatusBadRequest, err)
		return req, false
	}
	req.Reviewer = reviewerOf(c, req.Reviewer)
	return req, true
}

func reviewerOf(c *gin.Context, fromBody string) string {
	if v := strings.TrimSpace(fromBody); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader(reviewerHeader))
}

func (h ProposalHandler) handleError(c *gin.Context, err error) {
	var terr *domainproposal.TransitionError
	switch {
	case errors.As(err, &terr):
		h.log(c, http.StatusConflict, err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "current_status": terr.Current})
	case errors.Is(err, domainproposal.ErrProposalNotFound):
		h.respondWithError(c, http.StatusNotFound, err)
	case errors.Is(err, domainproposal.ErrConcurrentUpdate):
		h.respondWithError(c, http.StatusConflict, err)
	case proposalapp.IsValidation(err):
		var verr *validation.Error
		if errors.As(err, &verr) {
			h.log(c, http.StatusBadRequest, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": verr.Fields})
			return
		}
		h.respondWithError(c, http.StatusBadRequest, err)
	case errors.Is(err, context.DeadlineExceeded):
		h.respondWithError(c, http.StatusGatewayTimeout, err)
	default:
		h.respondWithError(c, http.StatusInternalServerError, err)
	}
}

func (h ProposalHandler) respondWithError(c *gin.Context, status int, err error) {
	h.log(c, status, err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h ProposalHandler) log(c *gin.Context, status int, err error) {
	if h.Logger == nil {
		return
	}
	fields := []any{"status", status, "error", err, "path", c.FullPath()}
	if id := c.Param("id"); id != "" {
		fields = append(fields, "id", id)
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error("proposal request failed", fields...)
		return
	}
	h.Logger.Warn("proposal request rejected", fields...)
}

var _ ProposalHTTP = ProposalHandler{}

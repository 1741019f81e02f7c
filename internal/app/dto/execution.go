package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"rateguard/internal/app/execution"
)

type DateMismatch struct {
	Date     string              `json:"date"`
	Expected decimal.Decimal     `json:"expected"`
	Actual   decimal.NullDecimal `json:"actual"`
}

// ExecutionResult is the wire form of an execution outcome.
type ExecutionResult struct {
	ProposalID  string         `json:"proposalId"`
	Success     bool           `json:"success"`
	UpdatedDays int            `json:"updatedDays"`
	TotalDays   int            `json:"totalDays"`
	Verified    bool           `json:"verified"`
	Error       string         `json:"error,omitempty"`
	Mismatches  []DateMismatch `json:"mismatches,omitempty"`
	Status      string         `json:"status,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
	ReceiptKey  string         `json:"receiptKey,omitempty"`
}

func MapExecutionResult(res execution.Result) ExecutionResult {
	out := ExecutionResult{
		ProposalID:  res.ProposalID,
		Success:     res.Success,
		UpdatedDays: res.UpdatedDays,
		TotalDays:   res.TotalDays,
		Verified:    res.Verified,
		Error:       res.Error,
		Status:      string(res.Status),
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
	}
	for _, m := range res.Mismatches {
		out.Mismatches = append(out.Mismatches, DateMismatch{Date: m.Date, Expected: m.Expected, Actual: m.Actual})
	}
	return out
}

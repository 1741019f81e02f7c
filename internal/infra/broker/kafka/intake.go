package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"

	"rateguard/internal/app/commands"
	"rateguard/internal/app/dto"
	proposalapp "rateguard/internal/app/handlers/proposals"
	domainproposal "rateguard/internal/domain/proposal"
)

// Inbox de-duplicates redelivered intake messages.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// generatedProposal is one record of the proposal generator's output, either
// bare or as the data of a CloudEvent.
type generatedProposal struct {
	ID            string              `json:"id"`
	ListingID     string              `json:"listing_id"`
	StartDate     string              `json:"start_date"`
	EndDate       string              `json:"end_date"`
	CurrentPrice  decimal.NullDecimal `json:"current_price"`
	ProposedPrice decimal.NullDecimal `json:"proposed_price"`
	Confidence    *int                `json:"confidence"`
	Reason        string              `json:"reason"`
}

type envelope struct {
	SpecVersion string          `json:"specversion"`
	ID          string          `json:"id"`
	Data        json.RawMessage `json:"data"`
}

// IntakeHandler turns generated proposals into submit commands.
type IntakeHandler struct {
	Commands commands.Bus
	Inbox    Inbox
	Logger   *slog.Logger
}

func (h IntakeHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	eventID, gp, err := decodeGenerated(msg)
	if err != nil {
		// Undecodable records would fail forever; drop them.
		h.logger().WarnContext(ctx, "intake message dropped", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, eventID)
		if err != nil {
			return err
		}
		if seen {
			h.logger().DebugContext(ctx, "intake duplicate skipped", "event_id", eventID)
			return nil
		}
	}
	cmd := proposalapp.SubmitProposalCommand{
		ProposalID:      gp.ID,
		ListingID:       gp.ListingID,
		StartDate:       gp.StartDate,
		EndDate:         gp.EndDate,
		CurrentPrice:    gp.CurrentPrice,
		ProposedPrice:   gp.ProposedPrice,
		Confidence:      gp.Confidence,
		Reason:          gp.Reason,
		IdempotencyKeyV: eventID,
	}
	res, err := commands.Dispatch[proposalapp.SubmitProposalCommand, dto.SubmitResult](ctx, h.Commands, cmd)
	switch {
	case err == nil:
		h.logger().InfoContext(ctx, "intake proposal accepted", "event_id", eventID, "proposal_id", res.Proposal.ID, "decision", res.Decision)
		return nil
	case proposalapp.IsValidation(err):
		h.logger().WarnContext(ctx, "intake proposal rejected", "event_id", eventID, "error", err)
		return nil
	case errors.Is(err, domainproposal.ErrConcurrentUpdate):
		h.logger().InfoContext(ctx, "intake proposal already stored", "event_id", eventID, "proposal_id", gp.ID)
		return nil
	default:
		if h.Inbox != nil {
			if ferr := h.Inbox.Forget(ctx, eventID); ferr != nil {
				err = errors.Join(err, ferr)
			}
		}
		return err
	}
}

func decodeGenerated(msg *sarama.ConsumerMessage) (string, generatedProposal, error) {
	var gp generatedProposal
	var env envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return "", gp, fmt.Errorf("kafka: decode intake: %w", err)
	}
	body := []byte(msg.Value)
	eventID := headerValue(msg, "ce_id")
	if env.SpecVersion != "" && len(env.Data) > 0 {
		body = env.Data
		if eventID == "" {
			eventID = env.ID
		}
	}
	if err := json.Unmarshal(body, &gp); err != nil {
		return "", gp, fmt.Errorf("kafka: decode intake: %w", err)
	}
	if eventID == "" {
		eventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	return eventID, gp, nil
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (h IntakeHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ MessageHandler = IntakeHandler{}

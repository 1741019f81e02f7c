package policies

import (
	"context"
	"time"
)

type Receipt struct {
	ProposalID  string
	ListingID   string
	Attempt     int
	Payload     []byte
	ContentType string
	At          time.Time
}

// ReceiptArchive keeps an immutable copy of every execution outcome.
type ReceiptArchive interface {
	Store(ctx context.Context, receipt Receipt) (string, error)
}

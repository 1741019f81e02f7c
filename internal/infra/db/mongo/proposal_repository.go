package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainproposal "rateguard/internal/domain/proposal"
	"rateguard/internal/domain/shared/daterange"
)

const proposalsCollection = "agg_proposal"

type ProposalRepository struct {
	col *mongo.Collection
}

func NewProposalRepository(db *mongo.Database) *ProposalRepository {
	return &ProposalRepository{col: db.Collection(proposalsCollection)}
}

// EnsureIndexes creates the listing/status and calendar lookup indexes.
func (r *ProposalRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "start", Value: 1}, {Key: "end", Value: 1}}},
	})
	return err
}

func (r *ProposalRepository) ByID(ctx context.Context, id domainproposal.ID) (*domainproposal.Proposal, error) {
	var doc proposalDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainproposal.ErrProposalNotFound
		}
		return nil, err
	}
	return doc.toAggregate()
}

func (r *ProposalRepository) Save(ctx context.Context, p *domainproposal.Proposal) error {
	doc := newProposalDocument(p)
	filter := bson.M{"_id": doc.ID, "version": p.Version}
	doc.Version = p.Version + 1
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	res, err := r.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainproposal.ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return domainproposal.ErrConcurrentUpdate
	}
	p.Version = doc.Version
	return nil
}

func (r *ProposalRepository) List(ctx context.Context, filter domainproposal.ListFilter) ([]*domainproposal.Proposal, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := r.col.Find(ctx, listQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domainproposal.Proposal
	for cur.Next(ctx) {
		var doc proposalDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		p, err := doc.toAggregate()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, cur.Err()
}

func listQuery(filter domainproposal.ListFilter) bson.M {
	q := bson.M{}
	if filter.ListingID != "" {
		q["listing_id"] = filter.ListingID
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		q["status"] = bson.M{"$in": statuses}
	}
	if filter.Overlaps != nil {
		q["start"] = bson.M{"$lte": filter.Overlaps.End}
		q["end"] = bson.M{"$gte": filter.Overlaps.Start}
	}
	return q
}

type executionDocument struct {
	At          time.Time `bson:"at"`
	Success     bool      `bson:"success"`
	UpdatedDays int       `bson:"updated_days"`
	TotalDays   int       `bson:"total_days"`
	Verified    bool      `bson:"verified"`
	Error       string    `bson:"error,omitempty"`
}

// Prices are stored as decimal strings so no precision is lost in BSON doubles.
type proposalDocument struct {
	ID                string             `bson:"_id"`
	ListingID         string             `bson:"listing_id"`
	Start             time.Time          `bson:"start"`
	End               time.Time          `bson:"end"`
	CurrentPrice      string             `bson:"current_price"`
	ProposedPrice     *string            `bson:"proposed_price,omitempty"`
	RequestedPrice    *string            `bson:"requested_price,omitempty"`
	Clamped           bool               `bson:"clamped"`
	ChangePct         int                `bson:"change_pct"`
	Risk              string             `bson:"risk"`
	Confidence        *int               `bson:"confidence,omitempty"`
	Reason            string             `bson:"reason,omitempty"`
	Status            string             `bson:"status"`
	AutoApproved      bool               `bson:"auto_approved"`
	ReviewedBy        string             `bson:"reviewed_by,omitempty"`
	ReviewedAt        time.Time          `bson:"reviewed_at,omitempty"`
	RejectionNote     string             `bson:"rejection_note,omitempty"`
	ExecutionAttempts int                `bson:"execution_attempts"`
	LastExecution     *executionDocument `bson:"last_execution,omitempty"`
	ExecutedAt        time.Time          `bson:"executed_at,omitempty"`
	CreatedAt         time.Time          `bson:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at"`
	Version           int64              `bson:"version"`
}

func newProposalDocument(p *domainproposal.Proposal) proposalDocument {
	doc := proposalDocument{
		ID:                string(p.ID),
		ListingID:         p.ListingID,
		Start:             p.Range.Start.UTC(),
		End:               p.Range.End.UTC(),
		CurrentPrice:      p.CurrentPrice.String(),
		ProposedPrice:     nullString(p.ProposedPrice),
		RequestedPrice:    nullString(p.RequestedPrice),
		Clamped:           p.Clamped,
		ChangePct:         p.ChangePct,
		Risk:              string(p.Risk),
		Confidence:        p.Confidence,
		Reason:            p.Reason,
		Status:            string(p.Status),
		AutoApproved:      p.AutoApproved,
		ReviewedBy:        p.ReviewedBy,
		ReviewedAt:        p.ReviewedAt,
		RejectionNote:     p.RejectionNote,
		ExecutionAttempts: p.ExecutionAttempts,
		ExecutedAt:        p.ExecutedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		Version:           p.Version,
	}
	if e := p.LastExecution; e != nil {
		doc.LastExecution = &executionDocument{
			At:          e.At,
			Success:     e.Success,
			UpdatedDays: e.UpdatedDays,
			TotalDays:   e.TotalDays,
			Verified:    e.Verified,
			Error:       e.Error,
		}
	}
	return doc
}

func (d proposalDocument) toAggregate() (*domainproposal.Proposal, error) {
	current, err := decimal.NewFromString(d.CurrentPrice)
	if err != nil {
		return nil, fmt.Errorf("mongo: proposal %s current_price: %w", d.ID, err)
	}
	proposed, err := parseNull(d.ProposedPrice)
	if err != nil {
		return nil, fmt.Errorf("mongo: proposal %s proposed_price: %w", d.ID, err)
	}
	requested, err := parseNull(d.RequestedPrice)
	if err != nil {
		return nil, fmt.Errorf("mongo: proposal %s requested_price: %w", d.ID, err)
	}
	p := &domainproposal.Proposal{
		ID:                domainproposal.ID(d.ID),
		ListingID:         d.ListingID,
		Range:             daterange.CalendarRange{Start: d.Start.UTC(), End: d.End.UTC()},
		CurrentPrice:      current,
		ProposedPrice:     proposed,
		RequestedPrice:    requested,
		Clamped:           d.Clamped,
		ChangePct:         d.ChangePct,
		Risk:              domainproposal.RiskLevel(d.Risk),
		Confidence:        d.Confidence,
		Reason:            d.Reason,
		Status:            domainproposal.Status(d.Status),
		AutoApproved:      d.AutoApproved,
		ReviewedBy:        d.ReviewedBy,
		ReviewedAt:        utcOrZero(d.ReviewedAt),
		RejectionNote:     d.RejectionNote,
		ExecutionAttempts: d.ExecutionAttempts,
		ExecutedAt:        utcOrZero(d.ExecutedAt),
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
		Version:           d.Version,
	}
	if e := d.LastExecution; e != nil {
		p.LastExecution = &domainproposal.ExecutionSummary{
			At:          e.At.UTC(),
			Success:     e.Success,
			UpdatedDays: e.UpdatedDays,
			TotalDays:   e.TotalDays,
			Verified:    e.Verified,
			Error:       e.Error,
		}
	}
	return p, nil
}

func nullString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNull(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func utcOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}

var _ domainproposal.Repository = (*ProposalRepository)(nil)

package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/item"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
)

const offerColumns = `id, offer_id, item_id, sender_short_id, sender_id, recipient_short_id, recipient_id, amount::text, note, role, parent_offer_id, status, receipt_confirmed, reject_reason, seller_rated, buyer_rated, created_at, updated_at, accepted_at, confirmed_at`

const oneAcceptedIndex = "uq_offers_one_accepted"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OfferRepository implements offer.Repository. Every write locks the item
// row first, so writes on one item are serialized and different items never
// contend. The partial unique index on accepted offers backs the check.
type OfferRepository struct {
	pool *pgxpool.Pool
}

func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

func (r *OfferRepository) Create(ctx context.Context, o *offer.Offer) error {
	if err := o.Validate(); err != nil {
		return err
	}
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := checkOpen(ctx, tx, o.ItemID); err != nil {
			return err
		}
		return insertOffer(ctx, tx, o)
	})
}

func (r *OfferRepository) Counter(ctx context.Context, supersede offer.Transition, counter *offer.Offer) (*offer.Offer, error) {
	if err := counter.Validate(); err != nil {
		return nil, err
	}
	if counter.ParentOfferID == nil || *counter.ParentOfferID != supersede.OfferID {
		return nil, apperr.Validation("counter-offer must reference the superseded offer")
	}
	var out *offer.Offer
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockItem(ctx, tx, counter.ItemID); err != nil {
			return err
		}
		src, err := applyTransition(ctx, tx, supersede)
		if err != nil {
			return err
		}
		if err := checkOpen(ctx, tx, counter.ItemID); err != nil {
			return err
		}
		if err := insertOffer(ctx, tx, counter); err != nil {
			return err
		}
		out = src
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OfferRepository) GetByID(ctx context.Context, offerID uuid.UUID) (*offer.Offer, error) {
	return getOffer(ctx, r.pool, offerID, false)
}

func (r *OfferRepository) ListByItem(ctx context.Context, itemID uuid.UUID, filter offer.ListFilter) ([]*offer.Offer, error) {
	return r.list(ctx, ` WHERE item_id=$1`, []interface{}{itemID}, filter)
}

func (r *OfferRepository) ListByParty(ctx context.Context, ref party.Ref, filter offer.ListFilter) ([]*offer.Offer, error) {
	ref = ref.Canonical()
	where := ` WHERE (($1 <> '' AND (sender_short_id=$1 OR recipient_short_id=$1)) OR ($2 <> '' AND (sender_id=$2 OR recipient_id=$2)))`
	return r.list(ctx, where, []interface{}{ref.ShortID, ref.StorageID}, filter)
}

func (r *OfferRepository) Transition(ctx context.Context, t offer.Transition) (*offer.Offer, error) {
	var itemID uuid.UUID
	if err := r.pool.QueryRow(ctx, `SELECT item_id FROM offers WHERE offer_id=$1`, t.OfferID).Scan(&itemID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("offer %s not found", t.OfferID)
		}
		return nil, err
	}
	var out *offer.Offer
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockItem(ctx, tx, itemID); err != nil {
			return err
		}
		o, err := applyTransition(ctx, tx, t)
		out = o
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OfferRepository) list(ctx context.Context, where string, args []interface{}, filter offer.ListFilter) ([]*offer.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers` + where
	if filter.Status != nil {
		query += " AND status=$" + itoa(len(args)+1)
		args = append(args, *filter.Status)
	}
	if filter.NewestFirst {
		query += " ORDER BY id DESC"
	} else {
		query += " ORDER BY id ASC"
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	offers := []*offer.Offer{}
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// applyTransition re-reads the offer under a row lock, applies t and writes
// it back conditionally on the status t expects.
func applyTransition(ctx context.Context, q querier, t offer.Transition) (*offer.Offer, error) {
	o, err := getOffer(ctx, q, t.OfferID, true)
	if err != nil {
		return nil, err
	}
	if err := t.Apply(o); err != nil {
		return nil, err
	}
	if t.From != offer.StatusAccepted && t.To == offer.StatusAccepted {
		var taken bool
		if err := q.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM offers WHERE item_id=$1 AND status='accepted' AND offer_id<>$2)
		`, o.ItemID, o.OfferID).Scan(&taken); err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.Conflict(apperr.MsgOfferUnavailable)
		}
	}
	tag, err := q.Exec(ctx, `
		UPDATE offers
		SET status=$1, receipt_confirmed=$2, reject_reason=$3, seller_rated=$4, buyer_rated=$5, updated_at=$6, accepted_at=$7, confirmed_at=$8
		WHERE offer_id=$9 AND status=$10
	`, o.Status, o.ReceiptConfirmed, o.RejectReason, o.SellerRated, o.BuyerRated, o.UpdatedAt, o.AcceptedAt, o.ConfirmedAt, o.OfferID, t.From)
	if err != nil {
		if uniqueConstraint(err) == oneAcceptedIndex {
			return nil, apperr.Conflict(apperr.MsgOfferUnavailable)
		}
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.Conflict("offer is no longer %s", t.From)
	}
	return o, nil
}

func lockItem(ctx context.Context, q querier, itemID uuid.UUID) error {
	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM items WHERE item_id=$1 FOR UPDATE`, itemID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("item %s not found", itemID)
	}
	return err
}

// checkOpen locks the item and fails unless it can take a new offer.
func checkOpen(ctx context.Context, q querier, itemID uuid.UUID) error {
	var status item.Status
	var withdrawn, accepted bool
	err := q.QueryRow(ctx, `
		SELECT status, withdrawn_at IS NOT NULL,
			EXISTS (SELECT 1 FROM offers WHERE item_id=$1 AND status='accepted')
		FROM items WHERE item_id=$1 FOR UPDATE
	`, itemID).Scan(&status, &withdrawn, &accepted)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("item %s not found", itemID)
	}
	if err != nil {
		return err
	}
	if status != item.StatusActive || withdrawn || accepted {
		return apperr.Validation("item is not active")
	}
	return nil
}

func insertOffer(ctx context.Context, q querier, o *offer.Offer) error {
	sender, recipient := o.Sender.Canonical(), o.Recipient.Canonical()
	row := q.QueryRow(ctx, `
		INSERT INTO offers
		(offer_id, item_id, sender_short_id, sender_id, recipient_short_id, recipient_id, amount, note, role, parent_offer_id, status, receipt_confirmed, reject_reason, seller_rated, buyer_rated, created_at, updated_at, accepted_at, confirmed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING id
	`, o.OfferID, o.ItemID, sender.ShortID, sender.StorageID, recipient.ShortID, recipient.StorageID, o.Amount.String(), o.Note, o.Role, o.ParentOfferID, o.Status, o.ReceiptConfirmed, o.RejectReason, o.SellerRated, o.BuyerRated, o.CreatedAt, o.UpdatedAt, o.AcceptedAt, o.ConfirmedAt)
	if err := row.Scan(&o.ID); err != nil {
		if uniqueConstraint(err) != "" {
			return apperr.Conflict("offer %s already exists", o.OfferID)
		}
		return err
	}
	return nil
}

func getOffer(ctx context.Context, q querier, offerID uuid.UUID, forUpdate bool) (*offer.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE offer_id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	o, err := scanOffer(q.QueryRow(ctx, query, offerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("offer %s not found", offerID)
	}
	return o, err
}

func scanOffer(row pgx.Row) (*offer.Offer, error) {
	var o offer.Offer
	var amount string
	if err := row.Scan(&o.ID, &o.OfferID, &o.ItemID,
		&o.Sender.ShortID, &o.Sender.StorageID, &o.Recipient.ShortID, &o.Recipient.StorageID,
		&amount, &o.Note, &o.Role, &o.ParentOfferID, &o.Status, &o.ReceiptConfirmed, &o.RejectReason,
		&o.SellerRated, &o.BuyerRated, &o.CreatedAt, &o.UpdatedAt, &o.AcceptedAt, &o.ConfirmedAt); err != nil {
		return nil, err
	}
	d, err := parseDecimal(amount)
	if err != nil {
		return nil, err
	}
	o.Amount = d
	return &o, nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
	"github.com/clubhub/marketplace/internal/domain/rating"
)

const ratingColumns = `id, rating_id, offer_id, item_id, reviewer_short_id, reviewer_id, reviewee_short_id, reviewee_id, reviewer_role, score, comment, response, responded_at, created_at`

// RatingRepository implements rating.Repository.
type RatingRepository struct {
	pool *pgxpool.Pool
}

func NewRatingRepository(pool *pgxpool.Pool) *RatingRepository {
	return &RatingRepository{pool: pool}
}

// Rate locks the item row, sets the reviewer's flag on the offer and inserts
// the rating in one transaction.
func (r *RatingRepository) Rate(ctx context.Context, mark offer.Transition, rt *rating.Rating) (*offer.Offer, error) {
	if mark.OfferID != rt.OfferID || mark.MarkRated != rt.ReviewerRole {
		return nil, apperr.Validation("rating does not match the flagged offer")
	}
	var out *offer.Offer
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockItem(ctx, tx, rt.ItemID); err != nil {
			return err
		}
		o, err := applyTransition(ctx, tx, mark)
		if err != nil {
			return err
		}
		if o.ItemID != rt.ItemID {
			return apperr.Validation("rating does not match the flagged offer")
		}
		if err := insertRating(ctx, tx, rt); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RatingRepository) GetByID(ctx context.Context, ratingID uuid.UUID) (*rating.Rating, error) {
	rt, err := scanRating(r.pool.QueryRow(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE rating_id=$1`, ratingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("rating %s not found", ratingID)
	}
	return rt, err
}

func (r *RatingRepository) ListByOffer(ctx context.Context, offerID uuid.UUID) ([]*rating.Rating, error) {
	return r.list(ctx, ` WHERE offer_id=$1`, offerID)
}

func (r *RatingRepository) ListByReviewee(ctx context.Context, reviewee party.Ref) ([]*rating.Rating, error) {
	reviewee = reviewee.Canonical()
	return r.list(ctx, ` WHERE ($1 <> '' AND reviewee_short_id=$1) OR ($2 <> '' AND reviewee_id=$2)`, reviewee.ShortID, reviewee.StorageID)
}

func (r *RatingRepository) SetResponse(ctx context.Context, ratingID uuid.UUID, response string, at time.Time) (*rating.Rating, error) {
	rt, err := scanRating(r.pool.QueryRow(ctx, `
		UPDATE ratings SET response=$1, responded_at=$2
		WHERE rating_id=$3 AND response IS NULL
		RETURNING `+ratingColumns, response, at, ratingID))
	if err == nil {
		return rt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, err := r.GetByID(ctx, ratingID); err != nil {
		return nil, err
	}
	return nil, apperr.AlreadyResponded("rating already has a response")
}

func (r *RatingRepository) list(ctx context.Context, where string, args ...interface{}) ([]*rating.Rating, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ratingColumns+` FROM ratings`+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ratings := []*rating.Rating{}
	for rows.Next() {
		rt, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, rt)
	}
	return ratings, rows.Err()
}

func insertRating(ctx context.Context, q querier, rt *rating.Rating) error {
	reviewer, reviewee := rt.Reviewer.Canonical(), rt.Reviewee.Canonical()
	row := q.QueryRow(ctx, `
		INSERT INTO ratings
		(rating_id, offer_id, item_id, reviewer_short_id, reviewer_id, reviewee_short_id, reviewee_id, reviewer_role, score, comment, response, responded_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, rt.RatingID, rt.OfferID, rt.ItemID, reviewer.ShortID, reviewer.StorageID, reviewee.ShortID, reviewee.StorageID, rt.ReviewerRole, rt.Score, rt.Comment, rt.Response, rt.RespondedAt, rt.CreatedAt)
	if err := row.Scan(&rt.ID); err != nil {
		if uniqueConstraint(err) != "" {
			return apperr.AlreadyRated("%s already rated this transaction", rt.ReviewerRole)
		}
		return err
	}
	return nil
}

func scanRating(row pgx.Row) (*rating.Rating, error) {
	var rt rating.Rating
	if err := row.Scan(&rt.ID, &rt.RatingID, &rt.OfferID, &rt.ItemID,
		&rt.Reviewer.ShortID, &rt.Reviewer.StorageID, &rt.Reviewee.ShortID, &rt.Reviewee.StorageID,
		&rt.ReviewerRole, &rt.Score, &rt.Comment, &rt.Response, &rt.RespondedAt, &rt.CreatedAt); err != nil {
		return nil, err
	}
	return &rt, nil
}

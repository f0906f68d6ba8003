package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/item"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
)

const itemColumns = `id, item_id, owner_short_id, owner_id, title, description, asking_price::text, status, withdrawn_at, created_at, updated_at`

// ItemRepository implements item.Repository.
type ItemRepository struct {
	pool *pgxpool.Pool
}

func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{pool: pool}
}

func (r *ItemRepository) Create(ctx context.Context, it *item.Item) error {
	owner := it.Owner.Canonical()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO items
		(item_id, owner_short_id, owner_id, title, description, asking_price, status, withdrawn_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10)
		RETURNING id
	`, it.ItemID, owner.ShortID, owner.StorageID, it.Title, it.Description, it.AskingPrice.String(), it.Status, it.WithdrawnAt, it.CreatedAt, it.UpdatedAt)
	if err := row.Scan(&it.ID); err != nil {
		if uniqueConstraint(err) != "" {
			return apperr.Conflict("item %s already exists", it.ItemID)
		}
		return err
	}
	return nil
}

func (r *ItemRepository) GetByID(ctx context.Context, itemID uuid.UUID) (*item.Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE item_id=$1`, itemID)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("item %s not found", itemID)
	}
	return it, err
}

func (r *ItemRepository) List(ctx context.Context, filter item.Filter, limit, offset int) ([]*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	args := []interface{}{}
	idx := 1
	if filter.Status != nil {
		query += " WHERE status=$" + itoa(idx)
		args = append(args, *filter.Status)
		idx++
	}
	if filter.Owner != nil {
		owner := filter.Owner.Canonical()
		query += addWhere(query) + " ((owner_short_id <> '' AND owner_short_id=$" + itoa(idx) + ") OR (owner_id <> '' AND owner_id=$" + itoa(idx+1) + "))"
		args = append(args, owner.ShortID, owner.StorageID)
		idx += 2
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT $" + itoa(idx) + " OFFSET $" + itoa(idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *ItemRepository) UpdateStatus(ctx context.Context, itemID uuid.UUID, status item.Status, updatedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items SET status=$1, updated_at=$2 WHERE item_id=$3`, status, updatedAt, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("item %s not found", itemID)
	}
	return nil
}

func (r *ItemRepository) MarkWithdrawn(ctx context.Context, itemID uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE items SET withdrawn_at=$1, updated_at=$1
		WHERE item_id=$2 AND withdrawn_at IS NULL
	`, at, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, itemID); err != nil {
		return err
	}
	return apperr.Conflict("item already withdrawn")
}

// Reproject locks the item row, so it runs strictly before or after any
// offer write on the same item.
func (r *ItemRepository) Reproject(ctx context.Context, itemID uuid.UUID, at time.Time) (item.Status, item.Status, error) {
	var from, to item.Status
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		it, err := scanItem(tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE item_id=$1 FOR UPDATE`, itemID))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("item %s not found", itemID)
		}
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT `+offerColumns+` FROM offers WHERE item_id=$1 AND status='accepted'`, itemID)
		if err != nil {
			return err
		}
		var offers []*offer.Offer
		for rows.Next() {
			o, err := scanOffer(rows)
			if err != nil {
				rows.Close()
				return err
			}
			offers = append(offers, o)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		from = it.Status
		to = item.Project(it, offers)
		if to == from {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE items SET status=$1, updated_at=$2 WHERE item_id=$3`, to, at, itemID)
		return err
	})
	if err != nil {
		return "", "", err
	}
	return from, to, nil
}

func scanItem(row pgx.Row) (*item.Item, error) {
	var it item.Item
	var owner party.Ref
	var price string
	if err := row.Scan(&it.ID, &it.ItemID, &owner.ShortID, &owner.StorageID, &it.Title, &it.Description, &price, &it.Status, &it.WithdrawnAt, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := parseDecimal(price)
	if err != nil {
		return nil, err
	}
	it.Owner = owner
	it.AskingPrice = d
	return &it, nil
}

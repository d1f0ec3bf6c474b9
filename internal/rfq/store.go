package rfq

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

// Create inserts the RFQ and its chat in one transaction. An existing chat
// is left untouched apart from its last activity.
func (r *Repo) Create(ctx context.Context, q RFQ) (Created, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Created{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	in := q.Inquiry
	if _, err := tx.Exec(ctx, `
		INSERT INTO rfqs(id, buyer_id, supplier_id, supplier_name, category, subcategory,
		                 product_details, file_url, size, color, shipping, share_business_card, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		q.ID, in.BuyerID, q.Supplier.ID, q.Supplier.Name, in.Category, in.Subcategory,
		in.ProductDetails, in.FileURL, in.Size, in.Color, in.Shipping, in.ShareBusinessCard, q.At,
	); err != nil {
		return Created{}, fmt.Errorf("insert rfq: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO rfq_chats(chat_id, buyer_id, supplier_id, supplier_name, rfq_id, created_at, last_activity)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		ON CONFLICT (chat_id) DO NOTHING`,
		q.ChatID, in.BuyerID, q.Supplier.ID, q.Supplier.Name, q.ID, q.At)
	if err != nil {
		return Created{}, fmt.Errorf("insert chat: %w", err)
	}
	chatCreated := tag.RowsAffected() == 1
	if !chatCreated {
		if _, err := tx.Exec(ctx, `UPDATE rfq_chats SET last_activity=$2 WHERE chat_id=$1`, q.ChatID, q.At); err != nil {
			return Created{}, fmt.Errorf("touch chat: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Created{}, err
	}
	return Created{RFQID: q.ID, ChatCreated: chatCreated}, nil
}

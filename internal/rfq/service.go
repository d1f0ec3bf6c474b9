// Package rfq broadcasts a buyer's request for quotation to the suppliers of
// a category and opens a buyer/supplier chat where none exists yet.
package rfq

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
)

const defaultLimit = 4

type Writer interface {
	Create(ctx context.Context, r RFQ) (Created, error)
}

type Service struct {
	Store Writer
	Limit int
	Log   *zap.Logger
	Now   func() time.Time
}

// Broadcast writes one RFQ per distinct supplier with at most Limit writes in
// flight. It does not stop at the first failure: every supplier gets a
// result, and the outcome is failed if any of them failed.
func (s *Service) Broadcast(ctx context.Context, in Inquiry, suppliers []Supplier) (Outcome, error) {
	if strings.TrimSpace(in.BuyerID) == "" {
		return Outcome{}, apperr.Validation("buyer_required", "buyerId is required")
	}
	if strings.TrimSpace(in.Category) == "" {
		return Outcome{}, apperr.Validation("category_required", "category is required")
	}
	suppliers = distinct(suppliers)
	if len(suppliers) == 0 {
		return Outcome{}, apperr.Validation("no_suppliers", "No suppliers for this category")
	}
	if strings.TrimSpace(in.ProductDetails) == "" {
		in.ProductDetails = defaultProductDetails
	}

	limit := s.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	results := make([]Result, len(suppliers))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, sup := range suppliers {
		i, sup := i, sup
		g.Go(func() error {
			r := RFQ{
				ID:       uuid.NewString(),
				Inquiry:  in,
				Supplier: sup,
				ChatID:   ChatID(in.BuyerID, sup.ID),
				At:       now().UTC(),
			}
			res := Result{SupplierID: sup.ID, ChatID: r.ChatID}
			created, err := s.Store.Create(ctx, r)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.RFQID = created.RFQID
				res.ChatCreated = created.ChatCreated
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := Outcome{Results: results}
	var failed []string
	for _, r := range results {
		if r.Error != "" {
			failed = append(failed, r.SupplierID)
		}
	}
	if len(failed) > 0 {
		out.Failed = true
		if s.Log != nil {
			s.Log.Warn("rfq broadcast partially failed; delivered rfqs stay committed",
				zap.String("buyer_id", in.BuyerID), zap.Strings("failed_suppliers", failed),
				zap.Int("delivered", len(results)-len(failed)))
		}
	}
	return out, nil
}

func distinct(in []Supplier) []Supplier {
	seen := map[string]bool{}
	out := make([]Supplier, 0, len(in))
	for _, s := range in {
		id := strings.TrimSpace(s.ID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		s.ID = id
		out = append(out, s)
	}
	return out
}

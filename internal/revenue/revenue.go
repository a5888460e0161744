// Package revenue distributes third-party earnings when a settlement
// finishes.
//
// Two arrangements generate token transactions, both driven by the
// product's provenance:
//
//  1. REPOST_COMMISSION: the product was listed on behalf of another
//     business; the reposter earns a commission on the sale price.
//  2. PROFIT_SHARE: ownership of the product was transferred at a
//     markup; the previous owner earns a share of the per-unit margin.
//
// A directly-listed product generates nothing. Distribution is keyed by
// (settlement reference, product): re-running it for the same reference
// never double-credits a beneficiary.
package revenue

import (
	"context"
	"errors"
	"time"

	"github.com/mkalala/sokosettle/internal/catalog"
	"github.com/mkalala/sokosettle/internal/idgen"
	"github.com/mkalala/sokosettle/internal/money"
	"github.com/mkalala/sokosettle/internal/wallet"
)

var ErrDuplicateDistribution = errors.New("distribution already recorded")

// Type of a token transaction.
type Type string

const (
	TypeRepostCommission Type = "REPOST_COMMISSION"
	TypeProfitShare      Type = "PROFIT_SHARE"
)

// TokenTransaction is one recorded earning for a beneficiary business.
type TokenTransaction struct {
	ID              string    `json:"id"`
	BusinessID      string    `json:"businessId"`
	SourceProductID string    `json:"sourceProductId"`
	Amount          string    `json:"amount"`
	Type            Type      `json:"type"`
	Reference       string    `json:"reference"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Store persists token transactions.
type Store interface {
	// Record fails with ErrDuplicateDistribution when a transaction for
	// the same (reference, product) already exists.
	Record(ctx context.Context, tt *TokenTransaction) error
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]*TokenTransaction, error)
}

// provenances is the slice of the catalog the distributor needs.
type provenances interface {
	Provenance(ctx context.Context, productID string) (*catalog.Provenance, error)
}

// walletLedger credits beneficiary businesses.
type walletLedger interface {
	Credit(ctx context.Context, accountID string, kind wallet.AccountKind, method, amount, reference, description string) error
}

// accounts tracks per-business sale counters.
type accounts interface {
	IncrementProductsSold(ctx context.Context, businessID string, n int64) error
}

// Item is one settled line the distributor inspects.
type Item struct {
	ProductID  string
	BusinessID string // selling business
	Price      string // unit price at settlement time
	Quantity   int
}

// Distributor applies revenue arrangements after settlement.
type Distributor struct {
	store     Store
	catalog   provenances
	wallet    walletLedger
	accounts  accounts
	repostBps int64
	profitBps int64
}

// New creates a distributor. Rates are basis points: repostBps is the
// commission on the sale price of a reposted product, profitBps the
// share of the re-ownership margin.
func New(store Store, cat provenances, ledger walletLedger, acc accounts, repostBps, profitBps int64) *Distributor {
	return &Distributor{
		store:     store,
		catalog:   cat,
		wallet:    ledger,
		accounts:  acc,
		repostBps: repostBps,
		profitBps: profitBps,
	}
}

// Distribute inspects each settled item's provenance and records and
// credits the earnings it implies. Items without provenance are
// skipped; items already distributed under this reference are skipped
// silently, so the call is safe to repeat.
func (d *Distributor) Distribute(ctx context.Context, reference string, items []Item) error {
	for _, item := range items {
		prov, err := d.catalog.Provenance(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if prov == nil {
			continue
		}

		var (
			beneficiary string
			amount      string
			ttType      Type
		)

		switch prov.Kind {
		case catalog.ProvenanceReposted:
			price, ok := money.Parse(item.Price)
			if !ok {
				continue
			}
			amount = money.Format(money.ApplyBps(money.MulQty(price, item.Quantity), d.repostBps))
			beneficiary = prov.RepostedBusinessID
			ttType = TypeRepostCommission

		case catalog.ProvenanceReOwned:
			oldPrice, ok1 := money.Parse(prov.OldPrice)
			newPrice, ok2 := money.Parse(prov.NewPrice)
			if !ok1 || !ok2 {
				continue
			}
			margin := money.Sub(newPrice, oldPrice)
			if margin.Sign() <= 0 {
				continue
			}
			amount = money.Format(money.ApplyBps(money.MulQty(margin, item.Quantity), d.profitBps))
			beneficiary = prov.OldOwnerID
			ttType = TypeProfitShare

		default:
			continue
		}

		if beneficiary == "" {
			continue
		}
		if amt, _ := money.Parse(amount); money.Zero(amt) {
			continue
		}

		err = d.store.Record(ctx, &TokenTransaction{
			ID:              idgen.WithPrefix("tkt_"),
			BusinessID:      beneficiary,
			SourceProductID: item.ProductID,
			Amount:          amount,
			Type:            ttType,
			Reference:       reference,
			CreatedAt:       time.Now(),
		})
		if errors.Is(err, ErrDuplicateDistribution) {
			continue
		}
		if err != nil {
			return err
		}

		if err := d.wallet.Credit(ctx, beneficiary, wallet.KindBusiness, wallet.MethodToken,
			amount, reference, string(ttType)+" "+item.ProductID); err != nil {
			return err
		}
	}
	return nil
}

// FinishTransaction bumps each selling business's lifetime sold counter
// by the settled quantities.
func (d *Distributor) FinishTransaction(ctx context.Context, items []Item) error {
	sold := make(map[string]int64)
	for _, item := range items {
		if item.BusinessID == "" || item.Quantity <= 0 {
			continue
		}
		sold[item.BusinessID] += int64(item.Quantity)
	}
	for businessID, n := range sold {
		if err := d.accounts.IncrementProductsSold(ctx, businessID, n); err != nil {
			return err
		}
	}
	return nil
}

// Earnings lists a business's recorded token transactions, newest
// first.
func (d *Distributor) Earnings(ctx context.Context, businessID string, limit int) ([]*TokenTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.store.ListByBusiness(ctx, businessID, limit)
}

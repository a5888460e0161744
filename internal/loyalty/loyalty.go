// Package loyalty accrues and redeems client loyalty points.
//
// A business may run one loyalty program. When a settlement closes for
// a known client, points accrue at the program's rate per franc spent,
// floored to whole points. Accrual is keyed by the settlement
// reference, so a retried settlement never grants points twice.
// Redemptions are explicit negative entries and can never push a
// client's balance below zero.
package loyalty

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/mkalala/sokosettle/internal/events"
	"github.com/mkalala/sokosettle/internal/idgen"
	"github.com/mkalala/sokosettle/internal/metrics"
	"github.com/mkalala/sokosettle/internal/money"
)

var (
	ErrProgramNotFound    = errors.New("loyalty program not found")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrDuplicateAccrual   = errors.New("accrual already recorded")
	ErrInvalidPoints      = errors.New("invalid points")
)

// Tier is a named loyalty level reached at MinPoints.
type Tier struct {
	Name      string `json:"name"`
	MinPoints int64  `json:"minPoints"`
}

// Program is a business's loyalty program. PointsPerPurchase is the
// points granted per franc of settled amount.
type Program struct {
	ID                string    `json:"id"`
	BusinessID        string    `json:"businessId"`
	Name              string    `json:"name"`
	PointsPerPurchase int64     `json:"pointsPerPurchase"`
	Tiers             []Tier    `json:"tiers,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// PointsTransaction is one signed points movement.
type PointsTransaction struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId"`
	ProgramID string    `json:"programId"`
	Points    int64     `json:"points"` // negative for redemptions
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists programs and points transactions.
type Store interface {
	// GetProgramByBusiness returns (nil, nil) when the business runs no
	// program.
	GetProgramByBusiness(ctx context.Context, businessID string) (*Program, error)
	GetProgram(ctx context.Context, id string) (*Program, error)
	PutProgram(ctx context.Context, p *Program) error
	// Accrue records a positive transaction, at most once per
	// (program, reference).
	Accrue(ctx context.Context, pt *PointsTransaction) error
	// Redeem records a negative transaction, failing with
	// ErrInsufficientPoints when the balance would go negative. The
	// check and the write are atomic.
	Redeem(ctx context.Context, pt *PointsTransaction) error
	// Balance sums the client's transactions; programID "" sums across
	// programs.
	Balance(ctx context.Context, clientID, programID string) (int64, error)
}

// Service manages loyalty accrual and redemption.
type Service struct {
	store   Store
	emitter *events.Emitter
}

// New creates a loyalty service.
func New(store Store) *Service {
	return &Service{store: store}
}

// WithEmitter attaches an event emitter for accrual events.
func (s *Service) WithEmitter(e *events.Emitter) *Service {
	s.emitter = e
	return s
}

// CreateProgram registers a business's loyalty program.
func (s *Service) CreateProgram(ctx context.Context, p *Program) error {
	if p.ID == "" {
		p.ID = idgen.WithPrefix("lpr_")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return s.store.PutProgram(ctx, p)
}

// GetProgram returns a program by ID.
func (s *Service) GetProgram(ctx context.Context, id string) (*Program, error) {
	return s.store.GetProgram(ctx, id)
}

// Accrue grants points for a settled amount. It is a no-op when the
// business runs no program or the sale was anonymous, and when the
// reference was already accrued (a retried settlement). Returns the
// points granted.
func (s *Service) Accrue(ctx context.Context, businessID, clientID, totalAmount, reference string) (int64, error) {
	if clientID == "" {
		return 0, nil
	}
	program, err := s.store.GetProgramByBusiness(ctx, businessID)
	if err != nil {
		return 0, err
	}
	if program == nil {
		return 0, nil
	}

	points := pointsFor(totalAmount, program.PointsPerPurchase)
	if points <= 0 {
		return 0, nil
	}

	err = s.store.Accrue(ctx, &PointsTransaction{
		ID:        idgen.WithPrefix("lpt_"),
		ClientID:  clientID,
		ProgramID: program.ID,
		Points:    points,
		Reference: reference,
		CreatedAt: time.Now(),
	})
	if errors.Is(err, ErrDuplicateAccrual) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	metrics.LoyaltyPointsTotal.WithLabelValues("accrued").Add(float64(points))
	s.emitter.EmitLoyaltyAccrued(clientID, program.ID, points)
	return points, nil
}

// Redeem burns points against a program.
func (s *Service) Redeem(ctx context.Context, clientID, programID string, points int64, reference string) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	if _, err := s.store.GetProgram(ctx, programID); err != nil {
		return err
	}

	err := s.store.Redeem(ctx, &PointsTransaction{
		ID:        idgen.WithPrefix("lpt_"),
		ClientID:  clientID,
		ProgramID: programID,
		Points:    -points,
		Reference: reference,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	metrics.LoyaltyPointsTotal.WithLabelValues("redeemed").Add(float64(points))
	return nil
}

// Balance returns a client's points, optionally scoped to one program.
func (s *Service) Balance(ctx context.Context, clientID, programID string) (int64, error) {
	return s.store.Balance(ctx, clientID, programID)
}

// TierFor returns the highest tier the client's balance reaches in a
// program, or nil when no tier is reached.
func (s *Service) TierFor(ctx context.Context, clientID, programID string) (*Tier, error) {
	program, err := s.store.GetProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	balance, err := s.store.Balance(ctx, clientID, programID)
	if err != nil {
		return nil, err
	}

	var best *Tier
	for i := range program.Tiers {
		t := program.Tiers[i]
		if balance >= t.MinPoints && (best == nil || t.MinPoints > best.MinPoints) {
			best = &t
		}
	}
	return best, nil
}

// pointsFor converts a settled amount to whole points, flooring.
func pointsFor(totalAmount string, rate int64) int64 {
	amount, ok := money.Parse(totalAmount)
	if !ok {
		return 0
	}
	// amount is in centimes; points accrue per whole franc
	points := new(big.Int).Mul(amount, big.NewInt(rate))
	points.Quo(points, big.NewInt(100))
	if !points.IsInt64() {
		return 0
	}
	return points.Int64()
}

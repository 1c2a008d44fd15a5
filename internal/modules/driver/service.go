// README: Driver service; registration, review status and the eligibility gate.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"bidride/internal/apperr"
	"bidride/internal/types"
)

type Repository interface {
	Get(ctx context.Context, userID types.ID) (*Profile, error)
	Upsert(ctx context.Context, p *Profile) error
	SetStatus(ctx context.Context, userID types.ID, status Status) (bool, error)
	SetDeposit(ctx context.Context, userID types.ID, sufficient bool) error
}

type Balances interface {
	Balance(ctx context.Context, userID types.ID) (types.Money, error)
}

// Uploader is the object storage collaborator; it returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

type Service struct {
	repo            Repository
	balances        Balances
	uploader        Uploader
	depositRequired int64
	vehicleTypes    func(string) bool
	log             *zap.Logger
	now             func() time.Time
}

// NewService wires the driver service. knownVehicle reports whether a vehicle
// type has a fare rate; nil accepts any non-empty type.
func NewService(repo Repository, balances Balances, uploader Uploader, depositRequired int64, knownVehicle func(string) bool, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:            repo,
		balances:        balances,
		uploader:        uploader,
		depositRequired: depositRequired,
		vehicleTypes:    knownVehicle,
		log:             log,
		now:             time.Now,
	}
}

type Document struct {
	Kind        string // "license", "cnic_front", ...
	FileName    string
	ContentType string
	Body        io.Reader
}

type RegisterCommand struct {
	UserID        types.ID
	VehicleType   string
	VehicleNumber string
	Documents     []Document
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*Profile, error) {
	vt := strings.ToLower(strings.TrimSpace(cmd.VehicleType))
	switch {
	case cmd.UserID == "":
		return nil, apperr.Validation("driver.register", "missing user id")
	case vt == "":
		return nil, apperr.Validation("driver.register", "missing vehicle type")
	case s.vehicleTypes != nil && !s.vehicleTypes(vt):
		return nil, apperr.Validation("driver.register", "unsupported vehicle type "+vt)
	case strings.TrimSpace(cmd.VehicleNumber) == "":
		return nil, apperr.Validation("driver.register", "missing vehicle number")
	}

	docs := make(map[string]string, len(cmd.Documents))
	for _, d := range cmd.Documents {
		if s.uploader == nil {
			return nil, apperr.Rejected("driver.register", "document uploads are not enabled")
		}
		objectPath := fmt.Sprintf("drivers/%s/%s-%d%s", cmd.UserID, d.Kind, s.now().UnixMilli(), path.Ext(d.FileName))
		url, err := s.uploader.Upload(ctx, objectPath, d.ContentType, d.Body)
		if err != nil {
			s.log.Error("document upload failed", zap.String("user_id", string(cmd.UserID)), zap.String("kind", d.Kind), zap.Error(err))
			return nil, apperr.Store("driver.register", err)
		}
		docs[d.Kind] = url
	}

	now := s.now()
	p := &Profile{
		UserID:          cmd.UserID,
		Status:          StatusPending,
		VehicleType:     vt,
		VehicleNumber:   strings.ToUpper(strings.TrimSpace(cmd.VehicleNumber)),
		LicenseURL:      docs["license"],
		Documents:       docs,
		DepositRequired: s.depositRequired,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, apperr.Store("driver.register", err)
	}
	s.log.Info("driver registered", zap.String("user_id", string(p.UserID)), zap.String("vehicle_type", vt))
	return p, nil
}

func (s *Service) Get(ctx context.Context, userID types.ID) (*Profile, error) {
	p, err := s.repo.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("driver.get", "driver profile")
	}
	if err != nil {
		return nil, apperr.Store("driver.get", err)
	}
	return p, nil
}

// IsEligible checks registration, approval and the live wallet balance in that
// order and reports the first failing gate. The cached deposit flag is never
// trusted on its own.
func (s *Service) IsEligible(ctx context.Context, userID types.ID) (Eligibility, error) {
	p, err := s.repo.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Eligibility{Reason: ReasonNotRegistered}, nil
	}
	if err != nil {
		return Eligibility{}, apperr.Store("driver.eligibility", err)
	}
	e := Eligibility{VehicleType: p.VehicleType, Required: s.required(p)}
	if p.Status != StatusApproved {
		e.Reason = ReasonPendingApproval
		return e, nil
	}
	balance, err := s.balances.Balance(ctx, userID)
	if err != nil {
		return Eligibility{}, err
	}
	e.Balance = balance.Amount
	if e.Balance < e.Required {
		e.Reason = ReasonInsufficientDeposit
		return e, nil
	}
	e.Eligible = true
	return e, nil
}

// SetStatus is the hook for the external review process.
func (s *Service) SetStatus(ctx context.Context, userID types.ID, status Status) (Eligibility, error) {
	if !status.Valid() {
		return Eligibility{}, apperr.Validation("driver.set_status", "unknown status "+string(status))
	}
	ok, err := s.repo.SetStatus(ctx, userID, status)
	if err != nil {
		return Eligibility{}, apperr.Store("driver.set_status", err)
	}
	if !ok {
		return Eligibility{}, apperr.NotFound("driver.set_status", "driver profile")
	}
	s.log.Info("driver status changed", zap.String("user_id", string(userID)), zap.String("status", string(status)))
	return s.RecomputeDeposit(ctx, userID)
}

// RecomputeDeposit refreshes the stored has_sufficient_deposit flag from the
// current balance and returns the fresh eligibility.
func (s *Service) RecomputeDeposit(ctx context.Context, userID types.ID) (Eligibility, error) {
	p, err := s.repo.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Eligibility{Reason: ReasonNotRegistered}, nil
	}
	if err != nil {
		return Eligibility{}, apperr.Store("driver.recompute_deposit", err)
	}
	balance, err := s.balances.Balance(ctx, userID)
	if err != nil {
		return Eligibility{}, err
	}
	sufficient := balance.Amount >= s.required(p)
	if sufficient != p.HasSufficientDeposit {
		if err := s.repo.SetDeposit(ctx, userID, sufficient); err != nil {
			return Eligibility{}, apperr.Store("driver.recompute_deposit", err)
		}
		s.log.Info("driver deposit flag changed", zap.String("user_id", string(userID)), zap.Bool("sufficient", sufficient))
	}
	return s.IsEligible(ctx, userID)
}

func (s *Service) required(p *Profile) int64 {
	if p.DepositRequired > 0 {
		return p.DepositRequired
	}
	return s.depositRequired
}

// README: Ride service implements creation, acceptance and state transitions.
package ride

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"bidride/internal/apperr"
	"bidride/internal/events"
	"bidride/internal/modules/driver"
	"bidride/internal/modules/location"
	"bidride/internal/observability"
	"bidride/internal/types"
)

// Rejection reasons shown to users.
const (
	ReasonUnavailable     = "ride no longer available"
	ReasonVehicleMismatch = "vehicle type mismatch"
	ReasonAcceptInFlight  = "accept already in progress"
	ReasonActiveRide      = "passenger already has an active ride"
	ReasonStateChanged    = "ride state changed"
)

// OpAccept tags errors from Accept; the HTTP layer shows a lost accept with
// the generic ReasonUnavailable text.
const OpAccept = "ride.accept"

// ErrNotFound is returned by repositories for unknown ride ids.
var ErrNotFound = errors.New("ride not found")

type Repository interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	ListSearching(ctx context.Context) ([]*Ride, error)
	// ListNearby calls get_nearby_ride_requests, which prefilters on geohash cells.
	ListNearby(ctx context.Context, center types.Point, radiusKm float64, cells []string) ([]*Ride, error)
	UpdateStatus(ctx context.Context, t Transition) (bool, error)
	// Accept assigns the driver only while the ride is searching and unassigned.
	Accept(ctx context.Context, a Assignment) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	ActiveByPassenger(ctx context.Context, passengerID types.ID) (*Ride, error)
	ActiveByDriver(ctx context.Context, driverID types.ID) (*Ride, error)
}

// Transition is a compare-and-set on (status, status_version).
type Transition struct {
	RideID       types.ID
	From         Status
	To           Status
	Version      int
	ClearDriver  bool
	CancelReason *string
	At           time.Time
}

type Assignment struct {
	RideID         types.ID
	DriverID       types.ID
	DriverLocation *types.Point
	Price          *types.Money
	At             time.Time
}

type Fares interface {
	BaseFare(distanceKm float64, vehicleType string) (types.Money, error)
}

// Estimator returns road distance and duration between two points.
type Estimator interface {
	Estimate(ctx context.Context, from, to types.Point) (distanceKm float64, minutes int, err error)
}

type Gate interface {
	IsEligible(ctx context.Context, driverID types.ID) (driver.Eligibility, error)
}

// Payments settles wallet rides. Transfer must move both legs atomically and
// treat a repeated reference as already settled.
type Payments interface {
	Transfer(ctx context.Context, from, to types.ID, amount types.Money, reference string) error
}

// Guard blocks a second accept from the same driver while one is in flight.
type Guard interface {
	Acquire(ctx context.Context, rideID, driverID types.ID) (release func(), ok bool, err error)
}

// Index mirrors searching rides into a geo index.
type Index interface {
	Add(ctx context.Context, r *Ride) error
	Remove(ctx context.Context, id types.ID) error
}

type Service struct {
	repo      Repository
	fares     Fares
	gate      Gate
	estimator Estimator
	payments  Payments
	guard     Guard
	index     Index
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithEstimator(e Estimator) Option        { return func(s *Service) { s.estimator = e } }
func WithPayments(p Payments) Option          { return func(s *Service) { s.payments = p } }
func WithGuard(g Guard) Option                { return func(s *Service) { s.guard = g } }
func WithIndex(i Index) Option                { return func(s *Service) { s.index = i } }
func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.publisher = p } }
func WithLogger(l *zap.Logger) Option         { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option   { return func(s *Service) { s.now = now } }

func NewService(repo Repository, fares Fares, gate Gate, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		fares:     fares,
		gate:      gate,
		publisher: events.Noop{},
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type QuoteCommand struct {
	Pickup      types.Point
	Dropoff     types.Point
	VehicleType string
}

type QuoteResult struct {
	DistanceKm      float64     `json:"distance_km"`
	DurationMinutes int         `json:"duration_minutes"`
	BaseFare        types.Money `json:"base_fare"`
	Source          string      `json:"source"`
}

// Quote estimates the trip and its base fare. A failing route service falls
// back to great-circle distance.
func (s *Service) Quote(ctx context.Context, cmd QuoteCommand) (QuoteResult, error) {
	if !cmd.Pickup.Valid() || !cmd.Dropoff.Valid() {
		return QuoteResult{}, apperr.Validation("ride.quote", "coordinates out of range")
	}
	res := QuoteResult{Source: "haversine"}
	if s.estimator != nil {
		d, m, err := s.estimator.Estimate(ctx, cmd.Pickup, cmd.Dropoff)
		if err == nil {
			res.DistanceKm, res.DurationMinutes, res.Source = d, m, "maps"
		} else {
			s.log.Warn("route estimate failed, using haversine", zap.Error(err))
		}
	}
	if res.Source == "haversine" {
		res.DistanceKm = location.DistanceKm(cmd.Pickup, cmd.Dropoff)
		res.DurationMinutes = location.ETAMinutes(res.DistanceKm, 0)
	}
	base, err := s.fares.BaseFare(res.DistanceKm, cmd.VehicleType)
	if err != nil {
		return QuoteResult{}, err
	}
	res.BaseFare = base
	return res, nil
}

type CreateCommand struct {
	PassengerID     types.ID
	Pickup          location.Location
	Dropoff         location.Location
	VehicleOption   VehicleOption
	Bid             types.Money
	DistanceKm      float64
	DurationMinutes int
	PaymentMethod   PaymentMethod
}

// Create inserts a searching ride. It is never retried: a retried insert
// could create a duplicate ride.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	const op = "ride.create"
	if cmd.PassengerID == "" {
		return nil, apperr.Validation(op, "missing passenger id")
	}
	pickup, dropoff := cmd.Pickup.Point(), cmd.Dropoff.Point()
	if !pickup.Valid() || !dropoff.Valid() {
		return nil, apperr.Validation(op, "missing or invalid coordinates")
	}
	if cmd.PaymentMethod == "" {
		cmd.PaymentMethod = PaymentCash
	}
	if !cmd.PaymentMethod.Valid() {
		return nil, apperr.Validation(op, "unknown payment method "+string(cmd.PaymentMethod))
	}
	// A client-reported distance is kept only when it is at least the
	// great-circle distance; no road route is shorter.
	if floor := location.DistanceKm(pickup, dropoff); cmd.DistanceKm < floor {
		cmd.DistanceKm = floor
		cmd.DurationMinutes = 0
	}
	if cmd.DurationMinutes <= 0 {
		cmd.DurationMinutes = location.ETAMinutes(cmd.DistanceKm, 0)
	}
	cmd.VehicleOption.Type = strings.ToLower(strings.TrimSpace(cmd.VehicleOption.Type))
	for _, f := range []struct{ field, value string }{
		{"pickup name", cmd.Pickup.Name},
		{"dropoff name", cmd.Dropoff.Name},
		{"vehicle option id", cmd.VehicleOption.ID},
		{"vehicle option name", cmd.VehicleOption.Name},
		{"vehicle type", cmd.VehicleOption.Type},
	} {
		if utf8.RuneCountInString(f.value) > MaxNameLength {
			return nil, apperr.Validation(op, fmt.Sprintf("%s longer than %d characters", f.field, MaxNameLength))
		}
	}
	base, err := s.fares.BaseFare(cmd.DistanceKm, cmd.VehicleOption.Type)
	if err != nil {
		return nil, err
	}
	if cmd.Bid.Currency == "" {
		cmd.Bid.Currency = base.Currency
	}
	if cmd.Bid.Less(base) {
		return nil, apperr.Validation(op, fmt.Sprintf("bid %s is below base fare %s", cmd.Bid, base))
	}
	if cmd.VehicleOption.BasePrice == 0 {
		cmd.VehicleOption.BasePrice = base.Amount
	}

	active, err := s.repo.ActiveByPassenger(ctx, cmd.PassengerID)
	if err != nil {
		return nil, s.storeErr(op, err)
	}
	if active != nil {
		return nil, apperr.Rejected(op, ReasonActiveRide)
	}

	pickupJSON, err := json.Marshal(cmd.Pickup)
	if err != nil {
		return nil, apperr.Validation(op, "invalid pickup")
	}
	dropoffJSON, err := json.Marshal(cmd.Dropoff)
	if err != nil {
		return nil, apperr.Validation(op, "invalid dropoff")
	}
	r := &Ride{
		ID:              types.NewID(),
		PassengerID:     cmd.PassengerID,
		Pickup:          pickupJSON,
		Dropoff:         dropoffJSON,
		VehicleOption:   cmd.VehicleOption,
		Price:           cmd.Bid,
		DistanceKm:      cmd.DistanceKm,
		DurationMinutes: cmd.DurationMinutes,
		PaymentMethod:   cmd.PaymentMethod,
		Status:          StatusSearching,
		CreatedAt:       s.now(),
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, s.storeErr(op, err)
	}
	observability.RidesCreated.Inc()
	s.appendEvent(ctx, &Event{
		RideID:     r.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusSearching,
		ActorType:  ActorPassenger,
		ActorID:    &cmd.PassengerID,
		CreatedAt:  r.CreatedAt,
	})
	if s.index != nil {
		if err := s.index.Add(ctx, r); err != nil {
			s.log.Warn("ride index add failed", zap.String("ride_id", string(r.ID)), zap.Error(err))
		}
	}
	s.publish(ctx, events.TypeRideCreated, r)
	s.log.Info("ride created", zap.String("ride_id", string(r.ID)), zap.String("passenger_id", string(r.PassengerID)), zap.Int64("price", r.Price.Amount))
	return r, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	r, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("ride.get", "ride")
	}
	if err != nil {
		return nil, s.storeErr("ride.get", err)
	}
	return r, nil
}

// ListSearching returns every searching, unassigned ride.
func (s *Service) ListSearching(ctx context.Context) ([]*Ride, error) {
	rides, err := s.repo.ListSearching(ctx)
	if err != nil {
		return nil, s.storeErr("ride.list_searching", err)
	}
	return rides, nil
}

// ListNearby narrows the searching set in the store before distance filtering.
func (s *Service) ListNearby(ctx context.Context, center types.Point, radiusKm float64) ([]*Ride, error) {
	rides, err := s.repo.ListNearby(ctx, center, radiusKm, location.CoverCells(center, radiusKm))
	if err != nil {
		return nil, s.storeErr("ride.list_nearby", err)
	}
	return rides, nil
}

type UpdateStatusCommand struct {
	RideID    types.ID
	To        Status
	ActorType string
	ActorID   *types.ID
	Reason    string
}

// UpdateStatus applies a transition with its status-specific fields:
// started_at on in_progress, ended_at on completed or cancelled.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*Ride, error) {
	r, err := s.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, r, cmd)
}

func (s *Service) Start(ctx context.Context, rideID, driverID types.ID) (*Ride, error) {
	r, err := s.assignedTo(ctx, "ride.start", rideID, driverID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, r, UpdateStatusCommand{RideID: rideID, To: StatusInProgress, ActorType: ActorDriver, ActorID: &driverID})
}

// Complete ends the trip. Wallet rides then move the price from passenger to
// driver; a failed settlement is returned but the ride stays completed, and
// calling Complete again retries it.
func (s *Service) Complete(ctx context.Context, rideID, driverID types.ID) (*Ride, error) {
	r, err := s.assignedTo(ctx, "ride.complete", rideID, driverID)
	if err != nil {
		return nil, err
	}
	done := r
	// A completed ride is settled again on retry; the transfer reference
	// keeps that from charging twice.
	if r.Status != StatusCompleted {
		done, err = s.transition(ctx, r, UpdateStatusCommand{RideID: rideID, To: StatusCompleted, ActorType: ActorDriver, ActorID: &driverID})
		if err != nil {
			return nil, err
		}
	}
	if done.PaymentMethod != PaymentWallet || s.payments == nil {
		return done, nil
	}
	if err := s.payments.Transfer(ctx, done.PassengerID, driverID, done.Price, "ride:"+string(done.ID)); err != nil {
		s.log.Error("ride settlement failed", zap.String("ride_id", string(done.ID)), zap.Error(err))
		return done, err
	}
	return done, nil
}

type CancelCommand struct {
	RideID  types.ID
	ActorID types.ID
	Reason  string
}

// Cancel is allowed to either party while the ride is searching or confirmed.
// A confirmed ride loses its driver; the driver is kept on the event.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Ride, error) {
	r, err := s.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !r.IsParty(cmd.ActorID) {
		return nil, apperr.Forbidden("ride.cancel", "not a party to this ride")
	}
	if utf8.RuneCountInString(cmd.Reason) > MaxReasonLength {
		return nil, apperr.Validation("ride.cancel", fmt.Sprintf("reason longer than %d characters", MaxReasonLength))
	}
	actorType := ActorDriver
	if r.PassengerID == cmd.ActorID {
		actorType = ActorPassenger
	}
	return s.transition(ctx, r, UpdateStatusCommand{
		RideID:    cmd.RideID,
		To:        StatusCancelled,
		ActorType: actorType,
		ActorID:   &cmd.ActorID,
		Reason:    cmd.Reason,
	})
}

type AcceptCommand struct {
	RideID         types.ID
	DriverID       types.ID
	DriverLocation *types.Point
	// CounterBid replaces the passenger's bid; it may not go below base fare.
	CounterBid *types.Money
}

// Accept claims a searching ride for a driver. Ineligible drivers, vehicle
// mismatches and lost races all come back as Rejected; the caller refreshes
// its nearby list instead of retrying the same ride.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Ride, error) {
	const op = OpAccept
	if cmd.RideID == "" || cmd.DriverID == "" {
		return nil, apperr.Validation(op, "missing ride or driver id")
	}
	if cmd.DriverLocation != nil && !cmd.DriverLocation.Valid() {
		return nil, apperr.Validation(op, "driver coordinates out of range")
	}

	if s.guard != nil {
		release, ok, err := s.guard.Acquire(ctx, cmd.RideID, cmd.DriverID)
		switch {
		case err != nil:
			s.log.Warn("accept guard unavailable", zap.Error(err))
		case !ok:
			return nil, s.reject(op, cmd, ReasonAcceptInFlight)
		default:
			defer release()
		}
	}

	elig, err := s.gate.IsEligible(ctx, cmd.DriverID)
	if err != nil {
		observability.AcceptAttempts.WithLabelValues(observability.OutcomeError).Inc()
		return nil, s.storeErr(op, err)
	}
	if !elig.Eligible {
		return nil, s.reject(op, cmd, elig.Reason)
	}

	r, err := s.Get(ctx, cmd.RideID)
	if err != nil {
		if !apperr.IsNotFound(err) {
			observability.AcceptAttempts.WithLabelValues(observability.OutcomeError).Inc()
		}
		return nil, err
	}
	if r.Status != StatusSearching || r.DriverID != nil {
		return nil, s.reject(op, cmd, ReasonUnavailable)
	}
	if !r.MatchesVehicle(elig.VehicleType) {
		return nil, s.reject(op, cmd, ReasonVehicleMismatch)
	}

	var price *types.Money
	if cmd.CounterBid != nil {
		vt := r.VehicleType()
		if vt == "" {
			vt = elig.VehicleType
		}
		base, err := s.fares.BaseFare(fareDistance(r), vt)
		if err != nil {
			return nil, err
		}
		bid := *cmd.CounterBid
		if bid.Currency == "" {
			bid.Currency = base.Currency
		}
		if bid.Less(base) {
			return nil, apperr.Validation(op, fmt.Sprintf("counter bid %s is below base fare %s", bid, base))
		}
		price = &bid
	}

	ok, err := s.repo.Accept(ctx, Assignment{
		RideID:         cmd.RideID,
		DriverID:       cmd.DriverID,
		DriverLocation: cmd.DriverLocation,
		Price:          price,
		At:             s.now(),
	})
	if err != nil {
		observability.AcceptAttempts.WithLabelValues(observability.OutcomeError).Inc()
		return nil, s.storeErr(op, err)
	}
	if !ok {
		return nil, s.reject(op, cmd, ReasonUnavailable)
	}
	observability.AcceptAttempts.WithLabelValues(observability.OutcomeAccepted).Inc()

	accepted, err := s.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	s.appendEvent(ctx, &Event{
		RideID:     accepted.ID,
		FromStatus: StatusSearching,
		ToStatus:   StatusConfirmed,
		ActorType:  ActorDriver,
		ActorID:    &cmd.DriverID,
		CreatedAt:  s.now(),
	})
	if s.index != nil {
		if err := s.index.Remove(ctx, accepted.ID); err != nil {
			s.log.Warn("ride index remove failed", zap.String("ride_id", string(accepted.ID)), zap.Error(err))
		}
	}
	s.publish(ctx, events.TypeRideAccepted, accepted)
	s.log.Info("ride accepted", zap.String("ride_id", string(accepted.ID)), zap.String("driver_id", string(cmd.DriverID)))
	return accepted, nil
}

func (s *Service) ActiveForPassenger(ctx context.Context, passengerID types.ID) (*Ride, error) {
	r, err := s.repo.ActiveByPassenger(ctx, passengerID)
	if err != nil {
		return nil, s.storeErr("ride.active_for_passenger", err)
	}
	return r, nil
}

func (s *Service) ActiveForDriver(ctx context.Context, driverID types.ID) (*Ride, error) {
	r, err := s.repo.ActiveByDriver(ctx, driverID)
	if err != nil {
		return nil, s.storeErr("ride.active_for_driver", err)
	}
	return r, nil
}

// fareDistance is the stored trip distance, raised to the great-circle
// distance for rows written before Create enforced that floor.
func fareDistance(r *Ride) float64 {
	pickup, okP := r.PickupPoint()
	dropoff, okD := r.DropoffPoint()
	if okP && okD {
		if floor := location.DistanceKm(pickup, dropoff); r.DistanceKm < floor {
			return floor
		}
	}
	return r.DistanceKm
}

func (s *Service) assignedTo(ctx context.Context, op string, rideID, driverID types.ID) (*Ride, error) {
	r, err := s.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID == nil || *r.DriverID != driverID {
		return nil, apperr.Forbidden(op, "ride is not assigned to this driver")
	}
	return r, nil
}

func (s *Service) transition(ctx context.Context, r *Ride, cmd UpdateStatusCommand) (*Ride, error) {
	const op = "ride.update_status"
	if !CanTransition(r.Status, cmd.To) {
		return nil, apperr.Rejected(op, fmt.Sprintf("cannot move ride from %s to %s", r.Status, cmd.To))
	}
	t := Transition{
		RideID:      r.ID,
		From:        r.Status,
		To:          cmd.To,
		Version:     r.StatusVersion,
		ClearDriver: cmd.To == StatusCancelled,
		At:          s.now(),
	}
	if cmd.Reason != "" {
		t.CancelReason = &cmd.Reason
	}
	ok, err := s.repo.UpdateStatus(ctx, t)
	if err != nil {
		return nil, s.storeErr(op, err)
	}
	if !ok {
		return nil, apperr.Rejected(op, ReasonStateChanged)
	}
	e := &Event{
		RideID:     r.ID,
		FromStatus: r.Status,
		ToStatus:   cmd.To,
		ActorType:  cmd.ActorType,
		ActorID:    cmd.ActorID,
		CreatedAt:  t.At,
	}
	if t.ClearDriver {
		e.PreviousDriverID = r.DriverID
	}
	s.appendEvent(ctx, e)
	if r.Status == StatusSearching && s.index != nil {
		if err := s.index.Remove(ctx, r.ID); err != nil {
			s.log.Warn("ride index remove failed", zap.String("ride_id", string(r.ID)), zap.Error(err))
		}
	}

	updated, err := s.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeRideStatusChanged, updated)
	return updated, nil
}

func (s *Service) reject(op string, cmd AcceptCommand, reason string) error {
	observability.AcceptAttempts.WithLabelValues(observability.OutcomeRejected).Inc()
	s.log.Debug("accept rejected", zap.String("ride_id", string(cmd.RideID)), zap.String("driver_id", string(cmd.DriverID)), zap.String("reason", reason))
	return apperr.Rejected(op, reason)
}

func (s *Service) storeErr(op string, err error) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		s.log.Error("store call failed", zap.String("op", op), zap.Error(err))
	}
	return apperr.Store(op, err)
}

func (s *Service) appendEvent(ctx context.Context, e *Event) {
	if err := s.repo.AppendEvent(ctx, e); err != nil {
		s.log.Warn("append ride event failed", zap.String("ride_id", string(e.RideID)), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, typ string, r *Ride) {
	e := events.RideEvent{
		Type:        typ,
		RideID:      r.ID,
		PassengerID: r.PassengerID,
		DriverID:    r.DriverID,
		Status:      string(r.Status),
		Price:       r.Price,
		VehicleType: r.VehicleType(),
		OccurredAt:  s.now(),
	}
	if p, ok := r.PickupPoint(); ok {
		e.Pickup = &p
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("publish ride event failed", zap.String("type", typ), zap.String("ride_id", string(r.ID)), zap.Error(err))
	}
}

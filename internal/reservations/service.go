package reservations

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"tablebook/internal/shared/config"
	"tablebook/internal/tables"
	"tablebook/pkg/feed"
	"tablebook/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Service interface {
	CreateReservation(ctx context.Context, req CreateReservationRequest) (*Reservation, error)
	UpdateReservation(ctx context.Context, id string, patch UpdatePatch) (*Reservation, error)
	CancelReservation(ctx context.Context, id string) (*Reservation, error)
	CompleteReservation(ctx context.Context, id string) (*Reservation, error)
	DeleteReservation(ctx context.Context, id string) error
	GetReservation(ctx context.Context, id string) (*Reservation, error)
	GetReservations(ctx context.Context, businessID string) ([]Reservation, error)
	GetCustomerHistory(ctx context.Context, customerUsername string) ([]Reservation, error)
}

// Publisher fans confirmed changes out to a business's subscribers
type Publisher interface {
	Publish(ctx context.Context, businessID uuid.UUID, event feed.Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, uuid.UUID, feed.Event) error { return nil }

// Options are the business rules the service enforces
type Options struct {
	Location       *time.Location
	UpdateLeadTime time.Duration
	CancelLeadTime time.Duration
	Durations      map[SlotType]time.Duration
	Now            func() time.Time
}

var defaultDurations = map[SlotType]time.Duration{
	SlotCasual:     60 * time.Minute,
	SlotFineDining: 120 * time.Minute,
	SlotBuffet:     90 * time.Minute,
}

func OptionsFromConfig(cfg config.ReservationConfig) Options {
	return Options{
		Location:       cfg.Location(),
		UpdateLeadTime: cfg.UpdateLeadTime,
		CancelLeadTime: cfg.CancelLeadTime,
		Durations: map[SlotType]time.Duration{
			SlotCasual:     cfg.CasualDuration,
			SlotFineDining: cfg.FineDiningDuration,
			SlotBuffet:     cfg.BuffetDuration,
		},
	}
}

type service struct {
	repo        Repository
	tables      tables.Repository
	publisher   Publisher
	idempotency IdempotencyStore
	opts        Options
	validate    *validator.Validate
	log         *logger.Logger
}

// NewService wires the command handler. A nil publisher drops events and a nil
// idempotency store keeps keys in memory.
func NewService(repo Repository, tableRepo tables.Repository, publisher Publisher, idem IdempotencyStore, opts Options, log *logger.Logger) Service {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	durations := make(map[SlotType]time.Duration, len(defaultDurations))
	for slot, d := range defaultDurations {
		if custom := opts.Durations[slot]; custom > 0 {
			d = custom
		}
		durations[slot] = d
	}
	opts.Durations = durations
	if idem == nil {
		idem = NewMemoryIdempotencyStore(24*time.Hour, 30*time.Second)
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &service{
		repo:        repo,
		tables:      tableRepo,
		publisher:   publisher,
		idempotency: idem,
		opts:        opts,
		validate:    NewValidator(),
		log:         log.WithComponent("reservations"),
	}
}

// NewValidator reads the same binding tags gin uses and reports fields by their JSON names
func NewValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *service) CreateReservation(ctx context.Context, req CreateReservationRequest) (*Reservation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError(err)
	}
	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		return nil, invalid("business_id", "must be a UUID")
	}

	slot := parseSlotType(req.SlotType)
	date, err := NormalizeDate("end_date", req.EndDate, s.opts.Location)
	if err != nil {
		return nil, err
	}
	start, err := NormalizeClock("start_time", req.StartTime)
	if err != nil {
		return nil, err
	}
	window, err := s.window(start, req.EndTime, s.opts.Durations[slot])
	if err != nil {
		return nil, err
	}
	if err := s.checkStartsAfter(date, window.Start, 0); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.claim(ctx, req.BusinessID, key)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	res, err := s.create(ctx, businessID, req, slot, date, window)
	if key != "" {
		s.settle(ctx, req.BusinessID, key, res, err)
	}
	return res, err
}

func (s *service) create(ctx context.Context, businessID uuid.UUID, req CreateReservationRequest, slot SlotType, date string, window Window) (*Reservation, error) {
	table, err := s.resolveTable(ctx, businessID, req.TableNumber)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListActiveByTableAndDate(ctx, businessID, table.ID, date)
	if err != nil {
		return nil, err
	}
	if err := CheckAvailability(*table, date, window, req.GroupSize, existing, uuid.Nil); err != nil {
		s.log.LogReservationConflict(ctx, businessID.String(), table.TableNumber, date, err.Error())
		return nil, err
	}

	res := &Reservation{
		BusinessID:       businessID,
		TableID:          table.ID,
		TableNumber:      table.TableNumber,
		FloorName:        table.FloorName,
		CustomerUsername: strings.TrimSpace(req.CustomerUsername),
		CustomerName:     strings.TrimSpace(req.CustomerName),
		CustomerNumber:   strings.TrimSpace(req.CustomerNumber),
		GroupSize:        req.GroupSize,
		SlotType:         slot,
		Date:             date,
		StartTime:        FormatClock(window.Start),
		EndTime:          FormatClock(window.End),
		Status:           StatusActive,
	}
	if err := s.repo.Create(ctx, res, *table); err != nil {
		if errors.Is(err, ErrConflict) {
			s.log.LogReservationConflict(ctx, businessID.String(), table.TableNumber, date, err.Error())
		}
		return nil, err
	}

	s.log.LogReservationCreated(ctx, res.ID.String(), businessID.String(), res.TableNumber, res.Date, res.StartTime, res.EndTime)
	s.publish(ctx, res.BusinessID, feed.Created(res.ToRecord()))
	return res, nil
}

// claim returns the reservation an earlier request with the same key produced, or
// nil when this request now owns the key. Without a working store nothing is written.
func (s *service) claim(ctx context.Context, businessID, key string) (*Reservation, error) {
	state, id, err := s.idempotency.Claim(ctx, businessID, key)
	if err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return nil, err
	}

	switch state {
	case ClaimPending:
		return nil, ErrRequestInProgress
	case ClaimCompleted:
		rid, perr := uuid.Parse(id)
		if perr != nil {
			return nil, fmt.Errorf("%w: corrupt idempotency record", ErrStoreUnavailable)
		}
		return s.repo.GetByID(ctx, rid)
	default:
		return nil, nil
	}
}

func (s *service) settle(ctx context.Context, businessID, key string, res *Reservation, createErr error) {
	// the write already happened; a cancelled caller must not leave the key pending
	ctx = context.WithoutCancel(ctx)
	if createErr != nil {
		if err := s.idempotency.Release(ctx, businessID, key); err != nil {
			s.log.Warn("Failed to release idempotency key", "business_id", businessID, logger.Err(err))
		}
		return
	}
	if err := s.idempotency.Complete(ctx, businessID, key, res.ID.String()); err != nil {
		s.log.Warn("Failed to record idempotency key", "business_id", businessID, "reservation_id", res.ID.String(), logger.Err(err))
	}
}

func (s *service) UpdateReservation(ctx context.Context, id string, patch UpdatePatch) (*Reservation, error) {
	rid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(patch); err != nil {
		return nil, NewValidationError(err)
	}
	if patch.IsEmpty() {
		return nil, invalid("update_data", "must change at least one field")
	}

	current, err := s.repo.GetByID(ctx, rid)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil {
		target := Status(*patch.Status)
		if patch.onlyStatus() {
			return s.transition(ctx, current, target)
		}
		if target != StatusActive || current.Status != StatusActive {
			return nil, invalid("status", "cannot be changed together with other fields")
		}
		patch.Status = nil
	}

	if !current.Status.IsActive() {
		return nil, fmt.Errorf("%w: reservation is %s", ErrUpdateNotAllowed, current.Status)
	}
	if err := s.checkLeadTime(current, s.opts.UpdateLeadTime, ErrUpdateNotAllowed, "changed"); err != nil {
		return nil, err
	}

	next := *current
	table, err := s.applyPatch(ctx, &next, patch)
	if err != nil {
		return nil, err
	}

	var recheck *tables.Table
	if patch.movesSlot() {
		if table == nil {
			if table, err = s.lookupTable(ctx, next.BusinessID, next.TableID, next.TableNumber); err != nil {
				return nil, err
			}
		}
		window, _ := next.Window()
		existing, err := s.repo.ListActiveByTableAndDate(ctx, next.BusinessID, table.ID, next.Date)
		if err != nil {
			return nil, err
		}
		if err := CheckAvailability(*table, next.Date, window, next.GroupSize, existing, next.ID); err != nil {
			s.log.LogReservationConflict(ctx, next.BusinessID.String(), table.TableNumber, next.Date, err.Error())
			return nil, err
		}
		recheck = table
	}

	if err := s.repo.UpdateByID(ctx, &next, current.Version, recheck); err != nil {
		if errors.Is(err, ErrConflict) {
			s.log.LogReservationConflict(ctx, next.BusinessID.String(), next.TableNumber, next.Date, err.Error())
		}
		return nil, err
	}

	s.log.LogReservationTransition(ctx, next.ID.String(), describeSlot(current), describeSlot(&next))
	s.publish(ctx, next.BusinessID, feed.Updated(next.ToRecord()))
	return &next, nil
}

// applyPatch writes patch onto res and returns the table when the patch moved it
func (s *service) applyPatch(ctx context.Context, res *Reservation, patch UpdatePatch) (*tables.Table, error) {
	var moved *tables.Table
	if patch.TableNumber != nil && *patch.TableNumber != res.TableNumber {
		table, err := s.resolveTable(ctx, res.BusinessID, *patch.TableNumber)
		if err != nil {
			return nil, err
		}
		res.TableID = table.ID
		res.TableNumber = table.TableNumber
		res.FloorName = table.FloorName
		moved = table
	}

	if patch.CustomerUsername != nil {
		res.CustomerUsername = strings.TrimSpace(*patch.CustomerUsername)
	}
	if patch.CustomerName != nil {
		res.CustomerName = strings.TrimSpace(*patch.CustomerName)
	}
	if patch.CustomerNumber != nil {
		res.CustomerNumber = strings.TrimSpace(*patch.CustomerNumber)
	}
	if res.CustomerUsername == "" && (res.CustomerName == "" || res.CustomerNumber == "") {
		return nil, invalid("customer_name", "walk-in reservations need a name and a number")
	}

	if patch.GroupSize != nil {
		res.GroupSize = *patch.GroupSize
	}
	if patch.SlotType != nil {
		res.SlotType = parseSlotType(*patch.SlotType)
	}
	if patch.EndDate != nil {
		date, err := NormalizeDate("end_date", *patch.EndDate, s.opts.Location)
		if err != nil {
			return nil, err
		}
		res.Date = date
	}

	old, err := res.Window()
	if err != nil {
		return nil, fmt.Errorf("stored reservation %s has a bad window: %w", res.ID, err)
	}
	window := old
	if patch.StartTime != nil {
		start, err := NormalizeClock("start_time", *patch.StartTime)
		if err != nil {
			return nil, err
		}
		window.Start, _ = ParseClock(start)
		// keep the seating length when only the start moves
		window.End = window.Start + old.Length()
	}
	if patch.EndTime != nil {
		end, err := NormalizeClock("end_time", *patch.EndTime)
		if err != nil {
			return nil, err
		}
		window.End, _ = ParseClock(end)
	}
	if !window.Valid() {
		return nil, invalid("end_time", "must be after start_time on the same day")
	}
	if patch.movesStart() {
		if err := s.checkStartsAfter(res.Date, window.Start, s.opts.UpdateLeadTime); err != nil {
			return nil, err
		}
	}
	res.StartTime = FormatClock(window.Start)
	res.EndTime = FormatClock(window.End)

	return moved, nil
}

func (s *service) CancelReservation(ctx context.Context, id string) (*Reservation, error) {
	res, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, res, StatusCancelled)
}

func (s *service) CompleteReservation(ctx context.Context, id string) (*Reservation, error) {
	res, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, res, StatusCompleted)
}

// transition moves res to target. Repeating a transition that already happened returns
// the record unchanged and publishes nothing.
func (s *service) transition(ctx context.Context, res *Reservation, target Status) (*Reservation, error) {
	if res.Status == target {
		return res, nil
	}
	if !res.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: %s reservation cannot become %s", ErrInvalidTransition, res.Status, target)
	}
	if target == StatusCancelled {
		if err := s.checkLeadTime(res, s.opts.CancelLeadTime, ErrCancellationNotAllowed, "cancelled"); err != nil {
			return nil, err
		}
	}

	next := *res
	next.Status = target
	if err := s.repo.UpdateByID(ctx, &next, res.Version, nil); err != nil {
		return nil, err
	}

	s.log.LogReservationTransition(ctx, next.ID.String(), res.Status.String(), next.Status.String())
	s.publish(ctx, next.BusinessID, feed.Updated(next.ToRecord()))
	return &next, nil
}

func (s *service) DeleteReservation(ctx context.Context, id string) error {
	res, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteByID(ctx, res.ID); err != nil {
		return err
	}

	s.log.LogReservationTransition(ctx, res.ID.String(), res.Status.String(), "Deleted")
	s.publish(ctx, res.BusinessID, feed.Removed(res.ID.String()))
	return nil
}

func (s *service) GetReservation(ctx context.Context, id string) (*Reservation, error) {
	return s.load(ctx, id)
}

func (s *service) GetReservations(ctx context.Context, businessID string) ([]Reservation, error) {
	bid, err := uuid.Parse(strings.TrimSpace(businessID))
	if err != nil {
		return nil, invalid("business_id", "must be a UUID")
	}
	return s.repo.ListByBusiness(ctx, bid)
}

func (s *service) GetCustomerHistory(ctx context.Context, customerUsername string) ([]Reservation, error) {
	username := strings.TrimSpace(customerUsername)
	if username == "" {
		return nil, invalid("customer_username", "is required")
	}
	return s.repo.ListByCustomer(ctx, username)
}

func (s *service) load(ctx context.Context, id string) (*Reservation, error) {
	rid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, rid)
}

// window resolves the end of a booking, defaulting to start plus the slot's usual length
func (s *service) window(start, rawEnd string, fallback time.Duration) (Window, error) {
	from, err := ParseClock(start)
	if err != nil {
		return Window{}, invalid("start_time", err.Error())
	}
	w := Window{Start: from, End: from + fallback}
	if strings.TrimSpace(rawEnd) != "" {
		end, err := NormalizeClock("end_time", rawEnd)
		if err != nil {
			return Window{}, err
		}
		w.End, _ = ParseClock(end)
	}
	if !w.Valid() {
		return Window{}, invalid("end_time", "must be after start_time on the same day")
	}
	return w, nil
}

// checkLeadTime rejects a change when the reservation starts within lead of now
func (s *service) checkLeadTime(res *Reservation, lead time.Duration, sentinel error, verb string) error {
	startsAt, err := res.StartsAt(s.opts.Location)
	if err != nil {
		return fmt.Errorf("stored reservation %s has a bad start: %w", res.ID, err)
	}
	if startsAt.Sub(s.opts.Now()) <= lead {
		return fmt.Errorf("%w: reservations can only be %s more than %s before they start",
			sentinel, verb, formatLead(lead))
	}
	return nil
}

// checkStartsAfter rejects a start that is not more than lead after now. A zero lead
// only keeps bookings out of the past.
func (s *service) checkStartsAfter(date string, start time.Duration, lead time.Duration) error {
	startsAt, err := time.ParseInLocation(dateLayout+" "+clockLayout, date+" "+FormatClock(start), s.opts.Location)
	if err != nil {
		return invalid("start_time", err.Error())
	}
	if startsAt.Sub(s.opts.Now()) > lead {
		return nil
	}
	if lead == 0 {
		return invalid("start_time", "must be in the future")
	}
	return fmt.Errorf("%w: reservations can only be moved to more than %s from now",
		ErrUpdateNotAllowed, formatLead(lead))
}

func (s *service) resolveTable(ctx context.Context, businessID uuid.UUID, number int) (*tables.Table, error) {
	table, err := s.tables.GetByNumber(ctx, businessID, number)
	if err != nil {
		if errors.Is(err, tables.ErrTableNotFound) {
			return nil, fmt.Errorf("%w (table %d)", ErrTableNotFound, number)
		}
		return nil, fmt.Errorf("%w: resolve table: %w", ErrStoreUnavailable, err)
	}
	return table, nil
}

func (s *service) lookupTable(ctx context.Context, businessID, id uuid.UUID, number int) (*tables.Table, error) {
	table, err := s.tables.GetByID(ctx, businessID, id)
	if err != nil {
		if errors.Is(err, tables.ErrTableNotFound) {
			return nil, fmt.Errorf("%w (table %d)", ErrTableNotFound, number)
		}
		return nil, fmt.Errorf("%w: resolve table: %w", ErrStoreUnavailable, err)
	}
	if !table.Active {
		return nil, fmt.Errorf("%w (table %d is no longer on the floor plan)", ErrTableNotFound, number)
	}
	return table, nil
}

func (s *service) publish(ctx context.Context, businessID uuid.UUID, event feed.Event) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), businessID, event); err != nil {
		s.log.LogBroadcastFailure(ctx, businessID.String(), event.Type, err)
	}
}

func parseID(id string) (uuid.UUID, error) {
	rid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, invalid("reservation_id", "must be a UUID")
	}
	return rid, nil
}

func parseSlotType(v string) SlotType {
	return SlotType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "-", "_"))
}

func describeSlot(r *Reservation) string {
	return fmt.Sprintf("table %d %s %s-%s", r.TableNumber, r.Date, r.StartTime, r.EndTime)
}

func formatLead(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}

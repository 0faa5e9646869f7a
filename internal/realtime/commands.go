package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tablebook/internal/reservations"
	"tablebook/pkg/feed"
	"tablebook/pkg/logger"

	"github.com/google/uuid"
)

const defaultCommandTimeout = 15 * time.Second

// Conn is what a command needs from the socket it arrived on
type Conn interface {
	// Subscribe binds the connection to a business channel and returns the channel position
	Subscribe(businessID uuid.UUID) uint64
	Reply(env feed.Envelope) bool
}

// Dispatcher runs WebSocket commands against the reservation service
type Dispatcher struct {
	service   reservations.Service
	snapshots *SnapshotLoader
	timeout   time.Duration
	log       *logger.Logger
}

func NewDispatcher(service reservations.Service, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Dispatcher{
		service:   service,
		snapshots: NewSnapshotLoader(service),
		timeout:   defaultCommandTimeout,
		log:       log.WithComponent("realtime_commands"),
	}
}

// Handle executes one command frame. Commands are not tied to the socket's lifetime: a
// client that disconnects mid-command still gets its write applied and broadcast.
func (d *Dispatcher) Handle(c Conn, env feed.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	switch env.Event {
	case feed.EventGetReservations:
		d.getReservations(ctx, c, env)

	case feed.EventCreateReservation:
		var req reservations.CreateReservationRequest
		if d.decode(c, env, &req) {
			res, err := d.service.CreateReservation(ctx, req)
			d.answer(c, env, res, err)
		}

	case feed.EventUpdateReservation:
		var req reservations.UpdateReservationRequest
		if d.decode(c, env, &req) {
			res, err := d.service.UpdateReservation(ctx, req.ReservationID, req.UpdateData)
			d.answer(c, env, res, err)
		}

	case feed.EventDeleteReservation:
		var req reservations.ReservationIDRequest
		if d.decode(c, env, &req) {
			if err := d.service.DeleteReservation(ctx, req.ReservationID); err != nil {
				d.fail(c, env, err)
				return
			}
			d.ack(c, env, feed.Ack{Success: true, Message: "Reservation deleted"})
		}

	case feed.EventCancelReservation:
		var req reservations.ReservationIDRequest
		if d.decode(c, env, &req) {
			res, err := d.service.CancelReservation(ctx, req.ReservationID)
			d.answer(c, env, res, err)
		}

	case feed.EventCompleteReservation:
		var req reservations.ReservationIDRequest
		if d.decode(c, env, &req) {
			res, err := d.service.CompleteReservation(ctx, req.ReservationID)
			d.answer(c, env, res, err)
		}

	default:
		d.ack(c, env, feed.Ack{Success: false, Message: "unknown event " + env.Event, Code: "unknown_event"})
	}
}

// getReservations subscribes first and loads second, so no change can fall between the
// snapshot and the first event the connection receives.
func (d *Dispatcher) getReservations(ctx context.Context, c Conn, env feed.Envelope) {
	var req reservations.GetReservationsRequest
	if !d.decode(c, env, &req) {
		return
	}
	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		d.snapshotFailed(c, env, reservations.InvalidField("business_id", "must be a UUID"))
		return
	}

	seq := c.Subscribe(businessID)
	list, err := d.snapshots.Load(ctx, businessID, seq)
	if err != nil {
		d.snapshotFailed(c, env, err)
		return
	}

	frame, err := feed.NewEnvelope(feed.EventReservationsData, "", seq, feed.Snapshot{Success: true, Reservations: list})
	if err != nil {
		d.snapshotFailed(c, env, err)
		return
	}
	c.Reply(frame)
	d.ack(c, env, feed.Ack{Success: true})
}

func (d *Dispatcher) snapshotFailed(c Conn, env feed.Envelope, err error) {
	d.logFailure(env, err)
	if frame, ferr := feed.NewEnvelope(feed.EventReservationsError, "", 0, feed.Snapshot{
		Success: false,
		Message: reservations.UserMessage(err),
	}); ferr == nil {
		c.Reply(frame)
	}
	d.ack(c, env, failure(err))
}

func (d *Dispatcher) decode(c Conn, env feed.Envelope, dest interface{}) bool {
	if len(env.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		d.fail(c, env, reservations.NewValidationError(err))
		return false
	}
	return true
}

func (d *Dispatcher) answer(c Conn, env feed.Envelope, res *reservations.Reservation, err error) {
	if err != nil {
		d.fail(c, env, err)
		return
	}
	rec := res.ToRecord()
	d.ack(c, env, feed.Ack{Success: true, Reservation: &rec})
}

// fail acks the error, or pushes it as reservationsError when the client asked for no ack
func (d *Dispatcher) fail(c Conn, env feed.Envelope, err error) {
	d.logFailure(env, err)
	if env.AckID == "" {
		if frame, ferr := feed.NewEnvelope(feed.EventReservationsError, "", 0, feed.Snapshot{
			Success: false,
			Message: reservations.UserMessage(err),
		}); ferr == nil {
			c.Reply(frame)
		}
		return
	}
	d.ack(c, env, failure(err))
}

func (d *Dispatcher) ack(c Conn, env feed.Envelope, ack feed.Ack) {
	if env.AckID == "" {
		return
	}
	frame, err := feed.NewEnvelope(feed.EventAck, env.AckID, 0, ack)
	if err != nil {
		d.log.Error("Failed to encode ack", "event", env.Event, logger.Err(err))
		return
	}
	c.Reply(frame)
}

func (d *Dispatcher) logFailure(env feed.Envelope, err error) {
	code := reservations.ErrorCode(err)
	if code == "internal_error" || errors.Is(err, reservations.ErrStoreUnavailable) {
		d.log.Error("Command failed", "event", env.Event, "code", code, logger.Err(err))
		return
	}
	d.log.Debug("Command rejected", "event", env.Event, "code", code, logger.Err(err))
}

func failure(err error) feed.Ack {
	return feed.Ack{
		Success: false,
		Message: reservations.UserMessage(err),
		Code:    reservations.ErrorCode(err),
	}
}

package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/appointment"
)

// QueueService is the token queue surface exposed to the front desk: look at
// the current and next patient, advance the queue, or skip a no-show.
type QueueService interface {
	CurrentToken(ctx context.Context, doctorID uuid.UUID) (*appointment.Appointment, error)
	NextToken(ctx context.Context, doctorID uuid.UUID) (*appointment.Appointment, error)
	Advance(ctx context.Context, doctorID uuid.UUID) (*appointment.Appointment, error)
	Skip(ctx context.Context, doctorID uuid.UUID) (*appointment.Appointment, error)
}

func currentTokenHandler(q QueueService) http.HandlerFunc {
	return queueLookupHandler(q.CurrentToken)
}

func nextTokenHandler(q QueueService) http.HandlerFunc {
	return queueLookupHandler(q.NextToken)
}

func advanceQueueHandler(q QueueService) http.HandlerFunc {
	return queueLookupHandler(q.Advance)
}

func skipQueueHandler(q QueueService) http.HandlerFunc {
	return queueLookupHandler(q.Skip)
}

// queueLookupHandler adapts the common queue signature: a nil appointment is
// an empty queue, answered with a null body field rather than a 404.
func queueLookupHandler(op func(ctx context.Context, doctorID uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseIDParam(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}

		appt, err := op(r.Context(), doctorID)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		var resp QueueResponse
		if appt != nil {
			a := toAppointmentResponse(appt)
			resp.Appointment = &a
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

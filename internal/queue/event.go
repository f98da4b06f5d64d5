// Package queue defines the notification payloads exchanged over the
// message broker and the consumer that relays them to the bot service.
package queue

import (
    "strconv"
    "time"
)

// Notification event names.
const (
    EventAppointmentCreated = "appointment.created"
    EventAppointmentUpdated = "appointment.updated"
)

// DataAppointmentID is the data key carrying the booking id.
const DataAppointmentID = "appointment_id"

// NotificationEvent is published after a booking write.  It contains
// enough information for the bot relay to build a message without
// querying the primary database.  Targets are bot chat ids.
type NotificationEvent struct {
    Event      string            `json:"event"`
    Targets    []int64           `json:"targets"`
    Data       map[string]string `json:"data"`
    OccurredAt string            `json:"occurred_at"`
}

// NewNotificationEvent stamps an event with the current UTC time.
func NewNotificationEvent(event string, targets []int64, data map[string]string) NotificationEvent {
    return NotificationEvent{
        Event:      event,
        Targets:    targets,
        Data:       data,
        OccurredAt: time.Now().UTC().Format(time.RFC3339),
    }
}

// BotEvent is the body POSTed to <BOT_SERVICE_URL>/event, one per target.
type BotEvent struct {
    Event         string            `json:"event"`
    Data          map[string]string `json:"data"`
    TgID          int64             `json:"tg_id"`
    AppointmentID *uint64           `json:"appointment_id,omitempty"`
}

// Split fans a notification out into one bot request per target.
func (e NotificationEvent) Split() []BotEvent {
    out := make([]BotEvent, 0, len(e.Targets))
    var id *uint64
    if v, err := strconv.ParseUint(e.Data[DataAppointmentID], 10, 64); err == nil {
        id = &v
    }
    for _, t := range e.Targets {
        out = append(out, BotEvent{Event: e.Event, Data: e.Data, TgID: t, AppointmentID: id})
    }
    return out
}

package api

import (
	"github.com/hackgods/clinical-workflow-scheduling/internal/appointment"
	"github.com/hackgods/clinical-workflow-scheduling/internal/availability"
	"github.com/hackgods/clinical-workflow-scheduling/internal/calendar"
	"github.com/hackgods/clinical-workflow-scheduling/internal/identity"
	"github.com/hackgods/clinical-workflow-scheduling/internal/notify"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func listOf[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

type MeResponse struct {
	identity.Profile
	Greeting string `json:"greeting"`
}

type MonthResponse struct {
	Label    string                `json:"label"`
	Weekdays []string              `json:"weekdays"`
	Days     []appointment.DayView `json:"days"`
}

type ScheduleResponse struct {
	Provider    string                  `json:"provider"`
	Date        calendar.DateKey        `json:"date"`
	Slots       []availability.TimeSlot `json:"slots"`
	Available   []availability.TimeSlot `json:"available"`
	FullyBooked bool                    `json:"fully_booked"`
}

type DeclareScheduleRequest struct {
	Slots []availability.TimeSlot `json:"slots"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type AssignRequest struct {
	Technician string `json:"technician"`
}

type ConfirmCollectionRequest struct {
	Volume string `json:"volume"`
}

type GenerateReportRequest struct {
	Results string `json:"results"`
}

type PendingResponse struct {
	TestRequestID string `json:"test_request_id"`
	Action        string `json:"action"`
	State         string `json:"state"`
}

type NotificationsResponse struct {
	Items  []notify.NotificationEvent `json:"items"`
	Unread int                        `json:"unread"`
}

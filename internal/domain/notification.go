package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus values match the persisted smallint column.
type DeliveryStatus int

const (
	StatusQueued     DeliveryStatus = 0
	StatusInProgress DeliveryStatus = 1
	StatusSent       DeliveryStatus = 2
	StatusFailed     DeliveryStatus = 3
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusInProgress:
		return "in_progress"
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

const maxTitleLength = 50

type Notification struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

// DeliveryRecord tracks the outcome of one notification for one device.
// The record set of a notification is fixed at fan-out time; only Status
// (and UpdatedAt) ever change afterwards.
type DeliveryRecord struct {
	ID             int64          `db:"id"`
	NotificationID int64          `db:"notification_id"`
	DeviceID       int64          `db:"device_id"`
	Status         DeliveryStatus `db:"status"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// Device is owned by the external device directory. Only non-expired
// devices are eligible for fan-out.
type Device struct {
	ID      int64  `db:"id"`
	Token   string `db:"token"`
	Expired bool   `db:"expired"`
}

// DeliveryCandidate is one claimed unit of work within a drain run.
type DeliveryCandidate struct {
	DeliveryID     int64  `db:"id"`
	NotificationID int64  `db:"notification_id"`
	Title          string `db:"title"`
	Message        string `db:"message"`
	Token          string `db:"token"`
}

// NotificationDetails aggregates a notification's delivery records by status.
type NotificationDetails struct {
	ID         int64  `db:"id" json:"id"`
	Title      string `db:"title" json:"title"`
	Message    string `db:"message" json:"message"`
	Sent       int64  `db:"sent" json:"sent"`
	Failed     int64  `db:"failed" json:"failed"`
	InProgress int64  `db:"in_progress" json:"in_progress"`
	InQueue    int64  `db:"in_queue" json:"in_queue"`
}

// DrainReport is the per-notification outcome of one drain run.
type DrainReport struct {
	NotificationID int64  `json:"notification_id"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	Sent           int    `json:"sent"`
	Failed         int    `json:"failed"`
}

// StatusTotals counts delivery records by status across all notifications.
type StatusTotals struct {
	InQueue    int64 `db:"in_queue"`
	InProgress int64 `db:"in_progress"`
	Sent       int64 `db:"sent"`
	Failed     int64 `db:"failed"`
}

func NewNotification(title, message string) (*Notification, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}
	if len(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: max %d characters", ErrTitleTooLong, maxTitleLength)
	}
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	return &Notification{
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func ValidateCountryID(countryID int64) error {
	if countryID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCountry, countryID)
	}
	return nil
}

// Terminal reports whether a status admits no further transition.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// CanTransition enforces the one-directional status machine
// queued -> in_progress -> {sent, failed}.
func (s DeliveryStatus) CanTransition(to DeliveryStatus) bool {
	switch s {
	case StatusQueued:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusSent || to == StatusFailed
	default:
		return false
	}
}

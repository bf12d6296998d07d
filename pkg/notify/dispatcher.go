// Package notify defines the outbound notification contract consumed by the
// repayment lifecycle sweep. The engine is agnostic to transport; email,
// in-app and websocket delivery all live behind Dispatcher.
package notify

import (
	"context"
	"log"
)

// Audience identifies who a notification is addressed to. Resolving the
// audience to concrete addresses is the dispatcher's concern.
type Audience string

const (
	AudienceBorrowers   Audience = "borrowers"
	AudienceBusinessDev Audience = "bd"
)

// Notification is a fully-formed notification request.
type Notification struct {
	Audience      Audience `json:"audience"`
	Title         string   `json:"title"`
	Message       string   `json:"message"`
	ApplicationID string   `json:"application_id"`
}

// Dispatcher delivers notifications. Implementations may block on network
// I/O; callers must not hold locks across Send.
type Dispatcher interface {
	Send(ctx context.Context, n Notification) error
}

// LogDispatcher writes notifications to the process log. It is the default
// wiring when no real transport is configured.
type LogDispatcher struct{}

func (LogDispatcher) Send(_ context.Context, n Notification) error {
	log.Printf("[notify] %s -> %s (application %s)", n.Title, n.Audience, n.ApplicationID)
	return nil
}

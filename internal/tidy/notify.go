package tidy

import "context"

// Trigger is the reason a scan was requested.
type Trigger string

const (
	TriggerAppLaunch         Trigger = "appLaunch"
	TriggerScheduled         Trigger = "scheduled"
	TriggerManual            Trigger = "manual"
	TriggerThresholdExceeded Trigger = "thresholdExceeded"
	TriggerFolderChanged     Trigger = "folderChanged"
)

// NotificationKind groups notifications for throttling.
type NotificationKind string

const (
	NotificationBacklogReminder NotificationKind = "backlogReminder"
	NotificationError           NotificationKind = "error"
	NotificationFilesOrganized  NotificationKind = "filesOrganized"
)

// Notification is a user-visible message the scheduler decided to emit.
type Notification struct {
	Kind NotificationKind

	// ErrorKind is set for NotificationError.
	ErrorKind ErrorKind

	// Identifier is stable per kind (and per error kind) and used for deduplication.
	Identifier string
	Title      string
	Body       string
}

// NotificationSink delivers notifications. Deciding whether to notify is the
// scheduler's job; sinks deliver everything they are given.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

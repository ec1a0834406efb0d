package scheduler

import "time"

const (
	scheduleStreamName    = "SCHEDULES"
	scheduleCreateSubject = "schedule.create"
	scheduleToggleSubject = "schedule.toggle"
	scheduleRemoveSubject = "schedule.remove"

	streamMaxAge  = 24 * time.Hour
	streamMaxMsgs = -1

	defaultSweepInterval = time.Minute
)

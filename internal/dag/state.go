package dag

// TaskState is the runtime execution state of an instance.
//
// This is intentionally separated from TaskGraph, which is immutable.
//
//	PENDING, RUNNING, COMPLETED, FAILED, SKIPPED, UP_TO_DATE
type TaskState string

const (
	TaskPending   TaskState = "PENDING"
	TaskRunning   TaskState = "RUNNING"
	TaskCompleted TaskState = "COMPLETED"
	TaskFailed    TaskState = "FAILED"
	TaskSkipped   TaskState = "SKIPPED"
	TaskUpToDate  TaskState = "UP_TO_DATE"
)

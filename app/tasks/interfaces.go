package tasks

// TaskSchedulerInterface defines the interface for task scheduling
// operations. Used by the main application to manage background feed
// pulling.
type TaskSchedulerInterface interface {
	Start() error
	Stop()
	EnqueueTask(task TaskInterface) error
}

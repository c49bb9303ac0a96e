package core

// RunStore records the history of query runs.
type RunStore interface {
	Open(path string) error
	Close() error
	InitSchema() error

	CreateRun(d QueryDescriptor) (*QueryRun, error)
	CompleteRun(id string, c Completion) error
	GetRun(id string) (*QueryRun, error)
	ListRuns(limit int) ([]*QueryRun, error)
	GetLatestRun() (*QueryRun, error)
	GetLatestRunForTable(ref TableRef) (*QueryRun, error)
}

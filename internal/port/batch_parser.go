package port

import "context"

// FileInput is one file to submit for document parsing.
type FileInput struct {
	Name string
	Data []byte
}

// FileState is the per-file state reported by the parsing service.
type FileState string

const (
	StatePending FileState = "pending"
	StateRunning FileState = "running"
	StateDone    FileState = "done"
	StateFailed  FileState = "failed"
)

// IsTerminal reports whether no further state change can occur for this
// state. Any label other than done/failed is treated as transient, so
// unrecognized remote states keep the poller waiting instead of being
// misread as terminal.
func (s FileState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// BatchFile pairs a submitted file name with its assigned upload slot.
type BatchFile struct {
	Name      string
	UploadURL string
}

// Batch identifies a group of files submitted together to the parsing
// service. It is immutable after submission; the slot order matches the
// submission order.
type Batch struct {
	ID    string
	Files []BatchFile
}

// FileStatus is the status of one file within a batch. ZipURL is set
// only when State is done; ErrMsg only when State is failed.
type FileStatus struct {
	FileName string
	State    FileState
	ZipURL   string
	ErrMsg   string
}

// BatchParser abstracts the asynchronous document-parsing service.
//
// Poll blocks until every file in the batch reaches a terminal state or
// the configured timeout elapses. On timeout it returns the statuses
// gathered so far together with the timeout error, so callers can keep
// the outcomes of files that already completed.
type BatchParser interface {
	Submit(ctx context.Context, files []FileInput) (*Batch, error)
	Poll(ctx context.Context, batch *Batch) (map[string]FileStatus, error)
	Fetch(ctx context.Context, status FileStatus) ([]byte, error)
}

package event

import "time"

// SnapshotSaved is emitted after a world snapshot reached its store.
type SnapshotSaved struct {
	World    string
	Name     string
	Bytes    int
	Checksum string
	Took     time.Duration
}

// SnapshotFailed is emitted when writing or storing a snapshot failed.
type SnapshotFailed struct {
	World string
	Name  string
	Err   error
}

// InstantiationFinished is emitted once a scene or snapshot has been fully
// instantiated into a world, or was cancelled.
type InstantiationFinished struct {
	World     string
	Source    string
	Roots     int
	Children  int
	Cancelled bool
}

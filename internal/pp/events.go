package pp

import "time"

// EventType identifies a pipeline lifecycle event.
type EventType string

const (
	EventScanStarted      EventType = "scan_started"
	EventScanComplete     EventType = "scan_complete"
	EventFileDiscovered   EventType = "file_discovered"
	EventChecksumComplete EventType = "checksum_complete"
	EventChecksumFailed   EventType = "checksum_failed"
	EventPartitionDropped EventType = "partition_dropped"
	EventError            EventType = "error"
)

// Event is a fire-and-forget lifecycle notification. No core logic depends
// on a sink observing it.
type Event struct {
	Type     EventType
	Time     time.Time
	PathID   int64
	Filepath string
	Message  string
	Details  map[string]any
}

// EventSink receives pipeline lifecycle events.
type EventSink interface {
	Emit(e Event)
}

// NopSink discards all events. Use in tests or when no observer is configured.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// LogSink forwards events to a Logger at info level.
type LogSink struct {
	Logger Logger
}

func (s LogSink) Emit(e Event) {
	args := []any{"type", string(e.Type)}
	if e.PathID != 0 {
		args = append(args, "path_id", e.PathID)
	}
	if e.Filepath != "" {
		args = append(args, "filepath", e.Filepath)
	}
	for k, v := range e.Details {
		args = append(args, k, v)
	}
	s.Logger.Info(e.Message, args...)
}

package transfer

import (
	"fmt"
	"log/slog"
)

// State is the position of one attachment in the transfer lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateSkipped
	StateDownloaded
	StateUploaded
	StateUploadFailed
	StateTrackedSuccess
	StateTrackedFailure
	StateTrackedException
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateSkipped:
		return "skipped"
	case StateDownloaded:
		return "downloaded"
	case StateUploaded:
		return "uploaded"
	case StateUploadFailed:
		return "upload-failed"
	case StateTrackedSuccess:
		return "tracked-success"
	case StateTrackedFailure:
		return "tracked-failure"
	case StateTrackedException:
		return "tracked-exception"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats holds statistics about a transfer run.
type Stats struct {
	Total     int
	Skipped   int
	Succeeded int
	Failed    int
	Errored   int
}

// Add counts one final state.
func (s *Stats) Add(state State) {
	s.Total++
	switch state {
	case StateSkipped:
		s.Skipped++
	case StateTrackedSuccess:
		s.Succeeded++
	case StateTrackedFailure:
		s.Failed++
	default:
		s.Errored++
	}
}

// Log prints the final statistics to the provided logger.
func (s *Stats) Log(logger *slog.Logger) {
	logger.Info("--- Transfer Stats ---")
	logger.Info(fmt.Sprintf("Files found: %d", s.Total))
	logger.Info(fmt.Sprintf("Already transferred: %d", s.Skipped))
	logger.Info(fmt.Sprintf("Uploaded: %d", s.Succeeded))
	logger.Info(fmt.Sprintf("Rejected by DMS: %d", s.Failed))
	logger.Info(fmt.Sprintf("Exceptions: %d", s.Errored))
	logger.Info("----------------------")
}

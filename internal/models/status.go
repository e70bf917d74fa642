package models

import (
	"fmt"
	"strings"
)

// Status is the single status vocabulary shared by tasks, stored records and the wire format.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusMerged      Status = "merged"
	StatusComplete    Status = "complete!"
	StatusCanceled    Status = "canceled"
	StatusError       Status = "error"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusDownloading, StatusMerged, StatusComplete, StatusCanceled, StatusError:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether a task in this status accepts no further updates.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusCanceled, StatusError:
		return true
	default:
		return false
	}
}

// IsActive reports whether the task is still doing work.
func (s Status) IsActive() bool {
	return s.IsValid() && !s.IsTerminal()
}

// CanTransitionTo reports whether the task state machine allows moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusQueued:
		switch next {
		case StatusDownloading, StatusComplete, StatusCanceled, StatusError:
			return true
		}
	case StatusDownloading:
		switch next {
		case StatusDownloading, StatusMerged, StatusComplete, StatusCanceled, StatusError:
			return true
		}
	case StatusMerged:
		switch next {
		case StatusComplete, StatusCanceled, StatusError:
			return true
		}
	}
	return false
}

// MergedPolicy decides whether MERGED ends a progress stream.
type MergedPolicy string

const (
	// MergedNonTerminal keeps streams polling through MERGED until COMPLETE.
	MergedNonTerminal MergedPolicy = "non-terminal"
	// MergedTerminal ends streams at MERGED.
	MergedTerminal MergedPolicy = "terminal"
)

func ParseMergedPolicy(s string) (MergedPolicy, error) {
	switch MergedPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case MergedNonTerminal, "":
		return MergedNonTerminal, nil
	case MergedTerminal:
		return MergedTerminal, nil
	default:
		return "", fmt.Errorf("unknown merged policy %q (want %q or %q)", s, MergedNonTerminal, MergedTerminal)
	}
}

// StreamDone reports whether a progress stream should emit its final snapshot for status s.
func (p MergedPolicy) StreamDone(s Status) bool {
	if s == StatusMerged {
		return p == MergedTerminal
	}
	return s.IsTerminal()
}

// SyncDone reports whether the persistence loop should make its final write for status s.
func (MergedPolicy) SyncDone(s Status) bool {
	return s == StatusMerged || s.IsTerminal()
}

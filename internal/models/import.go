package models

import "time"

// MaxRecordedSkips caps how many skipped lines an ImportSummary keeps verbatim.
// Counts in Skipped and Reasons are always complete.
const MaxRecordedSkips = 100

type SkippedLine struct {
	LineNumber int    `json:"lineNumber"`
	Line       string `json:"line"`
	Reason     string `json:"reason"`
}

type ImportSummary struct {
	RunID         string         `json:"runId"`
	Source        string         `json:"source"`
	Imported      int            `json:"imported"`
	Skipped       int            `json:"skipped"`
	Batches       int            `json:"batches"`
	MissingFields int            `json:"missingFields"`
	Reasons       map[string]int `json:"reasons"`
	Skips         []SkippedLine  `json:"skips"`
	StartedAt     time.Time      `json:"startedAt"`
	FinishedAt    time.Time      `json:"finishedAt"`
	Error         string         `json:"error,omitempty"`
}

// RecordSkip counts a skipped line and keeps its content while under the cap.
func (s *ImportSummary) RecordSkip(lineNumber int, line, reason string) {
	s.Skipped++
	if s.Reasons == nil {
		s.Reasons = make(map[string]int)
	}
	s.Reasons[reason]++
	if len(s.Skips) < MaxRecordedSkips {
		s.Skips = append(s.Skips, SkippedLine{LineNumber: lineNumber, Line: line, Reason: reason})
	}
}

func (s *ImportSummary) Failed() bool {
	return s.Error != ""
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardproto

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks frame and command counters and rates.
// All methods are safe for concurrent use; read fields through Snapshot.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Frames
	TotalFrames   uint64
	ValidFrames   uint64
	DecodeErrors  uint64
	GarbledReads  uint64
	AnomalousIDs  uint64
	OtherAnomaly  uint64
	PayloadFrames uint64

	// Commands
	CommandsSent     uint64
	Acknowledged     uint64
	Rejected         uint64
	Completed        uint64
	Timeouts         uint64
	ProtocolFailures uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a frame and its errors
func (s *Statistics) Update(frame *Frame, decodeErr error, validationErrors []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		s.DecodeErrors++
		return
	}

	if len(validationErrors) > 0 {
		for _, err := range validationErrors {
			switch err.Type {
			case AnomalyIDOutOfRange, AnomalyIDMismatch, AnomalyStaleID:
				s.AnomalousIDs++
			default:
				s.OtherAnomaly++
			}
		}
		return
	}

	s.ValidFrames++
	if frame != nil && !frame.Status.IsControl() {
		s.PayloadFrames++
	}
}

// RecordGarbledRead counts a byte batch that could not be read as text
func (s *Statistics) RecordGarbledRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GarbledReads++
	s.LastUpdateTime = time.Now()
}

// RecordSent counts a command written to the transport
func (s *Statistics) RecordSent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CommandsSent++
	s.LastUpdateTime = time.Now()
}

// RecordAck counts an acknowledged command
func (s *Statistics) RecordAck() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Acknowledged++
}

// RecordRejected counts a command the device has no function for
func (s *Statistics) RecordRejected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rejected++
}

// RecordCompleted counts a command that reported status 0
func (s *Statistics) RecordCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Completed++
}

// RecordTimeout counts a command that received no frames at all
func (s *Statistics) RecordTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Timeouts++
}

// RecordProtocolFailure counts a response batch with no control frame
func (s *Statistics) RecordProtocolFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProtocolFailures++
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() *Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return &Statistics{
		StartTime:        s.StartTime,
		LastUpdateTime:   s.LastUpdateTime,
		TotalFrames:      s.TotalFrames,
		ValidFrames:      s.ValidFrames,
		DecodeErrors:     s.DecodeErrors,
		GarbledReads:     s.GarbledReads,
		AnomalousIDs:     s.AnomalousIDs,
		OtherAnomaly:     s.OtherAnomaly,
		PayloadFrames:    s.PayloadFrames,
		CommandsSent:     s.CommandsSent,
		Acknowledged:     s.Acknowledged,
		Rejected:         s.Rejected,
		Completed:        s.Completed,
		Timeouts:         s.Timeouts,
		ProtocolFailures: s.ProtocolFailures,
		FrameRate:        s.FrameRate,
		ErrorRate:        s.ErrorRate,
	}
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		errorCount := s.DecodeErrors + s.GarbledReads + s.AnomalousIDs + s.OtherAnomaly
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var validPercent float64
	if snap.TotalFrames > 0 {
		validPercent = float64(snap.ValidFrames) * 100.0 / float64(snap.TotalFrames)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", snap.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", snap.ValidFrames, validPercent)

	if snap.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", snap.DecodeErrors)
	}
	if snap.GarbledReads > 0 {
		result += fmt.Sprintf("Garbled Reads:   %8d\n", snap.GarbledReads)
	}
	if snap.AnomalousIDs > 0 {
		result += fmt.Sprintf("Anomalous IDs:   %8d\n", snap.AnomalousIDs)
	}

	if snap.CommandsSent > 0 {
		result += fmt.Sprintf("Commands Sent:   %8d\n", snap.CommandsSent)
		result += fmt.Sprintf("  Acknowledged:     %5d\n", snap.Acknowledged)
		result += fmt.Sprintf("  Completed:        %5d\n", snap.Completed)
		if snap.Rejected > 0 {
			result += fmt.Sprintf("  Rejected:         %5d\n", snap.Rejected)
		}
		if snap.Timeouts > 0 {
			result += fmt.Sprintf("  Timed Out:        %5d\n", snap.Timeouts)
		}
		if snap.ProtocolFailures > 0 {
			result += fmt.Sprintf("  No Ack:           %5d\n", snap.ProtocolFailures)
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", snap.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalFrames = 0
	s.ValidFrames = 0
	s.DecodeErrors = 0
	s.GarbledReads = 0
	s.AnomalousIDs = 0
	s.OtherAnomaly = 0
	s.PayloadFrames = 0
	s.CommandsSent = 0
	s.Acknowledged = 0
	s.Rejected = 0
	s.Completed = 0
	s.Timeouts = 0
	s.ProtocolFailures = 0
	s.FrameRate = 0
	s.ErrorRate = 0
}

package domain

import (
	"sort"
	"strings"
)

// SecurityLevel summarises the blocklist state for the operator header.
type SecurityLevel string

const (
	SecurityNormal   SecurityLevel = "NORMAL"
	SecurityCritical SecurityLevel = "CRITICAL"
)

// Snapshot is one complete, self-consistent report from the authority. It
// replaces the previous snapshot wholesale.
//
// Logs are ordered newest-first, which is the order the authority emits them.
type Snapshot struct {
	TotalRequests    int64
	BlockedCount     int
	DetectedBotCount int
	Logs             []EventRecord
	Detections       []DetectionRecord
	BlockedAddresses []string
	// Sequence is the request sequence the snapshot answered, when known.
	Sequence uint64
}

// Clone returns a deep copy so callers can never write through to the owner.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Logs = make([]EventRecord, len(s.Logs))
	for i, rec := range s.Logs {
		if rec.Geo != nil {
			geo := *rec.Geo
			rec.Geo = &geo
		}
		out.Logs[i] = rec
	}
	out.Detections = append([]DetectionRecord{}, s.Detections...)
	out.BlockedAddresses = append([]string{}, s.BlockedAddresses...)
	return out
}

// IsBlocked reports whether the authority currently blocks address.
func (s Snapshot) IsBlocked(address string) bool {
	for _, blocked := range s.BlockedAddresses {
		if blocked == address {
			return true
		}
	}
	return false
}

// MeanMLScore averages ml_score across the logs; zero when there are none.
func (s Snapshot) MeanMLScore() float64 {
	if len(s.Logs) == 0 {
		return 0
	}
	var sum float64
	for _, rec := range s.Logs {
		sum += rec.MLScore
	}
	return sum / float64(len(s.Logs))
}

// SecurityLevel is CRITICAL whenever the authority holds at least one block.
func (s Snapshot) SecurityLevel() SecurityLevel {
	if s.BlockedCount > 0 || len(s.BlockedAddresses) > 0 {
		return SecurityCritical
	}
	return SecurityNormal
}

// NormalizeBlocklist trims, de-duplicates and sorts addresses.
func NormalizeBlocklist(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainRow   = "fleetsync/row/v1"
	DomainEvent = "fleetsync/event/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RowHash computes the content hash the scanner stores per row.
// Only the given columns participate; columns missing from the row hash as
// null so that a NULL column and an absent one are indistinguishable.
func RowHash(table string, columns []string, row Row) (string, error) {
	obj := make(map[string]any, len(columns))
	for _, c := range columns {
		obj[c] = row[c]
	}
	canonical, err := MarshalCanonical(map[string]any{
		"table": table,
		"row":   obj,
	})
	if err != nil {
		return "", fmt.Errorf("RowHash: failed to marshal %s: %w", table, err)
	}
	return hashWithDomain(DomainRow, canonical), nil
}

// EventFingerprint hashes everything about an event except created_at.
// Two deliveries of the same event_id must carry the same fingerprint;
// a mismatch means the ID was reused for different content.
func EventFingerprint(e ClusterEvent) (string, error) {
	var payload any
	if e.Payload != nil {
		payload = map[string]any(e.Payload)
	}
	canonical, err := MarshalCanonical(map[string]any{
		"event_id":      e.EventID,
		"table_name":    e.TableName,
		"row_id":        e.RowID,
		"op":            string(e.Op),
		"payload":       payload,
		"logical_ts":    strconv.FormatInt(e.Version.LogicalTS, 10),
		"actor_id":      e.Version.ActorID,
		"actor_counter": strconv.FormatInt(e.Version.ActorCounter, 10),
	})
	if err != nil {
		return "", fmt.Errorf("EventFingerprint: failed to marshal %s: %w", e.EventID, err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustRowHash is like RowHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRowHash(table string, columns []string, row Row) string {
	h, err := RowHash(table, columns, row)
	if err != nil {
		panic(err)
	}
	return h
}

package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future algorithm migration.
const (
	DomainFused  = "fusion/fused/v1"
	DomainMerged = "fusion/merged/v1"
	DomainConfig = "fusion/config/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FusedOutputID computes the id of a fusion decision from the rule that made
// it, the ids of the fused inputs in order, and the decision sequence number.
// ruleID is "" for default fusion and pass-through decisions.
func FusedOutputID(ruleID string, inputIDs []string, seq int64) (string, error) {
	obj := IRObject{
		"rule":   IRString(ruleID),
		"inputs": Strings(inputIDs...),
		"seq":    IRInt(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("FusedOutputID: %w", err)
	}
	return "fused_" + hashWithDomain(DomainFused, canonical), nil
}

// MergedInputID computes the id of a synthetic input produced by merging
// conflicting inputs.
func MergedInputID(inputIDs []string, seq int64) (string, error) {
	obj := IRObject{
		"inputs": Strings(inputIDs...),
		"seq":    IRInt(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("MergedInputID: %w", err)
	}
	return "merged_" + hashWithDomain(DomainMerged, canonical), nil
}

// ConfigHash fingerprints a configuration rendered as IR. Sessions record it
// so archived inputs can be checked against the config they ran under.
func ConfigHash(cfg IRObject) (string, error) {
	canonical, err := MarshalCanonical(cfg)
	if err != nil {
		return "", fmt.Errorf("ConfigHash: %w", err)
	}
	return hashWithDomain(DomainConfig, canonical), nil
}

// MustFusedOutputID is FusedOutputID for inputs known to be valid.
// Panics on error; intended for tests and fusers building ids from strings.
func MustFusedOutputID(ruleID string, inputIDs []string, seq int64) string {
	id, err := FusedOutputID(ruleID, inputIDs, seq)
	if err != nil {
		panic(err)
	}
	return id
}

// InputIDs returns the ids of events in order.
func InputIDs(events []InputEvent) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainExecution is the domain prefix for execution content hashes.
// The version suffix allows the framing to change without ID collisions.
const DomainExecution = "ifuzz/execution/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ExecutionID computes the content-addressed ID of an execution from its
// serialized form. Two executions with equal calls share an ID regardless
// of their validity marker. The input is not modified.
func ExecutionID(spec ExecutionSpec) (string, error) {
	data, err := Serialize(&spec)
	if err != nil {
		return "", fmt.Errorf("ExecutionID: %w", err)
	}
	return hashWithDomain(DomainExecution, data), nil
}

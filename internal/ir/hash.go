package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Domain prefixes for content-addressed record identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainCall    = "setcode/call/v1"
	DomainReceipt = "setcode/receipt/v1"
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

// CallID computes the content-addressed ID of a call.
// The caller is excluded: the ID names what was asked, not who asked.
func CallID(instanceID, message string, args Object, seq int64) (string, error) {
	if args == nil {
		args = Object{}
	}
	canonical, err := MarshalCanonical(Object{
		"instance_id": String(instanceID),
		"message":     String(message),
		"args":        args,
		"seq":         Int(seq),
	})
	if err != nil {
		return "", fmt.Errorf("CallID: %w", err)
	}
	return hashWithDomain(DomainCall, canonical), nil
}

// ReceiptID computes the content-addressed ID of a receipt.
func ReceiptID(callID, outcome string, result Object, codeHash CodeHash, seq int64) (string, error) {
	if result == nil {
		result = Object{}
	}
	canonical, err := MarshalCanonical(Object{
		"call_id":   String(callID),
		"outcome":   String(outcome),
		"result":    result,
		"code_hash": String(codeHash.String()),
		"seq":       Int(seq),
	})
	if err != nil {
		return "", fmt.Errorf("ReceiptID: %w", err)
	}
	return hashWithDomain(DomainReceipt, canonical), nil
}

// MustCallID is like CallID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCallID(instanceID, message string, args Object, seq int64) string {
	id, err := CallID(instanceID, message, args, seq)
	if err != nil {
		panic(err)
	}
	return id
}

// ProgramKey formats the catalog key "name@version".
func ProgramKey(name string, version int64) string {
	return name + "@" + strconv.FormatInt(version, 10)
}

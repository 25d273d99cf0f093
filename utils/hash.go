// Package utils provides small helpers shared by the packages of finch.
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hash returns the hash of the object. Map keys are sorted, so equal maps hash equally.
func Hash(o any) string {
	hash := sha256.New()
	if err := json.NewEncoder(hash).Encode(o); err != nil {
		panic(err)
	}
	return hex.EncodeToString(hash.Sum(nil))
}

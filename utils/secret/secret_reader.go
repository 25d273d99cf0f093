// Package secret provides a way to read upstream credentials.
package secret

import (
	"errors"
	"os"
	"strings"
)

var (
	// ErrInvalidSecret is returned when the secret is invalid.
	ErrInvalidSecret = errors.New("invalid secret")
)

// Reader is a secret reader from a file.
type Reader struct {
	FilePath string
}

// NewReader creates a new secret reader.
func NewReader(filePath string) *Reader {
	return &Reader{
		FilePath: filePath,
	}
}

// Read reads the token from the file. Surrounding whitespace is ignored.
func (s *Reader) Read() (token string, err error) {
	b, err := os.ReadFile(s.FilePath)
	if err != nil {
		return "", err
	}
	token = strings.TrimSpace(string(b))
	if token == "" || strings.ContainsAny(token, "\r\n") {
		return "", ErrInvalidSecret
	}
	return token, nil
}

// TokenFromEnv is a token reader from the environment.
type TokenFromEnv struct {
	Name string
}

// Read returns the token from the environment.
func (e TokenFromEnv) Read() (string, error) {
	token := os.Getenv(e.Name)
	if token == "" {
		return "", ErrInvalidSecret
	}
	return token, nil
}

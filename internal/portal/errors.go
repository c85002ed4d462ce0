package portal

import (
	"errors"
	"strings"
)

var (
	ErrNoProvider        = errors.New("no wallet provider found")
	ErrUserRejected      = errors.New("user rejected the request")
	ErrEmptyMessage      = errors.New("wave message is empty")
	ErrRemoteRead        = errors.New("remote read failed")
	ErrRemoteWrite       = errors.New("remote write failed")
	ErrTransactionFailed = errors.New("transaction failed")
)

// ValidateMessage returns ErrEmptyMessage when msg has no visible content.
func ValidateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return ErrEmptyMessage
	}
	return nil
}

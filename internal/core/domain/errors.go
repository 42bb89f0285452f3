package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTool            = errors.New("unknown tool")
	ErrToolExecution          = errors.New("tool execution failure")
	ErrToolTimeout            = errors.New("tool timeout")
	ErrModalityUnavailable    = errors.New("modality unavailable")
	ErrMalformedModelResponse = errors.New("malformed model response")
	ErrModelProvider          = errors.New("model provider failure")
	ErrConversationNotFound   = errors.New("conversation not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrTemporary              = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

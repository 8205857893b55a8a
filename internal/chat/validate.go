package chat

import (
	"errors"
	"fmt"
)

// Validate checks roles, history length and temperature. An empty history
// is allowed; the model then only sees the system prompt.
func (r Request) Validate() error {
	var errs []error
	if len(r.Messages) > MaxMessages {
		errs = append(errs, fmt.Errorf("too many messages: %d (max %d)", len(r.Messages), MaxMessages))
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			errs = append(errs, fmt.Errorf("message %d: invalid role %q", i, m.Role))
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		errs = append(errs, fmt.Errorf("temperature must be between 0 and 2, got %.2f", *r.Temperature))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

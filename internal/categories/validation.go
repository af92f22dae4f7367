package categories

import (
	"fmt"
	"strings"
)

func validate(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(trimmed) > 100 {
		return fmt.Errorf("%w: name too long", ErrValidation)
	}
	return nil
}

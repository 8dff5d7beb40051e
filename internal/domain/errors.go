package domain

import "errors"

// ErrValidation marks malformed coordinate or array payloads. It is re-exported
// by the repository package together with the rest of the store error taxonomy.
var ErrValidation = errors.New("validation failed")

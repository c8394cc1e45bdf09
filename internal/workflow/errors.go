package workflow

import "errors"

// ErrIntrusionDisabled is returned for sensor input when the intrusion path
// is turned off.
var ErrIntrusionDisabled = errors.New("intrusion detection disabled")

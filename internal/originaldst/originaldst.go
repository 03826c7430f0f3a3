package originaldst

import "errors"

// ErrUnsupported is returned by Get on platforms (or connection types)
// that cannot report a pre-NAT original destination.
var ErrUnsupported = errors.New("originaldst: not supported on this platform/connection")

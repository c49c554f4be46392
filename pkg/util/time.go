package util

import "time"

// Now returns the current UTC time at microsecond precision, which
// is what postgres keeps, so stored and returned values compare equal
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

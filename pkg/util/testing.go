package util

import "flag"

// IsTestMode reports whether the binary is running under `go test`
func IsTestMode() bool {
	return flag.Lookup("test.v") != nil
}

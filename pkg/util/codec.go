package util

import jsoniter "github.com/json-iterator/go"

// JSON is the shared codec for stored values and API payloads
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// RawJSON is an undecoded JSON value
type RawJSON = jsoniter.RawMessage

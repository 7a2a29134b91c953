package client

import (
	"runtime"
	"strings"
)

// Version is the SDK version reported in the User-Agent header.
const Version = "0.1.0"

const sdkName = "oilpriceapi-go"

// userAgent formats "<sdk>/<version> go/<runtime version>[ suffix]".
func userAgent(suffix string) string {
	ua := sdkName + "/" + Version + " go/" + strings.TrimPrefix(runtime.Version(), "go")
	if suffix = strings.TrimSpace(suffix); suffix != "" {
		ua += " " + suffix
	}
	return ua
}

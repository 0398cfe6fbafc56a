package artifacts

import "strings"

// DefaultGatewayBase is the public retrieval endpoint prepended to
// content identifiers when building shareable certificate links.
const DefaultGatewayBase = "https://gateway.graintrace.io/artifacts/"

// GatewayURL builds the public retrieval URL for a content identifier.
// An empty base falls back to DefaultGatewayBase.
func GatewayURL(base, id string) string {
	if base == "" {
		base = DefaultGatewayBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(id, "sha256:")
}

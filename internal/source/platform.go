// Package source routes arbitrage fulfillment to the platform the listing is
// actually sourced from, either by calling the platform's API or by queuing a
// task for a human operator.
package source

// Platform is the closed set of source platforms the engine understands.
// Anything else is treated as PlatformGeneric, which attempts a direct API
// call and degrades to manual fulfillment.
type Platform string

const (
	PlatformRapidAPI    Platform = "rapidapi"
	PlatformHuggingFace Platform = "huggingface"
	PlatformGitHub      Platform = "github"
	PlatformFiverr      Platform = "fiverr"
	PlatformUpwork      Platform = "upwork"
	PlatformGeneric     Platform = "generic"
)

// ParsePlatform maps a listing's source_platform string to a known platform.
// Unknown values fall back to PlatformGeneric rather than failing: automation
// is attempted opportunistically and manual queuing is the safety net.
func ParsePlatform(s string) Platform {
	switch Platform(s) {
	case PlatformRapidAPI, PlatformHuggingFace, PlatformGitHub, PlatformFiverr, PlatformUpwork:
		return Platform(s)
	default:
		return PlatformGeneric
	}
}

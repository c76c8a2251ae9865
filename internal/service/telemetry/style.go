package telemetry

import "github.com/harishsairam-ops/DDoS-Hackathon/internal/domain"

var (
	styleHigh   = domain.Style{Class: "threat-high", Color: "#ff003c", Priority: 2}
	styleMedium = domain.Style{Class: "threat-medium", Color: "#ff9f1c", Priority: 1}
	styleLow    = domain.Style{Class: "threat-low", Color: "#00f3ff", Priority: 0}
)

// StyleFor maps a threat level to its render style. Unknown levels render as LOW.
func StyleFor(level domain.ThreatLevel) domain.Style {
	switch level {
	case domain.ThreatHigh:
		return styleHigh
	case domain.ThreatMedium:
		return styleMedium
	default:
		return styleLow
	}
}

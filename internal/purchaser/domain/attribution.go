package domain

// AttributionNetwork identifies a supported attribution provider by its
// server-side value.
type AttributionNetwork int

const (
	// AttributionAdjust is https://www.adjust.com.
	AttributionAdjust AttributionNetwork = 1
	// AttributionAppsFlyer is https://www.appsflyer.com.
	AttributionAppsFlyer AttributionNetwork = 2
	// AttributionBranch is https://branch.io.
	AttributionBranch AttributionNetwork = 3
)

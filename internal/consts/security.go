package consts

// ResolutionPolicy decides what happens to a request whose hostname could not
// be resolved while checking egress.
type ResolutionPolicy string

const (
	ResolutionFailOpen   ResolutionPolicy = "open"
	ResolutionFailClosed ResolutionPolicy = "closed"
)

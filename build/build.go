package build

// Set via -ldflags "-X github.com/dutchcoders/log4shell-scanner/build.ReleaseTag=..."
var (
	ReleaseTag = "0.0.0"
	BuildDate  = "unknown"
	CommitID   = "unknown"
)

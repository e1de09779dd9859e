package version

// Version is the build version, overridden via -ldflags at release time.
var Version = "0.3.0-dev"

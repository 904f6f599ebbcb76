package version

// Version is overridable at build time via -ldflags "-X gravitext/internal/version.Version=...".
var Version = "0.2.0"

func String() string { return Version }

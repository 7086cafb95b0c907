package utils

// Version is the imprint build version, overridden at link time via
// -ldflags "-X github.com/soulprintco/imprint/pkg/utils.Version=...".
var Version = "dev"

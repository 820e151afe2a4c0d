package types

// ServiceName is used for logging and the status endpoint
const ServiceName = "hauler"

// Version is the application version, overridable via -ldflags at build time
var Version = "0.1.0"

package app

// Version is the application version, overridable at build time via
// -ldflags "-X github.com/billcraft/billcraft/internal/app.Version=v1.2.3".
var Version = "dev"

package version

// Version is the current version of batchtune.
// Can be overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "0.4.0"

// Name is the application name.
const Name = "batchtune"

// Description is a short description of the application.
const Description = "Chunked transfer with adaptive batch size tuning"

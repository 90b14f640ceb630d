package entityqueue

// Version is set at build time via -ldflags "-X github.com/kapetan-io/entityqueue.Version=..."
var Version = "dev-build"

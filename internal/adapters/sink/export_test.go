package sink

// Test hooks.
var (
	WithWriter   = withWriter
	WithUploader = withUploader
)

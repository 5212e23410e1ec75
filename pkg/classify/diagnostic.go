package classify

// Diagnostic codes recorded during a tree walk.
const (
	CodeUnreadableFile = "unreadable_file"
	CodeUnreadableDir  = "unreadable_dir"
	CodeFileTooLarge   = "file_too_large"
	CodeBinaryFile     = "binary_file"
)

// Diagnostic describes a file or directory the walk had to skip. Skipped
// entries never abort a classification.
type Diagnostic struct {
	// Code is a machine-readable identifier such as "unreadable_file".
	Code string `json:"code"    yaml:"code"`
	// Path is the offending file or directory.
	Path string `json:"path"    yaml:"path"`
	// Message is the human-readable description.
	Message string `json:"message" yaml:"message"`
	// Cause is the underlying error, when there is one.
	Cause error `json:"-"       yaml:"-"`
}

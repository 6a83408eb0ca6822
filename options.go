package diskkit

// Option represents a per-operation option passed to adapters
type Option func(*Options)

// Options contains all possible options for file operations
type Options struct {
	// ContentType specifies the MIME type of the file
	ContentType string

	// Metadata contains additional metadata for the file
	Metadata map[string]string

	// Visibility defines the file visibility (public or private)
	Visibility Visibility

	// Overwrite allows Move to replace an existing destination
	Overwrite bool
}

// Visibility represents file visibility
type Visibility string

const (
	// Private means the file is only accessible by authenticated users
	Private Visibility = "private"

	// Public means the file is publicly accessible
	Public Visibility = "public"
)

// WithContentType sets the content type of the file
func WithContentType(contentType string) Option {
	return func(o *Options) {
		o.ContentType = contentType
	}
}

// WithMetadata sets additional metadata for the file
func WithMetadata(metadata map[string]string) Option {
	return func(o *Options) {
		o.Metadata = metadata
	}
}

// WithVisibility sets the file visibility
func WithVisibility(visibility Visibility) Option {
	return func(o *Options) {
		o.Visibility = visibility
	}
}

// WithOverwrite enables or disables overwriting an existing destination
func WithOverwrite(overwrite bool) Option {
	return func(o *Options) {
		o.Overwrite = overwrite
	}
}

// ProcessOptions applies options over a zero Options value.
// Adapters call this instead of each keeping their own copy.
func ProcessOptions(options ...Option) *Options {
	opts := &Options{}
	for _, option := range options {
		option(opts)
	}
	return opts
}

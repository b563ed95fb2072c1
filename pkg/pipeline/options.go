package pipeline

// BlockOptions configures the behavior of pipeline blocks
type BlockOptions struct {
	// ConcurrencyDegree specifies the number of concurrent workers processing messages
	// Default is 1 (sequential processing)
	ConcurrencyDegree int

	// BufferSize specifies the capacity of the input channel
	// Default is 0 (unbuffered)
	BufferSize int
}

// Option is a function that configures BlockOptions
type Option func(*BlockOptions)

// DefaultBlockOptions returns the default block options
func DefaultBlockOptions() BlockOptions {
	return BlockOptions{
		ConcurrencyDegree: 1,
		BufferSize:        0,
	}
}

// WithConcurrencyDegree sets the number of concurrent workers
func WithConcurrencyDegree(degree int) Option {
	return func(o *BlockOptions) {
		if degree > 0 {
			o.ConcurrencyDegree = degree
		}
	}
}

// WithBufferSize sets the buffer size for the input channel
func WithBufferSize(size int) Option {
	return func(o *BlockOptions) {
		if size > 0 {
			o.BufferSize = size
		}
	}
}

func applyOptions(opts []Option) BlockOptions {
	options := DefaultBlockOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

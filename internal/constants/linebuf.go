package constants

// Constants governing the line buffer / piper / grep worker core.
const (
	// MaxBuffer is the default hard ceiling on a LineBuffer's ByteWindow,
	// matching lnav's MAX_LINE_BUFFER_SIZE (4 * 256KiB * 4 = 4MiB here
	// rounded to a clean power of two for readability).
	MaxBuffer = 4 * 1024 * 1024

	// DefaultWindowSize is the ByteWindow's initial allocation before any
	// growth, kept small so short-lived LineBuffers stay cheap.
	DefaultWindowSize = 64 * 1024

	// SniffLength is the number of leading bytes read to detect gzip,
	// bzip2 or zstd framing before a LineBuffer is attached.
	SniffLength = 4

	// ChildFlushEveryLines is the default for config.Core.FlushEveryLines.
	// The in-process grep worker does no periodic flushing; its frames
	// reach Poll as soon as they are emitted.
	ChildFlushEveryLines = 10000

	// MaxDispatchIterations bounds how many decoded grep-worker records
	// are parsed per call to keep the host's poll loop responsive.
	MaxDispatchIterations = 256

	// StdinEOFSentinel is appended verbatim to a piper's scratch file
	// once its input fd reaches EOF.
	StdinEOFSentinel = "---- END-OF-STDIN ----"

	// TimestampLayout is the piper's per-line timestamp prefix format,
	// followed by two literal spaces.
	TimestampLayout = "2006-01-02T15:04:05.000"
)

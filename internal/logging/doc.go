// Package logging sets up structured slog logging for pubrag.
//
// Logs are JSON lines written to a size-rotated file under ~/.pubrag/logs/.
// With --debug the level drops to debug and records are mirrored to stderr.
package logging

// Package file provides the record archive sink: JSON lines on disk, optionally
// zstd compressed.
//
// # Format
//
// Every record is written as one RecordEnvelope per line:
//
//	{"id":"5b1c...","measurement":"temperature","topic":"sensors/kitchen/temp","fields":{"celsius":21.5},"tags":{"location":"kitchen"},"timestamp":1700000000123}
//
// The file is opened in append mode. With Compress set the lines go through a
// klauspost/compress zstd encoder; every session adds one frame, and
// ReadEnvelopes reads plain and compressed files alike.
//
// # Buffering and Flushing
//
// Lines are buffered and written when the buffer holds BufferSize lines, every
// FlushInterval, and on Close. Buffered lines are lost if the process dies
// before a flush.
package file

// Package fusionlog keeps a bounded, in-memory record of fusion activity.
//
// The log holds four kinds of entries (input, fusion, conflict, error),
// evicting the oldest once capacity is reached. Payloads are kept only as
// truncated previews. Logging never fails and never influences fusion
// decisions; a Logger can be attached to an engine as its Recorder.
//
// Entries can optionally be mirrored to a console through a zerolog
// ConsoleWriter.
package fusionlog

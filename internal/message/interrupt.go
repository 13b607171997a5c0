package message

// The four literal interrupt strings surfaced to the assistant on
// cancellation (spec §6). Keeping them as named constants lets the Turn
// Loop, the Queue, and tests agree on exact wording without re-deriving it.
const (
	// InterruptMessage is yielded as a standalone assistant message when a
	// turn is cancelled before any tool-use is in flight.
	InterruptMessage = "Request interrupted by user"

	// InterruptMessageForToolUse is yielded when a turn is cancelled while
	// tool-use entries are executing or queued.
	InterruptMessageForToolUse = "Request interrupted by user during tool use"

	// RejectMessage is the content of a synthetic error tool-result for a
	// tool-use entry abandoned because of cancellation.
	RejectMessage = "The user doesn't want to proceed with this tool use. The tool use was rejected (eg. if it was a file edit, the new edit won't be applied, and the file remains unchanged)."

	// SiblingErrorMessage is the content of a synthetic error tool-result
	// for a tool-use entry that never ran because an earlier sibling in the
	// same assistant turn already failed.
	SiblingErrorMessage = "The tool was not invoked because a sibling tool call in the same turn failed."
)

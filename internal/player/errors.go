package player

import "errors"

var (
	ErrUnknownSource   = errors.New("could not determine the source URL")
	ErrUnexpectedState = errors.New("unexpected playback state")
)

const (
	MsgNotInVoice     = "Not connected to voice channel"
	MsgNothingToSkip  = "There is nothing to skip!"
	MsgNothingToStop  = "There is nothing to stop!"
	MsgStopped        = "Stopped playback and left the voice channel"
	MsgQueueEmpty     = "Queue is empty"
	msgUnknownTitle   = "Unknown track"
	msgQueueTruncated = "...\n**Queue too long to display!**"
)

package port

import "context"

// MessageSender posts a plain text message to a chat channel
type MessageSender interface {
	// SendText delivers text to the receiver and returns the channel's message id
	SendText(ctx context.Context, receiveIDType, receiveID, text string) (string, error)
}

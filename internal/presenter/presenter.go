// Package presenter delivers captioned board images and plain text replies
// without coupling the command layer to the transport.
package presenter

import (
	"context"
	"strings"
)

type Presenter struct {
	sendMessage func(ctx context.Context, chatID, message string) error
	sendImage   func(ctx context.Context, chatID string, png []byte) error
}

func New(sendMessage func(ctx context.Context, chatID, message string) error, sendImage func(ctx context.Context, chatID string, png []byte) error) *Presenter {
	return &Presenter{
		sendMessage: sendMessage,
		sendImage:   sendImage,
	}
}

// Text sends a plain reply.
func (p *Presenter) Text(ctx context.Context, chatID, message string) error {
	if p == nil || p.sendMessage == nil {
		return nil
	}
	if strings.TrimSpace(message) == "" {
		return nil
	}
	return p.sendMessage(ctx, chatID, message)
}

// Board sends an optional caption followed by the board image. The caption
// goes first so the image lands under the text it describes.
func (p *Presenter) Board(ctx context.Context, chatID, caption string, png []byte) error {
	if p == nil {
		return nil
	}
	if text := strings.TrimSpace(caption); text != "" && p.sendMessage != nil {
		if err := p.sendMessage(ctx, chatID, caption); err != nil {
			return err
		}
	}
	if len(png) > 0 && p.sendImage != nil {
		if err := p.sendImage(ctx, chatID, png); err != nil {
			return err
		}
	}
	return nil
}

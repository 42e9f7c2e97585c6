// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"
	"fmt"
)

// ErrMessageTooLarge is returned by Send when a message does not fit
// the channel.
var ErrMessageTooLarge = errors.New("message exceeds channel capacity")

// Send writes message as one complete channel message. The size is
// checked before the send window opens, so an oversized message never
// leaves a partial write behind.
func Send(ctx context.Context, ch Channel, message []byte) error {
	if len(message) > ch.Capacity() {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrMessageTooLarge, len(message), ch.Capacity())
	}
	if err := ch.AcquireSend(ctx); err != nil {
		return err
	}
	n := copy(ch.SendBuffer(), message)
	return ch.ReleaseSend(n)
}

// Receive waits for the next message and passes it to decode. The
// receive window is released whether or not decode succeeds; decode
// must not retain the slice.
func Receive(ctx context.Context, ch Channel, decode func([]byte) error) (err error) {
	if err := ch.AcquireReceive(ctx); err != nil {
		return err
	}
	defer func() {
		if releaseErr := ch.ReleaseReceive(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return decode(ch.ReceiveBuffer())
}

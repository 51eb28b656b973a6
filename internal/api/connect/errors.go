package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/app/player"
	"github.com/osa030/audiolink/internal/app/queue"
	"github.com/osa030/audiolink/internal/app/voice"
)

// toConnectError maps domain errors to connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return err
	}

	code := connect.CodeInternal
	var restErr *node.RESTError
	switch {
	case errors.Is(err, player.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, player.ErrDestroyed),
		errors.Is(err, player.ErrNoTrack),
		errors.Is(err, queue.ErrHistoryEmpty):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, queue.ErrIndexOutOfRange):
		code = connect.CodeInvalidArgument
	case errors.Is(err, node.ErrNoAvailableNode),
		errors.Is(err, node.ErrNodeNotConnected),
		errors.Is(err, node.ErrNodeDestroyed),
		errors.Is(err, voice.ErrDisconnected):
		code = connect.CodeUnavailable
	case errors.Is(err, voice.ErrHandshakeTimeout),
		errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.As(err, &restErr):
		code = connect.CodeUnavailable
		if restErr.Status == 404 {
			code = connect.CodeNotFound
		} else if restErr.Status == 400 {
			code = connect.CodeInvalidArgument
		}
	}
	return connect.NewError(code, err)
}

func invalidArgument(format string, args ...any) error {
	return connect.NewError(connect.CodeInvalidArgument, errors.Newf(format, args...))
}

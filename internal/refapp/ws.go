package refapp

import (
	"context"
	"strings"

	"github.com/gatewire/gatewire/pkg/gateway"
)

// serveWebSocket accepts the handshake on /ws and echoes every message
// back to the peer, preserving the text/binary kind. Any other path is
// rejected before the upgrade completes.
func (a *App) serveWebSocket(ctx context.Context, scope gateway.WebSocketScope, receive gateway.ReceiveFunc, send gateway.SendFunc) error {
	ev, err := receive(ctx)
	if err != nil {
		return err
	}
	if _, ok := ev.(gateway.WebSocketConnect); !ok {
		return gateway.ErrUnsupportedScope
	}

	if strings.TrimPrefix(scope.Path, scope.RootPath) != "/ws" {
		return send(ctx, gateway.WebSocketClose{Code: 4404, Reason: "not found"})
	}

	// Echo back the first offered subprotocol, if any.
	var subprotocol string
	if len(scope.Subprotocols) > 0 {
		subprotocol = scope.Subprotocols[0]
	}
	if err := send(ctx, gateway.WebSocketAccept{Subprotocol: subprotocol}); err != nil {
		return err
	}

	for {
		ev, err := receive(ctx)
		if err != nil {
			return err
		}
		switch e := ev.(type) {
		case gateway.WebSocketReceive:
			if err := send(ctx, gateway.WebSocketSend{Text: e.Text, Bytes: e.Bytes}); err != nil {
				return err
			}
		case gateway.WebSocketDisconnect:
			a.logger.Debug("websocket peer disconnected", "code", e.Code)
			return nil
		}
	}
}

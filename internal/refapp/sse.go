package refapp

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gatewire/gatewire/pkg/gateway"
)

// serveEvents streams a timestamp event on /events at the configured
// interval until the client disconnects.
func (a *App) serveEvents(ctx context.Context, scope gateway.SSEScope, receive gateway.ReceiveFunc, send gateway.SendFunc) error {
	if strings.TrimPrefix(scope.Path, scope.RootPath) != "/events" {
		return respondText(ctx, send, 404, "not found\n")
	}

	if err := send(ctx, gateway.SSEStart{Status: 200}); err != nil {
		return err
	}

	// receive blocks until the client goes away; surface that as a
	// channel the tick loop can select on.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			ev, err := receive(ctx)
			if err != nil {
				return
			}
			if _, ok := ev.(gateway.SSEDisconnect); ok {
				return
			}
		}
	}()

	ticker := time.NewTicker(a.sseInterval)
	defer ticker.Stop()

	for seq := 0; ; seq++ {
		select {
		case <-disconnected:
			a.logger.Debug("event stream closed by client")
			return nil
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			err := send(ctx, gateway.SSESend{
				Event: "tick",
				ID:    strconv.Itoa(seq),
				Data:  t.UTC().Format(time.RFC3339),
			})
			if err != nil {
				return err
			}
		}
	}
}

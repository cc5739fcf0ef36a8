// Package broadcast fans typed messages out to any number of subscribers.
//
//	b := broadcast.NewMemoryBroadcaster[Notification](16,
//		broadcast.WithDropHandler(func(n Notification) { dropped.Inc() }),
//	)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	for msg := range sub.Receive(ctx) {
//		render(msg.Data)
//	}
//
// Broadcast never blocks: when a subscriber's buffer is full the message is
// dropped for that subscriber only and the drop handler is invoked. The
// subscription itself stays open. Subscriptions end when their context is
// cancelled, when Close is called on them, or when the broadcaster closes.
package broadcast

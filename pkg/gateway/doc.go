// Package gateway orchestrates the shards of a sharded WebSocket gateway
// client.
//
// A single Manager owns a contiguous range of shard ids, brings them up one
// at a time, registers each live connection and merges every shard's frames
// into one stream the caller consumes.
//
// # Features
//
//   - Sharding strategies: Simple, Multi(n) and Range(index, count, total)
//   - Startup cadence: a handshake never starts before the cooldown since the
//     previous one, nor before the previous shard reported READY
//   - Unbounded or bounded merged message stream with per-shard ordering
//   - Registry with removal (and optional requeue) on disconnect
//   - Lifecycle event bus, metrics interface and OpenTelemetry spans
//   - Optional deployment-wide identify limiter
//
// # Basic Usage
//
//	manager, err := gateway.NewManager(
//	    gateway.WithStrategy(gateway.Range(0, 2, 4)),
//	    gateway.WithToken(token),
//	    gateway.WithURL("wss://gateway.example.com"),
//	    gateway.WithConnector(wsshard.NewConnector()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	messages, _ := manager.Messages()
//	if err := manager.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	for msg := range messages {
//	    event, err := msg.Shard.Parse(msg.Frame)
//	    if err != nil {
//	        continue
//	    }
//	    msg.Shard.Apply(event)
//	    manager.Process(event)
//	}
//
// Feeding every event back through Process is required: the READY dispatch
// of shard n is what releases shard n+1.
//
// # Startup Cadence
//
// Start seeds the owned ids in ascending order and releases the first one.
// The consumer then loops:
//
//	next pending id -> release token -> cooldown -> identify limiter -> connect
//
// Tokens come from Start and from READY events. A failed connect releases its
// own token so the remaining shards still start.
//
// # Shutdown
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	manager.Shutdown(ctx)
//
// Shutdown closes every registered shard, waits for all goroutines and then
// closes the merged stream.
package gateway

package replica

import (
	"context"

	"github.com/roach88/synclog/internal/engine"
	"github.com/roach88/synclog/internal/event"
)

// Remote is the server side of one store, already bound to its owner and
// store id.
type Remote interface {
	Push(ctx context.Context, expectedHead int64, events []event.Record) (engine.PushResult, error)
	Pull(ctx context.Context, since int64, limit int) (engine.PullResult, error)
}

// EngineRemote binds an in-process Engine to one owner and store.
type EngineRemote struct {
	Engine  *engine.Engine
	OwnerID string
	StoreID string
}

func (r EngineRemote) Push(ctx context.Context, expectedHead int64, events []event.Record) (engine.PushResult, error) {
	return r.Engine.Push(ctx, r.OwnerID, r.StoreID, expectedHead, events)
}

func (r EngineRemote) Pull(ctx context.Context, since int64, limit int) (engine.PullResult, error) {
	return r.Engine.Pull(ctx, r.OwnerID, r.StoreID, since, limit)
}

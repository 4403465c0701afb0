package dispatch

import (
	"context"
	"fmt"

	"fleetcore/pkg/objects"
)

// LocalExecutor rehydrates the target entity against its own persistence
// bridge and performs the operation in-process.
type LocalExecutor struct {
	reg    *objects.Registry
	bridge objects.Bridge
}

// NewLocalExecutor constructs an in-process executor.
func NewLocalExecutor(reg *objects.Registry, bridge objects.Bridge) *LocalExecutor {
	return &LocalExecutor{reg: reg, bridge: bridge}
}

// Invoke rebuilds the entity from the request envelope, runs the named
// operation, and returns the entity's resulting envelope.
func (e *LocalExecutor) Invoke(ctx context.Context, req Request) (Response, error) {
	ent, err := e.reg.FromPrimitive(e.bridge, req.Target)
	if err != nil {
		return Response{}, err
	}
	base := ent.Base()
	switch req.Method {
	case MethodGet:
		key, err := req.StringArg("key")
		if err != nil {
			return Response{}, err
		}
		expected, err := req.StringsArg("expected")
		if err != nil {
			return Response{}, err
		}
		if err := base.LoadByKey(ctx, key, expected); err != nil {
			return Response{}, err
		}
	case MethodSave:
		if err := base.Save(ctx); err != nil {
			return Response{}, err
		}
	case MethodRefresh:
		if err := base.Refresh(ctx); err != nil {
			return Response{}, err
		}
	case MethodLoadField:
		name, err := req.StringArg("name")
		if err != nil {
			return Response{}, err
		}
		if _, err := base.FieldOrLoad(ctx, name); err != nil {
			return Response{}, err
		}
	default:
		return Response{}, fmt.Errorf("unknown method %q", req.Method)
	}
	prim, err := base.ToPrimitive()
	if err != nil {
		return Response{}, err
	}
	return Response{Result: prim}, nil
}

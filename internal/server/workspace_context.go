package server

import "context"

type workspaceCtxKey struct{}

func withWorkspace(ctx context.Context, workspace Workspace) context.Context {
	return context.WithValue(ctx, workspaceCtxKey{}, workspace)
}

func currentWorkspace(ctx context.Context) (Workspace, bool) {
	ws, ok := ctx.Value(workspaceCtxKey{}).(Workspace)
	return ws, ok
}

// Principal is the acting identity at this internal boundary, resolved from
// trusted gateway headers.
type Principal struct {
	ID       string
	RoleSlug string
}

type principalCtxKey struct{}

func withPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, principal)
}

func currentPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok
}

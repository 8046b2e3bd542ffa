package target

import (
	"context"

	"devtools-rpc/client"
)

// CreateTargetConn creates a target through conn and returns an unconnected
// connection to it, configured like conn except for middlewares, which come
// from opts. The caller connects and closes it.
func CreateTargetConn(ctx context.Context, conn *client.Conn, params CreateTargetParams, opts ...client.Option) (*client.Conn, error) {
	res, err := client.Call(ctx, conn, CreateTarget, params)
	if err != nil {
		return nil, err
	}
	return conn.Derive(string(res.TargetID), opts...)
}

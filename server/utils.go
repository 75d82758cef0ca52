package gqlwsserver

import "context"

var connParamsKey = &struct{}{}

// ConnectionParams is the payload of connection_init.
type ConnectionParams = map[string]interface{}

// GetConnectionParams returns the params the client connected with.
func GetConnectionParams(ctx context.Context) ConnectionParams {
	params, _ := ctx.Value(connParamsKey).(ConnectionParams)
	return params
}

var subscriptionStopKey = &struct{}{}

// GetSubscriptionStopSig returns a channel closed when the client stops the
// subscription. Subscribe resolvers close their result channel on it.
func GetSubscriptionStopSig(ctx context.Context) chan interface{} {
	return ctx.Value(subscriptionStopKey).(chan interface{})
}

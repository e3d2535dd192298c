package invoke

import "github.com/fgrzl/eventkit/pkg/bus"

// multiSubscription groups several bus.Subscriptions registered at
// Define*InvokeHandler time (the request listener plus the family-wide
// abort listener) behind the single bus.Subscription the handler
// registration functions return.
type multiSubscription []bus.Subscription

func (m multiSubscription) Unsubscribe() {
	for _, sub := range m {
		sub.Unsubscribe()
	}
}

func multiSub(subs ...bus.Subscription) bus.Subscription {
	return multiSubscription(subs)
}

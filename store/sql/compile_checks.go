package sqlstore

import (
	jobqueue "github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-messenger/queue"
	"github.com/goliatone/go-messenger/session"
)

var (
	_ queue.Broker      = (*QueueStore)(nil)
	_ queue.Queue       = (*SQLQueue)(nil)
	_ jobqueue.Delivery = (*sqlDelivery)(nil)
	_ session.Backend   = (*SessionStore)(nil)
	_ session.Backend   = (*CachedSessionStore)(nil)
)

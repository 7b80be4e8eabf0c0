package sqlstore

import "github.com/cabibbz/koya-caller-sub009/core"

var (
	_ core.WebhookStore           = (*WebhookStore)(nil)
	_ core.WebhookStore           = (*CachedWebhookStore)(nil)
	_ core.DeliveryStore          = (*DeliveryStore)(nil)
	_ core.FailedWebhookStore     = (*FailedWebhookStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)

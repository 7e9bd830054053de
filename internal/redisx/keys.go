package redisx

import "time"

const (
	// Order cache: order_status:{order_id} -> full order JSON.
	KeyOrderStatus = "order_status:%s"

	// Cached coupon stock stats for the polled storefront display. Advisory
	// only; allocation never consults it.
	KeyStockStats = "coupon_stock"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Admin session tokens: admin:session:{token} -> username
	KeyAdminSession = "admin:session:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLStockCache  = 3 * time.Second
	TTLDedup       = 48 * time.Hour
)

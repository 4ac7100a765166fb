package redisx

import "time"

const (
	// Live cart: hash cart:{user_id} -> {sku_id: line json}
	KeyCart = "cart:%s"

	// Checkout attempt state: checkout:attempt:{attempt_id} -> attempt json
	KeyAttempt = "checkout:attempt:%s"

	// In-flight placement guard: checkout:attempt:{attempt_id}:placing -> owner token
	KeyAttemptPlacing = "checkout:attempt:%s:placing"

	// Cache status order: order_status:{order_id} -> {"order_id": "...", "status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCart        = 30 * 24 * time.Hour
	TTLAttempt     = 24 * time.Hour
	TTLPlacing     = 2 * time.Minute
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID string
	Type    string
	// Reason несёт контекст события: новый статус, id бармена, причина отмены.
	Reason   string
	Occurred time.Time
}

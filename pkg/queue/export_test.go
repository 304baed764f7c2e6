package queue

import "time"

// SetNow overrides the queue's clock in tests.
func (q *SQSQueue) SetNow(f func() time.Time) { q.now = f }

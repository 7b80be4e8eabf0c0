package core

import "time"

// scheduleTable is the canonical backoff schedule shared by outbound
// deliveries and inbound failure retries. Indexes beyond the table stay
// capped at the last entry.
var scheduleTable = []time.Duration{
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
	4 * time.Hour,
}

// SchedulePolicy implements RetryPolicy from the fixed schedule table.
type SchedulePolicy struct {
	Table []time.Duration
}

func DefaultSchedulePolicy() SchedulePolicy {
	return SchedulePolicy{}
}

func (p SchedulePolicy) NextDelay(index int) time.Duration {
	table := p.Table
	if len(table) == 0 {
		table = scheduleTable
	}
	if index < 0 {
		index = 0
	}
	if index >= len(table) {
		index = len(table) - 1
	}
	return table[index]
}

var _ RetryPolicy = SchedulePolicy{}

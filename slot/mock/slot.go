package mock

import (
	"sort"
	"sync"
	"time"

	"shardbft/slot"
)

// Clock 手动推进的时钟，定时任务只在Advance时同步执行
type Clock struct {
	mtx    sync.Mutex
	now    time.Time
	seq    int
	timers []*timer
}

var _ slot.Clock = (*Clock)(nil)

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

type timer struct {
	clock    *Clock
	deadline time.Time
	seq      int
	fn       func()
	stopped  bool
	fired    bool
}

func (t *timer) Stop() bool {
	t.clock.mtx.Lock()
	defer t.clock.mtx.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *Clock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

// Set 直接修改当前时间，不触发定时任务
func (c *Clock) Set(now time.Time) {
	c.mtx.Lock()
	c.now = now
	c.mtx.Unlock()
}

func (c *Clock) AfterFunc(d time.Duration, f func()) slot.Timer {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.seq++
	t := &timer{clock: c, deadline: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending 还没有触发也没有取消的定时任务数量
func (c *Clock) Pending() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance 时间前进d，按到期顺序执行到期的任务
// 任务中新注册且在新时间之前到期的任务也会被执行
func (c *Clock) Advance(d time.Duration) {
	c.mtx.Lock()
	target := c.now.Add(d)
	c.mtx.Unlock()

	for {
		c.mtx.Lock()
		var due []*timer
		rest := c.timers[:0]
		for _, t := range c.timers {
			switch {
			case t.stopped || t.fired:
			case !t.deadline.After(target):
				due = append(due, t)
			default:
				rest = append(rest, t)
			}
		}
		c.timers = rest
		if len(due) == 0 {
			c.now = target
			c.mtx.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].deadline.Equal(due[j].deadline) {
				return due[i].seq < due[j].seq
			}
			return due[i].deadline.Before(due[j].deadline)
		})
		next := due[0]
		next.fired = true
		// 其余到期任务放回去，下一轮再按顺序处理
		c.timers = append(c.timers, due[1:]...)
		if next.deadline.After(c.now) {
			c.now = next.deadline
		}
		c.mtx.Unlock()

		next.fn()
	}
}

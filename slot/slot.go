package slot

import (
	"sync"
	"time"
)

// Clock 提供墙上时钟和定时器
// proposer轮换、到达率统计和所有超时都从这里取时间，测试中用mock.Clock替换
type Clock interface {
	// 当前时间
	Now() time.Time

	// 经过d之后在新的goroutine中执行f
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer 可以取消的定时任务
type Timer interface {
	// 返回false说明任务已经执行或者已经取消
	Stop() bool
}

// SystemClock 基于time包的Clock
type SystemClock struct{}

var _ Clock = SystemClock{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// MinuteStart 返回t所在分钟的开始时刻(unix秒)
func MinuteStart(t time.Time) int64 {
	return t.Unix() - t.Unix()%60
}

//-----------------------------------------------------------------------------

// DebounceTimer 每次Reset都会取消还没触发的任务然后重新计时
// 用于“最后一笔交易之后一段时间没有动静”这类超时
type DebounceTimer struct {
	mtx   sync.Mutex
	clock Clock
	fn    func()
	timer Timer
}

func NewDebounceTimer(clock Clock, fn func()) *DebounceTimer {
	return &DebounceTimer{clock: clock, fn: fn}
}

// Reset 取消已有的定时任务，d之后触发fn
func (dt *DebounceTimer) Reset(d time.Duration) {
	dt.mtx.Lock()
	defer dt.mtx.Unlock()
	if dt.timer != nil {
		dt.timer.Stop()
	}
	dt.timer = dt.clock.AfterFunc(d, dt.fn)
}

// Stop 取消定时任务
func (dt *DebounceTimer) Stop() {
	dt.mtx.Lock()
	defer dt.mtx.Unlock()
	if dt.timer != nil {
		dt.timer.Stop()
		dt.timer = nil
	}
}

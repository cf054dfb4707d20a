// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// DefaultTick is how often due timers are checked.
const DefaultTick = 100 * time.Millisecond

type TimerTask struct {
	Id       int64
	Key      string
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager 最小堆定时器。带 key 的定时器同一 key 只保留最新一个，
// 房间的空闲超时和结束宽限期都用它调度。
type TimerManager struct {
	queue  TimerQueue
	keys   map[string]*TimerTask
	mutex  sync.Mutex
	nextId int64
	tick   time.Duration
	done   chan struct{}
	once   sync.Once
}

func NewTimerManager() *TimerManager {
	return NewTimerManagerWithTick(DefaultTick)
}

// NewTimerManagerWithTick creates a manager that checks for due timers every tick.
func NewTimerManagerWithTick(tick time.Duration) *TimerManager {
	if tick <= 0 {
		tick = DefaultTick
	}
	manager := &TimerManager{
		queue:  make(TimerQueue, 0),
		keys:   make(map[string]*TimerTask),
		done:   make(chan struct{}),
		nextId: 1,
		tick:   tick,
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.push("", delay, interval, callback).Id
}

func (m *TimerManager) RemoveTimer(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, task := range m.queue {
		if task.Id == timerId {
			m.remove(task)
			break
		}
	}
}

// Schedule runs callback once after delay, replacing any pending timer for key.
func (m *TimerManager) Schedule(key string, delay time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if old, ok := m.keys[key]; ok {
		m.remove(old)
	}
	task := m.push(key, delay, 0, callback)
	m.keys[key] = task
	return task.Id
}

// Cancel 取消 key 对应的定时器
func (m *TimerManager) Cancel(key string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, ok := m.keys[key]
	if !ok {
		return false
	}
	m.remove(task)
	return true
}

// Pending reports whether a timer for key is waiting to fire.
func (m *TimerManager) Pending(key string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.keys[key]
	return ok
}

// Len returns the number of queued timers.
func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop halts processing. Pending timers never fire.
func (m *TimerManager) Stop() {
	m.once.Do(func() { close(m.done) })
}

func (m *TimerManager) push(key string, delay, interval time.Duration, callback func()) *TimerTask {
	task := &TimerTask{
		Id:       m.nextId,
		Key:      key,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++
	heap.Push(&m.queue, task)
	return task
}

// remove 调用方持有锁
func (m *TimerManager) remove(task *TimerTask) {
	if task.index >= 0 && task.index < len(m.queue) && m.queue[task.index] == task {
		heap.Remove(&m.queue, task.index)
	}
	if task.Key != "" && m.keys[task.Key] == task {
		delete(m.keys, task.Key)
	}
}

func (m *TimerManager) process() {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return

		case <-ticker.C:
			select {
			case <-m.done:
				return
			default:
			}
			m.mutex.Lock()
			now := time.Now()
			var due []*TimerTask

			for m.queue.Len() > 0 {
				task := m.queue[0]
				if task.Execute.After(now) {
					break
				}

				heap.Pop(&m.queue)
				if task.Key != "" && m.keys[task.Key] == task {
					delete(m.keys, task.Key)
				}
				due = append(due, task)

				if task.Interval > 0 {
					task.Execute = now.Add(task.Interval)
					heap.Push(&m.queue, task)
				}
			}
			m.mutex.Unlock()

			for _, task := range due {
				go task.Callback()
			}
		}
	}
}

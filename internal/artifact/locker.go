package artifact

import "sync"

// nameLocker 按软件名称串行化上传和归档
type nameLocker struct {
	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

func newNameLocker() *nameLocker {
	return &nameLocker{locks: make(map[string]*nameLock)}
}

// Lock 获取 name 对应的锁，返回解锁函数
func (l *nameLocker) Lock(name string) func() {
	l.mu.Lock()
	lk, ok := l.locks[name]
	if !ok {
		lk = &nameLock{}
		l.locks[name] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()

		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, name)
		}
		l.mu.Unlock()
	}
}

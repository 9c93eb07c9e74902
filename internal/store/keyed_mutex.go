package store

import "sync"

// KeyedMutex 按 key 串行化：同一用户/订单互斥，不同 key 完全并行。
// 同一 key 的等待者按 Lock 调用顺序依次拿到锁，解锁时直接交给队首。
// 没有持有者的 key 会被回收，map 不会随用户数无限增长。
type KeyedMutex[K comparable] struct {
	mu    sync.Mutex
	lanes map[K]*lane
}

type lane struct {
	waiters []chan struct{}
}

func NewKeyedMutex[K comparable]() *KeyedMutex[K] {
	return &KeyedMutex[K]{lanes: make(map[K]*lane)}
}

// Lock 获取 key 的锁，返回解锁函数。
func (k *KeyedMutex[K]) Lock(key K) (unlock func()) {
	k.mu.Lock()
	l, held := k.lanes[key]
	if !held {
		k.lanes[key] = &lane{}
		k.mu.Unlock()
	} else {
		ready := make(chan struct{})
		l.waiters = append(l.waiters, ready)
		k.mu.Unlock()
		<-ready
	}

	return func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		l := k.lanes[key]
		if len(l.waiters) == 0 {
			delete(k.lanes, key)
			return
		}
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next)
	}
}

// waiting 返回 key 上排队的等待者数量。
func (k *KeyedMutex[K]) waiting(key K) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok := k.lanes[key]; ok {
		return len(l.waiters)
	}
	return 0
}

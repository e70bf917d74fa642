package task

import "sync"

// CancelToken is a single-shot flag. Setting it twice is harmless.
type CancelToken struct {
	once sync.Once
	ch   chan struct{}
}

func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

func (c *CancelToken) Cancel() {
	c.once.Do(func() { close(c.ch) })
}

func (c *CancelToken) Canceled() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// Done is closed once the token is set.
func (c *CancelToken) Done() <-chan struct{} {
	return c.ch
}

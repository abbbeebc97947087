// Package chanx provides an unbounded channel: sends never block and values
// come out in the order they went in.
package chanx

import "sync"

// Unbounded buffers values between Send and Out in a growing queue owned by
// its own goroutine. After Close, queued values are drained into Out and then
// Out is closed.
type Unbounded[T any] struct {
	in   chan T
	out  chan T
	done chan struct{}
	once sync.Once
}

func NewUnbounded[T any]() *Unbounded[T] {
	u := &Unbounded[T]{
		in:   make(chan T),
		out:  make(chan T),
		done: make(chan struct{}),
	}
	go u.run()
	return u
}

func (u *Unbounded[T]) Out() <-chan T { return u.out }

// Send queues v. It reports false, dropping v, once Close has been called.
func (u *Unbounded[T]) Send(v T) bool {
	select {
	case <-u.done:
		return false
	default:
	}
	select {
	case u.in <- v:
		return true
	case <-u.done:
		return false
	}
}

// Close stops accepting values. It is safe to call more than once and
// concurrently with Send.
func (u *Unbounded[T]) Close() { u.once.Do(func() { close(u.done) }) }

func (u *Unbounded[T]) run() {
	defer close(u.out)
	var queue []T
	head := 0
	in, done := u.in, u.done
	for in != nil || head < len(queue) {
		var out chan T
		var next T
		if head < len(queue) {
			out = u.out
			next = queue[head]
		}
		select {
		case v := <-in:
			queue = append(queue, v)
		case <-done:
			in, done = nil, nil
		case out <- next:
			var zero T
			queue[head] = zero
			head++
			if head == len(queue) {
				queue = queue[:0]
				head = 0
			}
		}
	}
}

package session

import (
	"sync"
	"time"

	"ai-media-hub-service/internal/service/stt"
)

type delayedFrame struct {
	due   time.Time
	to    stt.Adapter
	audio []byte
}

// delayedSender sends audio frames after a fixed delay from one goroutine,
// in scheduling order. close drops every frame that has not been sent yet.
type delayedSender struct {
	delay time.Duration
	send  func(to stt.Adapter, audio []byte)

	queue chan delayedFrame
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newDelayedSender(delay time.Duration, send func(stt.Adapter, []byte)) *delayedSender {
	d := &delayedSender{
		delay: delay,
		send:  send,
		queue: make(chan delayedFrame, 256),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// schedule queues audio for to. It reports false once the sender is closed.
func (d *delayedSender) schedule(to stt.Adapter, audio []byte) bool {
	f := delayedFrame{due: time.Now().Add(d.delay), to: to, audio: audio}
	select {
	case <-d.stop:
		return false
	default:
	}
	select {
	case <-d.stop:
		return false
	case d.queue <- f:
		return true
	}
}

func (d *delayedSender) run() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		case f := <-d.queue:
			t := time.NewTimer(time.Until(f.due))
			select {
			case <-d.stop:
				t.Stop()
				return
			case <-t.C:
			}
			d.send(f.to, f.audio)
		}
	}
}

// close stops the sender and waits for an in-flight send to return.
func (d *delayedSender) close() {
	d.once.Do(func() { close(d.stop) })
	<-d.done
}

package utils

import (
	"time"
)

// InstaTicker is a [time.Ticker] that also ticks as soon as it is created.
type InstaTicker struct {
	C <-chan time.Time

	stop   chan struct{}
	ticker *time.Ticker
}

func NewInstaTicker(d time.Duration) *InstaTicker {
	c := make(chan time.Time)
	it := &InstaTicker{
		C:      c,
		stop:   make(chan struct{}),
		ticker: time.NewTicker(d),
	}
	go it.run(c)
	return it
}

func (it *InstaTicker) run(c chan<- time.Time) {
	next := time.Now()
	for {
		select {
		case <-it.stop:
			return
		case c <- next:
		}

		select {
		case <-it.stop:
			return
		case next = <-it.ticker.C:
		}
	}
}

// Stop ends the ticks. Calling it twice panics.
func (it *InstaTicker) Stop() {
	it.ticker.Stop()
	close(it.stop)
}

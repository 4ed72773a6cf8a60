package model

import (
	"sync"
	"time"
)

// FlashLevel is the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// FlashMessage is a notification with a level and expiry.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// Flash holds the current transient notification.
type Flash struct {
	mu      sync.RWMutex
	current FlashMessage
	now     func() time.Time
}

// Info sets an info-level message shown for a few seconds.
func (f *Flash) Info(msg string) { f.set(msg, FlashInfo, 4*time.Second) }

// Warn sets a warn-level message.
func (f *Flash) Warn(msg string) { f.set(msg, FlashWarn, 6*time.Second) }

// Err sets an error-level message.
func (f *Flash) Err(err error) { f.set(err.Error(), FlashErr, 8*time.Second) }

func (f *Flash) set(msg string, level FlashLevel, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = FlashMessage{Text: msg, Level: level, Expires: f.clock().Add(d)}
}

func (f *Flash) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

// Get returns the current message, or nil once it has expired.
func (f *Flash) Get() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || f.clock().After(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

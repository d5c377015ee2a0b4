package httpx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Navigator moves the user to another page.
type Navigator interface {
	Navigate(ctx context.Context, target string)
}

type NavigatorFunc func(ctx context.Context, target string)

func (f NavigatorFunc) Navigate(ctx context.Context, target string) { f(ctx, target) }

type recorderKey struct{}

// Recorder captures the navigation requested while serving one request.
type Recorder struct {
	mu     sync.Mutex
	target string
	count  int
}

func WithRecorder(ctx context.Context) (context.Context, *Recorder) {
	r := &Recorder{}
	return context.WithValue(ctx, recorderKey{}, r), r
}

func RecorderFrom(ctx context.Context) *Recorder {
	r, _ := ctx.Value(recorderKey{}).(*Recorder)
	return r
}

func (r *Recorder) record(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = target
	r.count++
}

// Target is the last navigation recorded.
func (r *Recorder) Target() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target, r.count > 0
}

func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

type contextNavigator struct {
	logger *zap.Logger
}

// NewContextNavigator delivers navigations to the Recorder carried by the
// request context. Without one the navigation is only logged.
func NewContextNavigator(logger *zap.Logger) Navigator {
	return &contextNavigator{logger: logger}
}

func (n *contextNavigator) Navigate(ctx context.Context, target string) {
	if r := RecorderFrom(ctx); r != nil {
		r.record(target)
		return
	}
	n.logger.Info("navigation requested outside a page request", zap.String("target", target))
}

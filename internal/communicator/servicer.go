package communicator

import (
	"context"

	communicatorv1 "github.com/cartridge/unity-actor/pkg/proto/communicator/v1"
)

// servicer parks each Unity call until the environment answers it.
type servicer struct {
	fromUnity chan *communicatorv1.UnityMessage
	toUnity   chan *communicatorv1.UnityMessage
	done      chan struct{}
}

func newServicer() *servicer {
	return &servicer{
		fromUnity: make(chan *communicatorv1.UnityMessage, 1),
		toUnity:   make(chan *communicatorv1.UnityMessage, 1),
		done:      make(chan struct{}),
	}
}

func (s *servicer) Exchange(ctx context.Context, in *communicatorv1.UnityMessage) (*communicatorv1.UnityMessage, error) {
	select {
	case s.fromUnity <- in:
	case <-s.done:
		return closeMessage(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-s.toUnity:
		return out, nil
	case <-s.done:
		return closeMessage(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Package communicator hosts the gRPC endpoint a Unity environment connects
// to and turns its request/response cycle into blocking calls for the actor.
package communicator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	communicatorv1 "github.com/cartridge/unity-actor/pkg/proto/communicator/v1"
)

var (
	ErrTimeout = errors.New("the Unity environment took too long to respond; make sure it needs no user interaction, " +
		"its Behavior Type is Default, its ML-Agents version is compatible, and --no-graphics is set on headless servers")
	ErrCommunicatorStopped = errors.New("communicator has stopped")
	ErrEnvironmentExited   = errors.New("environment process exited")
	ErrWorkerInUse         = errors.New("port is already in use; another worker may be running, use a different worker id")
	ErrClosed              = errors.New("communicator closed")
)

const (
	DefaultTimeout = 60 * time.Second
	maxMessageSize = 256 << 20
	closeGrace     = 2 * time.Second
)

// Process reports when a launched environment exits.
type Process interface {
	Done() <-chan struct{}
	Err() error
}

// Options configures a Communicator.
type Options struct {
	// Addr is the host:port Unity connects to.
	Addr string
	// Timeout bounds each wait for a message from Unity.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Communicator is the server side of communicator_objects.UnityToExternalProto.
type Communicator struct {
	server   *grpc.Server
	listener net.Listener
	servicer *servicer
	timeout  time.Duration
	logger   zerolog.Logger
	process  Process

	closeOnce sync.Once
}

// Listen binds the address and starts serving in the background.
func Listen(opts Options) (*Communicator, error) {
	lis, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen on %s: %v", ErrWorkerInUse, opts.Addr, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Communicator{
		listener: lis,
		servicer: newServicer(),
		timeout:  timeout,
		logger:   opts.Logger,
	}
	c.server = grpc.NewServer(
		grpc.ForceServerCodec(communicatorv1.Codec{}),
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
		grpc.UnaryInterceptor(c.loggingInterceptor),
	)
	communicatorv1.RegisterUnityToExternalServer(c.server, c.servicer)

	go func() {
		c.logger.Debug().Str("addr", lis.Addr().String()).Msg("communicator listening")
		if err := c.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			c.logger.Error().Err(err).Msg("communicator server failed")
		}
	}()

	return c, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (c *Communicator) Addr() string {
	return c.listener.Addr().String()
}

// WatchProcess makes waits fail fast when the environment process exits.
func (c *Communicator) WatchProcess(p Process) {
	c.process = p
}

// Initialize performs the handshake: it returns Unity's initialization
// output after answering it with input.
func (c *Communicator) Initialize(ctx context.Context, input *communicatorv1.UnityInput) (*communicatorv1.UnityOutput, error) {
	first, err := c.recv(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.send(ctx, okMessage(input)); err != nil {
		return nil, err
	}
	// Unity follows up with an empty message whose reply is the first
	// command; it stays pending until the next Exchange.
	if _, err := c.recv(ctx); err != nil {
		return nil, err
	}
	if first.UnityOutput == nil {
		return nil, fmt.Errorf("%w: handshake carried no output", ErrCommunicatorStopped)
	}
	return first.UnityOutput, nil
}

// Exchange answers the pending Unity call with input and waits for the next
// output.
func (c *Communicator) Exchange(ctx context.Context, input *communicatorv1.UnityInput) (*communicatorv1.UnityOutput, error) {
	if err := c.send(ctx, okMessage(input)); err != nil {
		return nil, err
	}
	out, err := c.recv(ctx)
	if err != nil {
		return nil, err
	}
	if out.GetStatus() != communicatorv1.StatusOK {
		return nil, ErrCommunicatorStopped
	}
	if out.UnityOutput == nil {
		return &communicatorv1.UnityOutput{}, nil
	}
	return out.UnityOutput, nil
}

// Close tells Unity to shut down and stops the server. Later calls are no-ops.
func (c *Communicator) Close() error {
	c.closeOnce.Do(func() {
		select {
		case c.servicer.toUnity <- closeMessage():
		default:
		}
		close(c.servicer.done)

		stopped := make(chan struct{})
		go func() {
			c.server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(closeGrace):
			c.logger.Warn().Msg("communicator did not drain in time, forcing stop")
			c.server.Stop()
		}
	})
	return nil
}

func (c *Communicator) send(ctx context.Context, msg *communicatorv1.UnityMessage) error {
	select {
	case c.servicer.toUnity <- msg:
		return nil
	case <-c.servicer.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Communicator) recv(ctx context.Context) (*communicatorv1.UnityMessage, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var exited <-chan struct{}
	if c.process != nil {
		exited = c.process.Done()
	}

	select {
	case msg := <-c.servicer.fromUnity:
		return msg, nil
	case <-exited:
		return nil, fmt.Errorf("%w: %v", ErrEnvironmentExited, c.process.Err())
	case <-timer.C:
		return nil, ErrTimeout
	case <-c.servicer.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func okMessage(input *communicatorv1.UnityInput) *communicatorv1.UnityMessage {
	return &communicatorv1.UnityMessage{
		Header:     &communicatorv1.Header{Status: communicatorv1.StatusOK},
		UnityInput: input,
	}
}

func closeMessage() *communicatorv1.UnityMessage {
	return &communicatorv1.UnityMessage{
		Header: &communicatorv1.Header{Status: communicatorv1.StatusClose},
	}
}

// loggingInterceptor logs each exchange with Unity at debug level.
func (c *Communicator) loggingInterceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	event := c.logger.Debug()
	if err != nil {
		event = c.logger.Warn().Err(err)
	}
	event.Str("method", info.FullMethod).Dur("duration", time.Since(start)).Msg("exchange")
	return resp, err
}

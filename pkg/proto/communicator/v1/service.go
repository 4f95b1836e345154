package communicator

import (
	"context"

	"google.golang.org/grpc"
)

const ExchangeFullMethod = "/communicator_objects.UnityToExternalProto/Exchange"

// UnityToExternalServer is implemented by the process Unity connects to.
type UnityToExternalServer interface {
	// Exchange receives Unity's output and answers with the next input.
	Exchange(context.Context, *UnityMessage) (*UnityMessage, error)
}

func RegisterUnityToExternalServer(s grpc.ServiceRegistrar, srv UnityToExternalServer) {
	s.RegisterService(&UnityToExternal_ServiceDesc, srv)
}

func _UnityToExternal_Exchange_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UnityMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(UnityToExternalServer).Exchange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ExchangeFullMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(UnityToExternalServer).Exchange(ctx, req.(*UnityMessage))
	}
	return interceptor(ctx, in, info, handler)
}

var UnityToExternal_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "communicator_objects.UnityToExternalProto",
	HandlerType: (*UnityToExternalServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Exchange",
			Handler:    _UnityToExternal_Exchange_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mlagents_envs/communicator_objects/unity_to_external.proto",
}

// UnityToExternalClient is the Unity side of the service. The actor never
// dials Unity; the client exists for tools and tests that play Unity's part.
type UnityToExternalClient interface {
	Exchange(ctx context.Context, in *UnityMessage, opts ...grpc.CallOption) (*UnityMessage, error)
}

type unityToExternalClient struct {
	cc grpc.ClientConnInterface
}

func NewUnityToExternalClient(cc grpc.ClientConnInterface) UnityToExternalClient {
	return &unityToExternalClient{cc}
}

func (c *unityToExternalClient) Exchange(ctx context.Context, in *UnityMessage, opts ...grpc.CallOption) (*UnityMessage, error) {
	out := new(UnityMessage)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	if err := c.cc.Invoke(ctx, ExchangeFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

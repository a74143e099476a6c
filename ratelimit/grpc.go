package ratelimit

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/gatelimit/xerrors"
)

// GRPCKeyFunc 从调用上下文中解析限流身份
type GRPCKeyFunc func(ctx context.Context, fullMethod string) string

// PeerKeyFunc 使用调用方的对端地址（不含端口）
func PeerKeyFunc(ctx context.Context, _ string) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// MetadataKeyFunc 使用入站 metadata 中的值作为身份
func MetadataKeyFunc(key string) GRPCKeyFunc {
	return func(ctx context.Context, _ string) string {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return ""
		}
		if vals := md.Get(key); len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
}

// GRPCOptions gRPC 拦截器配置
type GRPCOptions struct {
	// KeyFunc 默认 PeerKeyFunc
	KeyFunc GRPCKeyFunc
	// RouteFunc 默认使用 FullMethod 作为路由 id
	RouteFunc func(ctx context.Context, fullMethod string) string
}

func (o *GRPCOptions) setDefaults() {
	if o.KeyFunc == nil {
		o.KeyFunc = PeerKeyFunc
	}
	if o.RouteFunc == nil {
		o.RouteFunc = func(_ context.Context, fullMethod string) string { return fullMethod }
	}
}

func grpcOptions(opts *GRPCOptions) GRPCOptions {
	o := GRPCOptions{}
	if opts != nil {
		o = *opts
	}
	o.setDefaults()
	return o
}

// UnaryServerInterceptor 返回一元调用服务端限流拦截器
//
// 限流头以小写 metadata 发送给客户端，被拒绝时返回 codes.ResourceExhausted。
//
//	server := grpc.NewServer(
//	    grpc.ChainUnaryInterceptor(ratelimit.UnaryServerInterceptor(limiter, nil)),
//	)
func UnaryServerInterceptor(limiter Limiter, opts *GRPCOptions) grpc.UnaryServerInterceptor {
	if limiter == nil {
		limiter = Discard()
	}
	o := grpcOptions(opts)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		d, err := check(ctx, limiter, o, info.FullMethod)
		if err != nil {
			return nil, err
		}
		if md := headerMetadata(d); md != nil {
			_ = grpc.SetHeader(ctx, md)
		}
		if !d.Allowed {
			return nil, status.Error(codes.ResourceExhausted, ErrRateLimitExceeded.Error())
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor 返回流式调用服务端限流拦截器，每个流在建立时判定一次
func StreamServerInterceptor(limiter Limiter, opts *GRPCOptions) grpc.StreamServerInterceptor {
	if limiter == nil {
		limiter = Discard()
	}
	o := grpcOptions(opts)

	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		d, err := check(stream.Context(), limiter, o, info.FullMethod)
		if err != nil {
			return err
		}
		if md := headerMetadata(d); md != nil {
			_ = stream.SetHeader(md)
		}
		if !d.Allowed {
			return status.Error(codes.ResourceExhausted, ErrRateLimitExceeded.Error())
		}
		return handler(srv, stream)
	}
}

func check(ctx context.Context, limiter Limiter, o GRPCOptions, fullMethod string) (*Decision, error) {
	identity := o.KeyFunc(ctx, fullMethod)
	if identity == "" {
		return nil, status.Error(codes.PermissionDenied, ErrIdentityEmpty.Error())
	}
	d, err := limiter.Allow(ctx, o.RouteFunc(ctx, fullMethod), identity)
	if err != nil {
		return nil, status.Error(grpcCode(err), err.Error())
	}
	return d, nil
}

func headerMetadata(d *Decision) metadata.MD {
	if len(d.Headers) == 0 {
		return nil
	}
	md := metadata.MD{}
	for k, v := range d.Headers {
		md.Set(strings.ToLower(k), v)
	}
	return md
}

func grpcCode(err error) codes.Code {
	switch {
	case xerrors.Is(err, ErrUninitialized):
		return codes.Unavailable
	case xerrors.Is(err, ErrIdentityEmpty):
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}

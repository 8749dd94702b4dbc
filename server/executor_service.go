package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/chazu/neon/vm"
	"github.com/chazu/neon/vm/dist"
)

const (
	// ExecutorServiceName is the fully-qualified name of the service.
	ExecutorServiceName = "neon.v1.Executor"
	// RunProcedure is the path of the Run method for both gRPC and Connect.
	RunProcedure = "/" + ExecutorServiceName + "/Run"

	// DefaultMaxModuleSize bounds the encoded module a caller may submit.
	DefaultMaxModuleSize = 4 << 20
)

// ExecutorService runs submitted modules. Every request gets a fresh
// executor; modules loaded through CALLMF come from the configured module
// paths and are never shared between requests.
//
// A Run response is a Struct with these fields:
//
//	result     the text form of the value left on the stack (success)
//	exception  {name, info, code, trace: [{module, pc}]} (uncaught exception)
//	exit       the status passed to sys$exit
//	output     everything the program printed
type ExecutorService struct {
	cfg           vm.Config
	builtins      *vm.BuiltinTable
	foreign       *vm.ForeignResolver
	policy        *dist.CapabilityPolicy
	pool          *Pool
	maxModuleSize int
}

// ServiceOption configures an ExecutorService.
type ServiceOption func(*ExecutorService)

// WithConfig sets the executor settings used for every run.
func WithConfig(cfg vm.Config) ServiceOption {
	return func(s *ExecutorService) { s.cfg = cfg }
}

// WithBuiltinTable replaces dist.Builtins(). The table must not be
// modified afterwards; executors share it.
func WithBuiltinTable(t *vm.BuiltinTable) ServiceOption {
	return func(s *ExecutorService) { s.builtins = t }
}

// WithPolicy sets the capability policy. If not set, a permissive policy
// (allow all) is used.
func WithPolicy(p *dist.CapabilityPolicy) ServiceOption {
	return func(s *ExecutorService) { s.policy = p }
}

// WithForeignResolver sets the resolver used for CALLX.
func WithForeignResolver(r *vm.ForeignResolver) ServiceOption {
	return func(s *ExecutorService) { s.foreign = r }
}

// WithMaxModuleSize bounds the size of a submitted module.
func WithMaxModuleSize(n int) ServiceOption {
	return func(s *ExecutorService) { s.maxModuleSize = n }
}

// NewExecutorService creates the service. pool bounds concurrent runs.
func NewExecutorService(pool *Pool, opts ...ServiceOption) *ExecutorService {
	s := &ExecutorService{
		cfg:           vm.DefaultConfig(),
		builtins:      dist.Builtins(),
		policy:        dist.NewPermissivePolicy(),
		pool:          pool,
		maxModuleSize: DefaultMaxModuleSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.builtins.Freeze()
	return s
}

// Run decodes, vets and executes one module. Errors carry a connect.Code:
// InvalidArgument for an undecodable module, PermissionDenied when the
// capability policy rejects it, Internal for a VM failure.
func (s *ExecutorService) Run(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	data := req.GetValue()
	if len(data) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("module bytes are required"))
	}
	if len(data) > s.maxModuleSize {
		return nil, connect.NewError(connect.CodeResourceExhausted,
			fmt.Errorf("module is %d bytes, limit is %d", len(data), s.maxModuleSize))
	}

	m, err := vm.LoadModule(data)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	m.Name = "main"

	caps, err := dist.ScanCapabilities(m, s.builtins)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.policy.Check(caps); err != nil {
		log.Noticef("rejected module: %s", err)
		return nil, connect.NewError(connect.CodePermissionDenied, err)
	}

	result, err := s.pool.Do(ctx, func() (interface{}, error) {
		return s.execute(m)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, connect.NewError(connect.CodeDeadlineExceeded, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, connect.NewError(connect.CodeCanceled, err)
		}
		var ce *connect.Error
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return result.(*structpb.Struct), nil
}

// execute runs m on a new executor and builds the response.
func (s *ExecutorService) execute(m *vm.Module) (*structpb.Struct, error) {
	var out bytes.Buffer
	opts := []vm.Option{vm.WithBuiltins(s.builtins), vm.WithOutput(&out)}
	if s.foreign != nil {
		opts = append(opts, vm.WithForeignResolver(s.foreign))
	}
	ex := vm.NewExecutor(s.cfg, opts...)
	defer ex.Close()

	v, runErr := ex.Run(m)
	fields := map[string]interface{}{"output": out.String()}

	var ue *vm.UncaughtException
	var ee *vm.ExitError
	switch {
	case runErr == nil:
		fields["result"] = v.String()
		v.Release()
	case errors.As(runErr, &ue):
		report := dist.NewReport(ue)
		trace := make([]interface{}, 0, len(report.Trace))
		for _, t := range report.Trace {
			trace = append(trace, map[string]interface{}{"module": t.Module, "pc": t.PC})
		}
		fields["exception"] = map[string]interface{}{
			"name":  report.Name,
			"info":  report.Info,
			"code":  report.Code,
			"trace": trace,
		}
		log.Debugf("module raised %s", ue.Name)
	case errors.As(runErr, &ee):
		fields["exit"] = ee.Code
	default:
		// bytecode errors from CALLMF targets and internal errors
		log.Errorf("run failed: %s", runErr)
		return nil, connect.NewError(connect.CodeInternal, runErr)
	}

	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return resp, nil
}

// ---------------------------------------------------------------------------
// Transport bindings
// ---------------------------------------------------------------------------

// runConnect adapts Run to connect.NewUnaryHandler.
func (s *ExecutorService) runConnect(ctx context.Context, req *connect.Request[wrapperspb.BytesValue]) (*connect.Response[structpb.Struct], error) {
	resp, err := s.Run(ctx, req.Msg)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(resp), nil
}

// NewConnectHandler returns the mount path and handler serving Run over the
// Connect, gRPC and gRPC-Web protocols.
func (s *ExecutorService) NewConnectHandler(opts ...connect.HandlerOption) (string, *connect.Handler) {
	return RunProcedure, connect.NewUnaryHandler(RunProcedure, s.runConnect, opts...)
}

// executorServer is the handler type checked by grpc.Server.RegisterService.
type executorServer interface {
	Run(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
}

func runHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req interface{}) (interface{}, error) {
		resp, err := srv.(executorServer).Run(ctx, req.(*wrapperspb.BytesValue))
		return resp, grpcError(err)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunProcedure}
	return interceptor(ctx, in, info, call)
}

// grpcError converts a connect error to a status error. The two share the
// gRPC code numbering.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return status.Error(codes.Code(ce.Code()), ce.Message())
	}
	return status.Error(codes.Internal, err.Error())
}

// ExecutorServiceDesc describes neon.v1.Executor for grpc.Server.
var ExecutorServiceDesc = grpc.ServiceDesc{
	ServiceName: ExecutorServiceName,
	HandlerType: (*executorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "neon/v1/executor.proto",
}

// RegisterGRPC registers the service on a gRPC server.
func (s *ExecutorService) RegisterGRPC(gs grpc.ServiceRegistrar) {
	gs.RegisterService(&ExecutorServiceDesc, s)
}

package server

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/chazu/neon/vm/dist"
)

// Client calls a remote executor with the Connect protocol.
type Client struct {
	run *connect.Client[wrapperspb.BytesValue, structpb.Struct]
}

// NewClient creates a client for the server at baseURL, for example
// "http://localhost:4650".
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	return &Client{
		run: connect.NewClient[wrapperspb.BytesValue, structpb.Struct](httpClient, baseURL+RunProcedure, opts...),
	}
}

// Run submits an encoded module.
func (c *Client) Run(ctx context.Context, module []byte) (*Outcome, error) {
	resp, err := c.run.CallUnary(ctx, connect.NewRequest(wrapperspb.Bytes(module)))
	if err != nil {
		return nil, err
	}
	return DecodeOutcome(resp.Msg)
}

// GRPCClient calls a remote executor over a gRPC connection.
type GRPCClient struct {
	cc grpc.ClientConnInterface
}

func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

// Run submits an encoded module.
func (c *GRPCClient) Run(ctx context.Context, module []byte, opts ...grpc.CallOption) (*Outcome, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RunProcedure, wrapperspb.Bytes(module), out, opts...); err != nil {
		return nil, err
	}
	return DecodeOutcome(out)
}

// Outcome is a decoded Run response. Exactly one of Result, Exception and
// Exited describes how the run ended.
type Outcome struct {
	Output    string
	Result    string
	Exception *dist.Report
	Exited    bool
	ExitCode  int
}

// DecodeOutcome reads the fields documented on ExecutorService.
func DecodeOutcome(st *structpb.Struct) (*Outcome, error) {
	f := st.GetFields()
	o := &Outcome{Output: f["output"].GetStringValue()}

	if v, ok := f["exit"]; ok {
		o.Exited = true
		o.ExitCode = int(v.GetNumberValue())
		return o, nil
	}
	if v, ok := f["exception"]; ok {
		e := v.GetStructValue().GetFields()
		r := &dist.Report{
			Kind: dist.ReportUncaught,
			Name: e["name"].GetStringValue(),
			Info: e["info"].GetStringValue(),
			Code: e["code"].GetStringValue(),
		}
		for _, t := range e["trace"].GetListValue().GetValues() {
			tf := t.GetStructValue().GetFields()
			r.Trace = append(r.Trace, dist.TraceFrame{
				Module: tf["module"].GetStringValue(),
				PC:     int(tf["pc"].GetNumberValue()),
			})
		}
		r.Message = fmt.Sprintf("Unhandled exception %s (%s) (code %s)", r.Name, r.Info, r.Code)
		o.Exception = r
		return o, nil
	}
	v, ok := f["result"]
	if !ok {
		return nil, fmt.Errorf("server: response has no result, exception or exit")
	}
	o.Result = v.GetStringValue()
	return o, nil
}

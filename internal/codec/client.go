package codec

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region wire
// ServiceName is the fully-qualified gRPC service exposed by the inference process.
const ServiceName = "mqag.v1.InferenceService"

// Full method names. Requests and responses are google.protobuf.Struct.
const (
	MethodGenerate             = "/" + ServiceName + "/Generate"
	MethodAnswerMultipleChoice = "/" + ServiceName + "/AnswerMultipleChoice"
	MethodScoreAnswerability   = "/" + ServiceName + "/ScoreAnswerability"
)

// Model selects which seq2seq generator the Generate RPC runs.
type Model string

const (
	ModelQuestionAnswer Model = "question_answer"
	ModelDistractor     Model = "distractor"
)

// ErrMalformedResponse is returned when a response is missing a field or
// carries it with the wrong type.
var ErrMalformedResponse = errors.New("malformed inference response")

// #endregion wire

// #region client-struct
// Client wraps the gRPC connection to the inference service.
type Client struct {
	conn         *grpc.ClientConn
	cc           grpc.ClientConnInterface
	maxNewTokens int
	maxLength    int
	logger       *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithMaxNewTokens bounds generation length.
func WithMaxNewTokens(n int) Option {
	return func(c *Client) { c.maxNewTokens = n }
}

// WithMaxLength sets the answering/answerability truncation length.
func WithMaxLength(n int) Option {
	return func(c *Client) { c.maxLength = n }
}

// WithLogger attaches a logger for failed calls.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// #endregion client-struct

// #region constructor
// NewClient connects to the inference gRPC server. Extra dial options (for
// example a metrics interceptor) are appended after the insecure transport.
func NewClient(addr string, dialOpts []grpc.DialOption, opts ...Option) (*Client, error) {
	all := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, dialOpts...)
	conn, err := grpc.NewClient(addr, all...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	c := NewClientWithConn(conn, opts...)
	c.conn = conn
	return c, nil
}

// NewClientWithConn creates a Client over an existing connection.
// Used for testing without a real server.
func NewClientWithConn(cc grpc.ClientConnInterface, opts ...Option) *Client {
	c := &Client{
		cc:           cc,
		maxNewTokens: 128,
		maxLength:    4096,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection if the client owns one.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region generate
// Generate runs one sampled decode of the given seq2seq model and returns the
// raw decoded text, special tokens included.
func (c *Client) Generate(ctx context.Context, model Model, input string) (string, error) {
	resp, err := c.invoke(ctx, MethodGenerate, map[string]any{
		"model":          string(model),
		"input":          input,
		"max_new_tokens": c.maxNewTokens,
		"do_sample":      true,
	})
	if err != nil {
		return "", fmt.Errorf("generate %s rpc: %w", model, err)
	}
	text, ok := resp.GetFields()["text"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("generate %s rpc: response has no text: %w", model, ErrMalformedResponse)
	}
	return text.StringValue, nil
}

// TextModel binds Generate to a single model.
func (c *Client) TextModel(model Model) *TextModel {
	return &TextModel{client: c, model: model}
}

// TextModel is a seq2seq generator reached through the inference service.
type TextModel struct {
	client *Client
	model  Model
}

// Generate implements the text-model contract used by question generation.
func (m *TextModel) Generate(ctx context.Context, input string) (string, error) {
	return m.client.Generate(ctx, m.model, input)
}

// #endregion generate

// #region answer
// ScoreChoices returns one raw logit per (first, second) pair from the
// multiple-choice model.
func (c *Client) ScoreChoices(ctx context.Context, pairs [][2]string) ([]float64, error) {
	list := make([]any, len(pairs))
	for i, p := range pairs {
		list[i] = map[string]any{"first": p[0], "second": p[1]}
	}
	resp, err := c.invoke(ctx, MethodAnswerMultipleChoice, map[string]any{
		"pairs":      list,
		"max_length": c.maxLength,
	})
	if err != nil {
		return nil, fmt.Errorf("answer rpc: %w", err)
	}

	list, ok := resp.GetFields()["logits"].GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, fmt.Errorf("answer rpc: response has no logits: %w", ErrMalformedResponse)
	}
	values := list.ListValue.GetValues()
	logits := make([]float64, len(values))
	for i, v := range values {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("answer rpc: logit %d is not a number: %w", i, ErrMalformedResponse)
		}
		logits[i] = n.NumberValue
	}
	return logits, nil
}

// #endregion answer

// #region answerability
// ScoreAnswerability returns the raw answerability logit for a combined
// question/context input.
func (c *Client) ScoreAnswerability(ctx context.Context, input string) (float64, error) {
	resp, err := c.invoke(ctx, MethodScoreAnswerability, map[string]any{
		"input":      input,
		"max_length": c.maxLength,
	})
	if err != nil {
		return 0, fmt.Errorf("answerability rpc: %w", err)
	}
	logit, ok := resp.GetFields()["logit"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("answerability rpc: response has no numeric logit: %w", ErrMalformedResponse)
	}
	return logit.NumberValue, nil
}

// #endregion answerability

// #region invoke
func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, method, req, resp); err != nil {
		c.logger.Warn("inference call failed", zap.String("method", method), zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// #endregion invoke

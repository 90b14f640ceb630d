package entityqueue

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/duh-rpc/duh-go"
	v1 "github.com/duh-rpc/duh-go/proto/v1"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/kapetan-io/tackle/set"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type ListOptions struct {
	Pivot string
	Limit int
}

type ClientOptions struct {
	// Users can provide their own http client with TLS config if needed
	Client *http.Client
	// The address of endpoint in the format `<scheme>://<host>:<port>`
	Endpoint string
	// Actor is the uid of the user on whose behalf requests are made
	Actor string
}

type Client struct {
	client *duh.Client
	opts   ClientOptions
}

// NewClient creates a new instance of the entityqueue client
func NewClient(opts ClientOptions) (*Client, error) {
	set.Default(&opts.Client, &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     2_000,
			MaxIdleConns:        2_000,
			MaxIdleConnsPerHost: 2_000,
			IdleConnTimeout:     60 * time.Second,
		},
	})

	if len(opts.Endpoint) == 0 {
		return nil, errors.New("opts.Endpoint is empty; must provide an http endpoint")
	}

	return &Client{
		client: &duh.Client{
			Client: opts.Client,
		},
		opts: opts,
	}, nil
}

// WithActor returns a copy of the client which makes requests on behalf of the actor
func (c *Client) WithActor(uid string) *Client {
	opts := c.opts
	opts.Actor = uid
	return &Client{client: c.client, opts: opts}
}

// -------------------------------------------------
// API to manage queues
// -------------------------------------------------

func (c *Client) QueuesCreate(ctx context.Context, req *transport.QueueInfo, res *transport.QueueInfo) error {
	return c.do(ctx, transport.RPCQueuesCreate, req, res)
}

func (c *Client) QueuesUpdate(ctx context.Context, req *transport.QueueInfo, res *transport.QueueInfo) error {
	return c.do(ctx, transport.RPCQueuesUpdate, req, res)
}

func (c *Client) QueuesDelete(ctx context.Context, req *transport.QueuesDeleteRequest) error {
	return c.do(ctx, transport.RPCQueuesDelete, req, nil)
}

func (c *Client) QueuesInfo(ctx context.Context, req *transport.QueuesInfoRequest, res *transport.QueueInfo) error {
	return c.do(ctx, transport.RPCQueuesInfo, req, res)
}

func (c *Client) QueuesList(ctx context.Context, res *transport.QueuesListResponse, opts *ListOptions) error {
	var req transport.QueuesListRequest
	if opts != nil {
		req.Limit = opts.Limit
		req.Pivot = opts.Pivot
	}
	return c.do(ctx, transport.RPCQueuesList, &req, res)
}

// QueuesListByTargetType lists every queue which references items of the entity type
func (c *Client) QueuesListByTargetType(ctx context.Context, targetType string, res *transport.QueuesListResponse) error {
	return c.do(ctx, transport.RPCQueuesList, &transport.QueuesListRequest{TargetType: targetType}, res)
}

// -------------------------------------------------
// API to manage subqueues
// -------------------------------------------------

func (c *Client) SubqueuesList(ctx context.Context, queue string, res *transport.SubqueuesListResponse,
	opts *ListOptions) error {
	req := transport.SubqueuesListRequest{Queue: queue}
	if opts != nil {
		req.Limit = opts.Limit
		req.Pivot = opts.Pivot
	}
	return c.do(ctx, transport.RPCSubqueuesList, &req, res)
}

func (c *Client) SubqueuesCreate(ctx context.Context, req *transport.Subqueue, res *transport.Subqueue) error {
	return c.do(ctx, transport.RPCSubqueuesCreate, req, res)
}

func (c *Client) SubqueuesDelete(ctx context.Context, req *transport.SubqueuesDeleteRequest) error {
	return c.do(ctx, transport.RPCSubqueuesDelete, req, nil)
}

// -------------------------------------------------
// API to inspect handlers, entity types and modules
// -------------------------------------------------

func (c *Client) HandlersList(ctx context.Context, res *transport.HandlersListResponse) error {
	return c.do(ctx, transport.RPCHandlersList, struct{}{}, res)
}

func (c *Client) EntityTypesList(ctx context.Context, res *transport.EntityTypesListResponse) error {
	return c.do(ctx, transport.RPCEntityTypesList, struct{}{}, res)
}

func (c *Client) ModulesUninstall(ctx context.Context, req *transport.ModulesUninstallRequest,
	res *transport.ModulesUninstallResponse) error {
	return c.do(ctx, transport.RPCModulesUninstall, req, res)
}

func (c *Client) CacheChecksum(ctx context.Context, req *transport.CacheChecksumRequest,
	res *transport.CacheChecksumResponse) error {
	return c.do(ctx, transport.RPCCacheChecksum, req, res)
}

// do sends the request as a protobuf encoded Struct. If res is nil the reply is expected to be
// a duh v1.Reply
func (c *Client) do(ctx context.Context, path string, req any, res any) error {
	s, err := transport.ToStruct(req)
	if err != nil {
		return duh.NewClientError("while converting request payload: %w", err, nil)
	}

	payload, err := proto.Marshal(s)
	if err != nil {
		return duh.NewClientError("while marshaling request payload: %w", err, nil)
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s%s", c.opts.Endpoint, path), bytes.NewReader(payload))
	if err != nil {
		return duh.NewClientError("", err, nil)
	}

	r.Header.Set("Content-Type", duh.ContentTypeProtoBuf)
	if c.opts.Actor != "" {
		r.Header.Set(transport.HeaderActor, c.opts.Actor)
	}

	if res == nil {
		var reply v1.Reply
		return c.client.Do(r, &reply)
	}

	var reply structpb.Struct
	if err := c.client.Do(r, &reply); err != nil {
		return err
	}
	if err := transport.FromStruct(&reply, res); err != nil {
		return duh.NewClientError("while converting response payload: %w", err, nil)
	}
	return nil
}

func WithNoTLS(address string) ClientOptions {
	return ClientOptions{
		Endpoint: fmt.Sprintf("http://%s", address),
		Client: &http.Client{
			Transport: &http.Transport{
				MaxConnsPerHost:     2_000,
				MaxIdleConns:        2_000,
				MaxIdleConnsPerHost: 2_000,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}
}

func WithTLS(tls *tls.Config, address string) ClientOptions {
	return ClientOptions{
		Endpoint: fmt.Sprintf("https://%s", address),
		Client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:     tls,
				MaxConnsPerHost:     2_000,
				MaxIdleConns:        2_000,
				MaxIdleConnsPerHost: 2_000,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}
}

// CollectIDs returns the ids of the queues in the list response
func CollectIDs(items []transport.QueueInfo) []string {
	var result []string
	for _, v := range items {
		result = append(result, v.ID)
	}
	return result
}

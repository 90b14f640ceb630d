/*
Copyright 2024 Derrick J. Wippler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	runtimepprof "runtime/pprof"
	"strings"

	"github.com/duh-rpc/duh-go"
	v1 "github.com/duh-rpc/duh-go/proto/v1"
	"github.com/kapetan-io/errors"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	RPCQueuesCreate = "/v1/queues.create"
	RPCQueuesUpdate = "/v1/queues.update"
	RPCQueuesDelete = "/v1/queues.delete"
	RPCQueuesInfo   = "/v1/queues.info"
	RPCQueuesList   = "/v1/queues.list"

	RPCSubqueuesList   = "/v1/subqueues.list"
	RPCSubqueuesCreate = "/v1/subqueues.create"
	RPCSubqueuesDelete = "/v1/subqueues.delete"

	RPCHandlersList     = "/v1/handlers.list"
	RPCEntityTypesList  = "/v1/entity_types.list"
	RPCModulesUninstall = "/v1/modules.uninstall"
	RPCCacheChecksum    = "/v1/cache.checksum"

	PathMetrics = "/metrics"
	PathHealth  = "/health"
	PathPProf   = "/pprof/"

	// HeaderActor is the uid of the user on whose behalf the request is made
	HeaderActor = "X-Entityqueue-Actor"
	// DefaultActor is used when a request does not include HeaderActor
	DefaultActor = "anonymous"
)

type HTTPHandler struct {
	duration   *prometheus.SummaryVec
	metrics    http.Handler
	log        *slog.Logger
	service    Service
	maxReqSize int64
}

func NewHTTPHandler(s Service, metrics http.Handler, maxReqSize int64, log *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		duration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "http_handler_duration",
			Help: "The timings of http requests handled by the service",
			Objectives: map[float64]float64{
				0.5:  0.05,
				0.99: 0.001,
			},
		}, []string{"path"}),
		log:        log.With("code.namespace", "HTTPHandler"),
		maxReqSize: maxReqSize,
		metrics:    metrics,
		service:    s,
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer prometheus.NewTimer(h.duration.WithLabelValues(r.URL.Path)).ObserveDuration()
	ctx := r.Context()

	switch {
	case r.URL.Path == PathMetrics:
		h.metrics.ServeHTTP(w, r)
		return
	case r.URL.Path == PathHealth:
		h.Health(ctx, w)
		return
	case strings.HasPrefix(r.URL.Path, PathPProf):
		h.PProf(w, r)
		return
	}

	if r.Method != http.MethodPost {
		duh.ReplyWithCode(w, r, duh.CodeBadRequest, nil,
			fmt.Sprintf("http method '%s' not allowed; only POST", r.Method))
		return
	}

	switch r.URL.Path {
	case RPCQueuesCreate:
		h.QueuesCreate(ctx, w, r)
		return
	case RPCQueuesUpdate:
		h.QueuesUpdate(ctx, w, r)
		return
	case RPCQueuesDelete:
		h.QueuesDelete(ctx, w, r)
		return
	case RPCQueuesInfo:
		h.QueuesInfo(ctx, w, r)
		return
	case RPCQueuesList:
		h.QueuesList(ctx, w, r)
		return
	case RPCSubqueuesList:
		h.SubqueuesList(ctx, w, r)
		return
	case RPCSubqueuesCreate:
		h.SubqueuesCreate(ctx, w, r)
		return
	case RPCSubqueuesDelete:
		h.SubqueuesDelete(ctx, w, r)
		return
	case RPCHandlersList:
		h.HandlersList(ctx, w, r)
		return
	case RPCEntityTypesList:
		h.EntityTypesList(ctx, w, r)
		return
	case RPCModulesUninstall:
		h.ModulesUninstall(ctx, w, r)
		return
	case RPCCacheChecksum:
		h.CacheChecksum(ctx, w, r)
		return
	}
	duh.ReplyWithCode(w, r, duh.CodeNotImplemented, nil, "no such method; "+r.URL.Path)
}

func (h *HTTPHandler) QueuesCreate(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req QueueInfo
	if err := h.readRequest(r, &req); err != nil {
		h.replyError(w, r, err)
		return
	}

	var resp QueueInfo
	if err := h.service.QueuesCreate(ctx, actor(r), &req, &resp); err != nil {
		h.replyError(w, r, err)
		return
	}
	h.reply(w, r, &resp)
}

func (h *HTTPHandler) QueuesUpdate(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req QueueInfo
	if err := h.readRequest(r, &req); err != nil {
		h.replyError(w, r, err)
		return
	}

	var resp QueueInfo
	if err := h.service.QueuesUpdate(ctx, actor(r), &req, &resp); err != nil {
		h.replyError(w, r, err)
		return
	}
	h.reply(w, r, &resp)
}

func (h *HTTPHandler) QueuesDelete(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req QueuesDeleteRequest
	if err := h.readRequest(r, &req); err != nil {
		h.replyError(w, r, err)
		return
	}

	if err := h.service.QueuesDelete(ctx, actor(r), &req); err != nil {
		h.replyError(w, r, err)
		return
	}
	duh.Reply(w, r, duh.CodeOK, &v1.Reply{Code: duh.CodeOK})
}

func (h *HTTPHandler) QueuesInfo(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req QueuesInfoRequest
	if err := h.readRequest(r, &req); err != nil {
		h.replyError(w, r, err)
		return
	}

	var resp QueueInfo
	if err := h.service.QueuesInfo(ctx, actor(r), &req, &resp); err != nil {
		h.replyError(w, r, err)
		return
	}
	h.reply(w, r, &resp)
}

func (h *HTTPHandler) QueuesList(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req QueuesListRequest
	if err := h.readRequest(r, &req); err != nil {
		h.replyError(w, r, err)
		return
	}

	var resp QueuesListResponse
	if err := h.service.QueuesList(ctx, actor(r), &req, &resp); err != nil {
		h.replyError(w, r, err)
		return
	}
	h.reply(w, r, &resp)
}

func (h *HTTPHandler) SubqueuesList(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req SubqueuesListRequest
	if err := h.readRequest(r, &req); err != nil {
		h.replyError(w, r, err)
		return
	}

	var resp SubqueuesListResponse
	if err := h.service.SubqueuesList(ctx, &req, &resp); err != nil {
		h.replyError(w, r, err)
		return
	}
	h.reply(w, r, &resp)
}

func (h *HTTPHandler) SubqueuesCreate(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req Subqueue
	if err := h.readRequest(r, &req); err != nil {
		h.replyError(w, r, err)
		return
	}

	var resp Subqueue
	if err := h.service.SubqueuesCreate(ctx, actor(r), &req, &resp); err != nil {
		h.replyError(w, r, err)
		return
	}
	h.reply(w, r, &resp)
}

func (h *HTTPHandler) SubqueuesDelete(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req SubqueuesDeleteRequest
	if err := h.readRequest(r, &req); err != nil {
		h.replyError(w, r, err)
		return
	}

	if err := h.service.SubqueuesDelete(ctx, &req); err != nil {
		h.replyError(w, r, err)
		return
	}
	duh.Reply(w, r, duh.CodeOK, &v1.Reply{Code: duh.CodeOK})
}

func (h *HTTPHandler) HandlersList(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var resp HandlersListResponse
	if err := h.service.HandlersList(ctx, &resp); err != nil {
		h.replyError(w, r, err)
		return
	}
	h.reply(w, r, &resp)
}

func (h *HTTPHandler) EntityTypesList(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var resp EntityTypesListResponse
	if err := h.service.EntityTypesList(ctx, &resp); err != nil {
		h.replyError(w, r, err)
		return
	}
	h.reply(w, r, &resp)
}

func (h *HTTPHandler) ModulesUninstall(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req ModulesUninstallRequest
	if err := h.readRequest(r, &req); err != nil {
		h.replyError(w, r, err)
		return
	}

	var resp ModulesUninstallResponse
	if err := h.service.ModulesUninstall(ctx, &req, &resp); err != nil {
		h.replyError(w, r, err)
		return
	}
	h.reply(w, r, &resp)
}

func (h *HTTPHandler) CacheChecksum(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	var req CacheChecksumRequest
	if err := h.readRequest(r, &req); err != nil {
		h.replyError(w, r, err)
		return
	}

	var resp CacheChecksumResponse
	if err := h.service.CacheChecksum(ctx, &req, &resp); err != nil {
		h.replyError(w, r, err)
		return
	}
	h.reply(w, r, &resp)
}

// Health replies with the health check response format described by draft-inadarei-api-health-check-06
func (h *HTTPHandler) Health(ctx context.Context, w http.ResponseWriter) {
	resp, err := h.service.Health(ctx)
	if err != nil {
		resp = &HealthResponse{Status: HealthStatusFail, Output: err.Error()}
	}

	code := http.StatusOK
	if resp.Status == HealthStatusFail {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/health+json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("while encoding health response", "error", err)
	}
}

// PProf serves the runtime profile named by the last path element, IE: /pprof/heap
func (h *HTTPHandler) PProf(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, PathPProf)
	if name == "" || strings.Contains(name, "/") || runtimepprof.Lookup(name) == nil {
		http.NotFound(w, r)
		return
	}
	pprof.Handler(name).ServeHTTP(w, r)
}

func (h *HTTPHandler) readRequest(r *http.Request, v any) error {
	var s structpb.Struct
	if err := duh.ReadRequest(r, &s, h.maxReqSize); err != nil {
		return err
	}
	return FromStruct(&s, v)
}

func (h *HTTPHandler) reply(w http.ResponseWriter, r *http.Request, v any) {
	s, err := ToStruct(v)
	if err != nil {
		h.replyError(w, r, err)
		return
	}
	duh.Reply(w, r, duh.CodeOK, s)
}

// replyError logs errors which are not intended for the client before replying
func (h *HTTPHandler) replyError(w http.ResponseWriter, r *http.Request, err error) {
	var d duh.Error
	if !errors.As(err, &d) {
		h.log.LogAttrs(r.Context(), slog.LevelError, "internal error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	duh.ReplyError(w, r, err)
}

func actor(r *http.Request) string {
	if uid := strings.TrimSpace(r.Header.Get(HeaderActor)); uid != "" {
		return uid
	}
	return DefaultActor
}

// Describe fetches prometheus metrics to be registered
func (h *HTTPHandler) Describe(ch chan<- *prometheus.Desc) {
	h.duration.Describe(ch)
}

// Collect fetches metrics from the server for use by prometheus
func (h *HTTPHandler) Collect(ch chan<- prometheus.Metric) {
	h.duration.Collect(ch)
}

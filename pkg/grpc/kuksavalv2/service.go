package kuksavalv2

import (
	"context"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/brokererr"
	"github.com/sdv-broker/databroker/internal/facade"
	"github.com/sdv-broker/databroker/internal/pathglob"
	"github.com/sdv-broker/databroker/internal/subscription"
	"github.com/sdv-broker/databroker/internal/telemetry"
	"github.com/sdv-broker/databroker/pkg/grpc/kuksaval"
)

// serviceName is the fully qualified gRPC service name, matching the
// kuksa.val.v2 VAL service.
const serviceName = "kuksa.val.v2.VAL"

// server implements the kuksa.val.v2 VAL service against a Facade.
type server struct {
	f *facade.Facade
}

// Register installs the kuksa.val.v2 VAL service onto s. As with v1, the
// auth interceptors must already be wired into s at grpc.NewServer
// construction time (see kuksaval.ServerOptions).
func Register(s *grpc.Server, f *facade.Facade) {
	s.RegisterService(&serviceDesc, &server{f: f})
}

func (s *server) GetValue(ctx context.Context, req *GetValueRequest) (*GetValueResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "kuksavalv2.get_value")
	defer span.End()
	perm := kuksaval.PermissionFromContext(ctx)

	entry, err := s.f.GetByPath(perm, req.Path)
	if err != nil {
		return nil, kuksaval.ToStatus(err)
	}
	return &GetValueResponse{Datapoint: toDatapoint(entry.Datapoint)}, nil
}

func (s *server) GetValues(ctx context.Context, req *GetValuesRequest) (*GetValuesResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "kuksavalv2.get_values")
	defer span.End()
	perm := kuksaval.PermissionFromContext(ctx)

	resp := &GetValuesResponse{Datapoints: make([]*Datapoint, len(req.Paths))}
	for i, path := range req.Paths {
		entry, err := s.f.GetByPath(perm, path)
		if err != nil {
			resp.Errors = append(resp.Errors, datapointError(path, err))
			continue
		}
		resp.Datapoints[i] = toDatapoint(entry.Datapoint)
	}
	return resp, nil
}

func (s *server) ListMetadata(ctx context.Context, req *ListMetadataRequest) (*ListMetadataResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "kuksavalv2.list_metadata")
	defer span.End()
	perm := kuksaval.PermissionFromContext(ctx)

	var pattern *pathglob.Pattern
	if req.Root != "" {
		p, err := pathglob.Compile(req.Root)
		if err != nil {
			return nil, kuksaval.ToStatus(err)
		}
		pattern = p
	}

	entries := s.f.ListMetadata(perm, pattern)
	resp := &ListMetadataResponse{Metadata: make([]Metadata, 0, len(entries))}
	for _, e := range entries {
		resp.Metadata = append(resp.Metadata, Metadata{
			ID:          uint32(e.ID),
			Path:        e.Path,
			DataType:    e.DataType.String(),
			EntryType:   entryTypeName(e.EntryType),
			ChangeType:  changeTypeName(e.ChangeType),
			Description: e.Description,
			Unit:        e.Unit,
		})
	}
	return resp, nil
}

func (s *server) Actuate(ctx context.Context, req *ActuateRequest) (*ActuateResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "kuksavalv2.actuate")
	defer span.End()
	perm := kuksaval.PermissionFromContext(ctx)

	id, ok := s.f.ResolveID(req.Path)
	if !ok {
		return nil, kuksaval.ToStatus(notFoundErr(req.Path))
	}
	v, err := kuksaval.ToValue(req.Value)
	if err != nil {
		return nil, kuksaval.ToStatus(err)
	}
	if _, err := s.f.Actuate(perm, []facade.ActuationRequest{{ID: id, Value: v}}); err != nil {
		return nil, kuksaval.ToStatus(err)
	}
	return &ActuateResponse{}, nil
}

func (s *server) BatchActuate(ctx context.Context, req *BatchActuateRequest) (*BatchActuateResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "kuksavalv2.batch_actuate")
	defer span.End()
	perm := kuksaval.PermissionFromContext(ctx)

	reqs := make([]facade.ActuationRequest, 0, len(req.Actuate))
	for _, a := range req.Actuate {
		id, ok := s.f.ResolveID(a.Path)
		if !ok {
			return nil, kuksaval.ToStatus(notFoundErr(a.Path))
		}
		v, err := kuksaval.ToValue(a.Value)
		if err != nil {
			return nil, kuksaval.ToStatus(err)
		}
		reqs = append(reqs, facade.ActuationRequest{ID: id, Value: v})
	}
	if _, err := s.f.Actuate(perm, reqs); err != nil {
		return nil, kuksaval.ToStatus(err)
	}
	return &BatchActuateResponse{}, nil
}

func (s *server) GetServerInfo(ctx context.Context, _ *ServerInfoRequest) (*ServerInfoResponse, error) {
	return &ServerInfoResponse{Name: "databroker", Version: "1.0", Commit: "unknown"}, nil
}

func (s *server) Subscribe(req *SubscribeRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	perm := kuksaval.PermissionFromContext(ctx)

	entries := make(map[broker.ID]broker.FieldSet, len(req.Paths))
	pathByID := make(map[broker.ID]string, len(req.Paths))
	for _, path := range req.Paths {
		id, ok := s.f.ResolveID(path)
		if !ok {
			continue
		}
		entries[id] = broker.NewFieldSet(broker.FieldDatapoint, broker.FieldActuatorTarget)
		pathByID[id] = path
	}

	sub, err := s.f.SubscribeChanges(ctx, perm, entries, 0)
	if err != nil {
		return kuksaval.ToStatus(err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-sub.Chan():
			if !ok {
				return nil
			}
			resp := &SubscribeResponse{Entries: make(map[string]*Datapoint, len(batch.Updates))}
			for _, u := range batch.Updates {
				path, known := pathByID[u.ID]
				if !known || u.Update.Datapoint == nil {
					continue
				}
				resp.Entries[path] = toDatapoint(*u.Update.Datapoint)
			}
			if len(resp.Entries) == 0 {
				continue
			}
			if err := stream.SendMsg(resp); err != nil {
				return err
			}
		}
	}
}

// OpenProviderStream implements the bidirectional RPC a provider uses to
// claim actuator ownership and publish sensor/attribute readings
// (SPEC_FULL.md §4; spec.md §4.6, §6).
func (s *server) OpenProviderStream(stream grpc.ServerStream) error {
	ctx := stream.Context()
	perm := kuksaval.PermissionFromContext(ctx)
	handle := &providerHandle{stream: stream, f: s.f}
	handle.available.Store(true)

	for {
		req := new(ProviderStreamRequest)
		if err := stream.RecvMsg(req); err != nil {
			handle.available.Store(false)
			return nil
		}

		switch {
		case req.ProvideActuation != nil:
			ids := make([]broker.ID, 0, len(req.ProvideActuation.ActuatorPaths))
			for _, p := range req.ProvideActuation.ActuatorPaths {
				if id, ok := s.f.ResolveID(p); ok {
					ids = append(ids, id)
				}
			}
			if _, err := s.f.SubscribeActuation(ctx, perm, ids, handle); err != nil {
				_ = stream.SendMsg(&ProviderStreamResponse{ProvideActuationStatus: statusOf(err)})
				continue
			}
			_ = stream.SendMsg(&ProviderStreamResponse{ProvideActuationStatus: &StatusResponse{Code: "ok"}})

		case req.PublishValues != nil:
			batch := make([]broker.BatchEntry, 0, len(req.PublishValues.Entries))
			pathOf := make(map[broker.ID]string, len(req.PublishValues.Entries))
			var derrs []DatapointError
			for path, dp := range req.PublishValues.Entries {
				id, ok := s.f.ResolveID(path)
				if !ok {
					derrs = append(derrs, datapointError(path, notFoundErr(path)))
					continue
				}
				v, err := kuksaval.ToValue(dp.Value)
				if err != nil {
					derrs = append(derrs, datapointError(path, brokererr.New(brokererr.InvalidInput, "%v", err)))
					continue
				}
				batch = append(batch, broker.BatchEntry{ID: id, Update: &broker.EntryUpdate{Datapoint: &broker.Datapoint{Timestamp: time.Now(), Value: v}}})
				pathOf[id] = path
			}
			_, errs := s.f.UpdateEntries(perm, batch)
			for id, err := range errs {
				derrs = append(derrs, datapointError(pathOf[id], err))
			}
			_ = stream.SendMsg(&ProviderStreamResponse{PublishValuesStatus: &PublishValuesStatusMsg{Errors: derrs}})
		}
	}
}

// providerHandle adapts an OpenProviderStream's server-side stream to the
// subscription.Provider capability set (spec.md §9 "Polymorphism" — an
// interface, never inheritance).
type providerHandle struct {
	stream    grpc.ServerStream
	f         *facade.Facade
	available atomic.Bool
}

func (p *providerHandle) Actuate(batch []subscription.ActuationChange) ([]subscription.ActuationResult, error) {
	reqs := make([]ActuateRequest, len(batch))
	for i, c := range batch {
		path, _ := p.f.PathOf(c.ID)
		reqs[i] = ActuateRequest{Path: path, Value: kuksaval.FromValue(c.Value)}
	}
	if err := p.stream.SendMsg(&ProviderStreamResponse{BatchActuateStream: &BatchActuateStreamMsg{Actuate: reqs}}); err != nil {
		p.available.Store(false)
		return nil, err
	}
	results := make([]subscription.ActuationResult, len(batch))
	for i, c := range batch {
		results[i] = subscription.ActuationResult{ID: c.ID}
	}
	return results, nil
}

func (p *providerHandle) IsAvailable() bool { return p.available.Load() }

func toDatapoint(dp broker.Datapoint) *Datapoint {
	return &Datapoint{Value: kuksaval.FromValue(dp.Value), Timestamp: dp.Timestamp.Format(time.RFC3339Nano)}
}

func datapointError(path string, err error) DatapointError {
	return DatapointError{Path: path, Code: kuksaval.ToStatus(err).Error(), Message: err.Error()}
}

func statusOf(err error) *StatusResponse {
	return &StatusResponse{Code: kuksaval.ToStatus(err).Error(), Message: err.Error()}
}

func entryTypeName(t broker.EntryType) string {
	switch t {
	case broker.EntryTypeSensor:
		return "sensor"
	case broker.EntryTypeActuator:
		return "actuator"
	case broker.EntryTypeAttribute:
		return "attribute"
	default:
		return "unknown"
	}
}

func notFoundErr(path string) error {
	return brokererr.New(brokererr.NotFound, "no entry at path %q", path)
}

func changeTypeName(t broker.ChangeType) string {
	switch t {
	case broker.ChangeTypeStatic:
		return "static"
	case broker.ChangeTypeOnChange:
		return "onchange"
	case broker.ChangeTypeContinuous:
		return "continuous"
	default:
		return "unknown"
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetValue", Handler: getValueHandler},
		{MethodName: "GetValues", Handler: getValuesHandler},
		{MethodName: "ListMetadata", Handler: listMetadataHandler},
		{MethodName: "Actuate", Handler: actuateHandler},
		{MethodName: "BatchActuate", Handler: batchActuateHandler},
		{MethodName: "GetServerInfo", Handler: getServerInfoHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
		{StreamName: "OpenProviderStream", Handler: openProviderStreamHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "kuksa/val/v2/val.proto",
}

func getValueHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(GetValueRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*server).GetValue(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetValue"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*server).GetValue(ctx, req.(*GetValueRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func getValuesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(GetValuesRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*server).GetValues(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetValues"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*server).GetValues(ctx, req.(*GetValuesRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func listMetadataHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ListMetadataRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*server).ListMetadata(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ListMetadata"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*server).ListMetadata(ctx, req.(*ListMetadataRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func actuateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ActuateRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*server).Actuate(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Actuate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*server).Actuate(ctx, req.(*ActuateRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func batchActuateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(BatchActuateRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*server).BatchActuate(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/BatchActuate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*server).BatchActuate(ctx, req.(*BatchActuateRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func getServerInfoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(ServerInfoRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*server).GetServerInfo(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetServerInfo"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*server).GetServerInfo(ctx, req.(*ServerInfoRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(SubscribeRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(*server).Subscribe(req, stream)
}

func openProviderStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(*server).OpenProviderStream(stream)
}

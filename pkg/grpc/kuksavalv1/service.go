package kuksavalv1

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/brokererr"
	"github.com/sdv-broker/databroker/internal/facade"
	"github.com/sdv-broker/databroker/internal/pathglob"
	"github.com/sdv-broker/databroker/internal/query"
	"github.com/sdv-broker/databroker/internal/telemetry"
	"github.com/sdv-broker/databroker/pkg/grpc/kuksaval"
)

// serviceName is the fully qualified gRPC service name, matching the
// kuksa.val.v1 VAL service so existing clients address the right path
// even though the wire codec underneath is JSON rather than protobuf.
const serviceName = "kuksa.val.v1.VAL"

// server implements the kuksa.val.v1 VAL service against a Facade.
type server struct {
	f *facade.Facade
}

// Register installs the kuksa.val.v1 VAL service onto s. The auth
// interceptors that populate each call's permission are wired in by the
// caller when constructing s (see kuksaval.ServerOptions), since grpc-go
// only accepts interceptors at grpc.NewServer construction time.
func Register(s *grpc.Server, f *facade.Facade) {
	s.RegisterService(&serviceDesc, &server{f: f})
}

func (s *server) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "kuksavalv1.get")
	defer span.End()
	perm := kuksaval.PermissionFromContext(ctx)

	resp := &GetResponse{}
	for _, er := range req.Entries {
		entry, err := s.f.GetByPath(perm, er.Path)
		if err != nil {
			resp.Errors = append(resp.Errors, dataEntryError(er.Path, err))
			continue
		}
		resp.Entries = append(resp.Entries, toDataEntry(entry, er.Fields))
	}
	return resp, nil
}

func (s *server) Set(ctx context.Context, req *SetRequest) (*SetResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "kuksavalv1.set")
	defer span.End()
	perm := kuksaval.PermissionFromContext(ctx)

	batch := make([]broker.BatchEntry, 0, len(req.Updates))
	pathByIndex := make([]string, 0, len(req.Updates))
	resp := &SetResponse{}
	for _, u := range req.Updates {
		id, ok := s.f.ResolveID(u.Entry.Path)
		if !ok {
			resp.Errors = append(resp.Errors, dataEntryError(u.Entry.Path, brokererr.New(brokererr.NotFound, "no entry at path %q", u.Entry.Path)))
			continue
		}
		update, err := toEntryUpdate(u)
		if err != nil {
			resp.Errors = append(resp.Errors, dataEntryError(u.Entry.Path, brokererr.New(brokererr.InvalidInput, "%v", err)))
			continue
		}
		batch = append(batch, broker.BatchEntry{ID: id, Update: update})
		pathByIndex = append(pathByIndex, u.Entry.Path)
	}

	_, errs := s.f.UpdateEntries(perm, batch)
	for i, be := range batch {
		if err, ok := errs[be.ID]; ok {
			resp.Errors = append(resp.Errors, dataEntryError(pathByIndex[i], err))
		}
	}
	return resp, nil
}

// GetMetadata lists the static definition of every signal matching a VSS
// pattern (SPEC_FULL.md §4 "v1 GetMetadata and v2 ListMetadata both call
// facade.ListMetadata"), unlike Get it never fails on a value-read denial
// since it never touches a value.
func (s *server) GetMetadata(ctx context.Context, req *MetadataRequest) (*MetadataResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "kuksavalv1.getmetadata")
	defer span.End()
	perm := kuksaval.PermissionFromContext(ctx)

	path := req.Path
	if path == "" {
		path = "**"
	}
	pattern, err := pathglob.Compile(path)
	if err != nil {
		return nil, kuksaval.ToStatus(err)
	}

	resp := &MetadataResponse{}
	for _, m := range s.f.ListMetadata(perm, pattern) {
		resp.Entries = append(resp.Entries, DataEntry{
			Path: m.Path,
			Metadata: &Metadata{
				DataType:    m.DataType.String(),
				EntryType:   entryTypeName(m.EntryType),
				Description: m.Description,
				Unit:        m.Unit,
			},
		})
	}
	return resp, nil
}

func (s *server) GetServerInfo(ctx context.Context, _ *ServerInfoRequest) (*ServerInfoResponse, error) {
	return &ServerInfoResponse{Name: "databroker", Org: "sdv-broker", Version: "1.0"}, nil
}

func (s *server) Subscribe(req *SubscribeRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	perm := kuksaval.PermissionFromContext(ctx)

	sub, err := s.f.SubscribeQuery(ctx, perm, req.Query)
	if err != nil {
		return kuksaval.ToStatus(err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case resp, ok := <-sub.Chan():
			if !ok {
				return nil
			}
			if err := stream.SendMsg(&SubscribeResponse{Updates: toEntryUpdates(resp.Fields)}); err != nil {
				return err
			}
		}
	}
}

func dataEntryError(path string, err error) DataEntryError {
	return DataEntryError{Path: path, Code: kuksaval.ToStatus(err).Error(), Message: err.Error()}
}

func toDataEntry(e broker.Entry, fields []string) DataEntry {
	de := DataEntry{Path: e.Path}
	want := func(name string) bool {
		if len(fields) == 0 {
			return true
		}
		for _, f := range fields {
			if f == name {
				return true
			}
		}
		return false
	}
	if want("value") {
		de.Value = kuksaval.FromValue(e.Datapoint.Value)
		de.Timestamp = e.Datapoint.Timestamp.Format(time.RFC3339Nano)
	}
	if want("actuator_target") && e.ActuatorTarget != nil {
		de.ActuatorTarget = kuksaval.FromValue(e.ActuatorTarget.Value)
	}
	if want("metadata") {
		de.Metadata = &Metadata{
			DataType:    e.DataType.String(),
			EntryType:   entryTypeName(e.EntryType),
			Description: e.Description,
			Unit:        e.Unit,
		}
	}
	return de
}

func toEntryUpdate(u EntryUpdate) (*broker.EntryUpdate, error) {
	update := &broker.EntryUpdate{}
	for _, f := range u.Fields {
		switch f {
		case "value":
			v, err := kuksaval.ToValue(u.Entry.Value)
			if err != nil {
				return nil, err
			}
			update.Datapoint = &broker.Datapoint{Timestamp: time.Now(), Value: v}
		case "actuator_target":
			v, err := kuksaval.ToValue(u.Entry.ActuatorTarget)
			if err != nil {
				return nil, err
			}
			update.ActuatorTarget = &broker.Datapoint{Timestamp: time.Now(), Value: v}
		}
	}
	return update, nil
}

func toEntryUpdates(fields []query.Field) []EntryUpdate {
	out := make([]EntryUpdate, 0, len(fields))
	for _, f := range fields {
		out = append(out, EntryUpdate{
			Entry:  DataEntry{Path: f.Path, Value: kuksaval.FromValue(f.Value)},
			Fields: []string{"value"},
		})
	}
	return out
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

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Set", Handler: setHandler},
		{MethodName: "GetMetadata", Handler: getMetadataHandler},
		{MethodName: "GetServerInfo", Handler: getServerInfoHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "kuksa/val/v1/val.proto",
}

func getHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(GetRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*server).Get(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Get"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*server).Get(ctx, req.(*GetRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func setHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(SetRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*server).Set(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Set"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*server).Set(ctx, req.(*SetRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func getMetadataHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(MetadataRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*server).GetMetadata(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetMetadata"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*server).GetMetadata(ctx, req.(*MetadataRequest))
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

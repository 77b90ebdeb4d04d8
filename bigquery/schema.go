// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package bigquery

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	pkgerrors "github.com/pkg/errors"
	"github.com/zeebo/errs/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"storj.io/ekeyd/protocol"
)

var (
	nonSafeTableNameCharacters = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	multiUnderscore            = regexp.MustCompile(`_{2,}`)
)

// baseColumns are present in every table.
var baseColumns = bigquery.Schema{
	{Name: "source_instance", Type: bigquery.StringFieldType},
	{Name: "sender_ip", Type: bigquery.StringFieldType},
	{Name: "protocol", Type: bigquery.StringFieldType},
	{Name: "received_at", Type: bigquery.TimestampFieldType},
}

func column(name string, typ bigquery.FieldType) *bigquery.FieldSchema {
	return &bigquery.FieldSchema{Name: name, Type: typ}
}

// protocolColumns are the payload columns of each protocol's table.
var protocolColumns = map[protocol.Name]bigquery.Schema{
	protocol.Rare: {
		column("version", bigquery.IntegerFieldType),
	},
	protocol.Home: {
		column("packet_type", bigquery.IntegerFieldType),
		column("user_id", bigquery.IntegerFieldType),
		column("finger_id", bigquery.IntegerFieldType),
		column("finger", bigquery.StringFieldType),
		column("serial_nr", bigquery.StringFieldType),
		column("action", bigquery.StringFieldType),
		column("relays_id", bigquery.IntegerFieldType),
		column("relay", bigquery.StringFieldType),
	},
	protocol.Multi: {
		column("packet_type", bigquery.IntegerFieldType),
		column("user_id", bigquery.IntegerFieldType),
		column("username", bigquery.StringFieldType),
		column("user_state", bigquery.StringFieldType),
		column("finger_id", bigquery.IntegerFieldType),
		column("finger", bigquery.StringFieldType),
		column("key", bigquery.StringFieldType),
		column("serial_nr", bigquery.StringFieldType),
		column("reader_name", bigquery.StringFieldType),
		column("action", bigquery.StringFieldType),
		column("input", bigquery.StringFieldType),
	},
}

// TableSchema returns the initial schema of the table of proto.
func TableSchema(proto protocol.Name) bigquery.Schema {
	schema := append(bigquery.Schema{}, baseColumns...)
	return append(schema, protocolColumns[proto]...)
}

// Schema is the cached schema of one table.
type Schema struct {
	name     string
	protocol protocol.Name

	mu            sync.Mutex
	tableMetadata *bigquery.TableMetadata

	// messageDescriptor describes the rows sent over the storage write API.
	messageDescriptor protoreflect.MessageDescriptor
}

// NewSchema loads the schema of table, creating the table when it does not
// exist yet.
func NewSchema(ctx context.Context, ds *bigquery.Dataset, table string, proto protocol.Name) (*Schema, error) {
	meta, err := LoadTableMetadata(ctx, ds, table, proto)
	if err != nil {
		return nil, err
	}
	return newSchema(table, proto, meta)
}

func newSchema(table string, proto protocol.Name, meta *bigquery.TableMetadata) (*Schema, error) {
	s := &Schema{name: table, protocol: proto, tableMetadata: meta}
	var err error
	s.messageDescriptor, err = toMessageDescriptor(meta.Schema)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateIfRequired adds columns for fields of records which are not in the
// table yet.
func (s *Schema) UpdateIfRequired(ctx context.Context, records []*Record, ds *bigquery.Dataset) (changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	missing := missingColumns(s.tableMetadata.Schema, records)
	if len(missing) == 0 {
		return false, nil
	}

	schema := append(append(bigquery.Schema{}, s.tableMetadata.Schema...), missing...)
	md, err := ds.Table(s.name).Update(ctx, bigquery.TableMetadataToUpdate{
		Schema: schema,
	}, s.tableMetadata.ETag)
	if err != nil {
		return true, pkgerrors.WithStack(err)
	}

	// Update is eventually consistent: streams opened right away may still
	// see the old schema.
	time.Sleep(10 * time.Second)
	s.tableMetadata = md

	s.messageDescriptor, err = toMessageDescriptor(s.tableMetadata.Schema)
	return true, err
}

// missingColumns returns a column for every field of records that schema
// lacks, sorted by name.
func missingColumns(schema bigquery.Schema, records []*Record) bigquery.Schema {
	known := map[string]bool{}
	for _, field := range schema {
		known[field.Name] = true
	}
	var missing bigquery.Schema
	for _, record := range records {
		for key, value := range record.Fields {
			name := FieldColumn(key)
			if known[name] {
				continue
			}
			typ, ok := valueFieldType(value)
			if !ok {
				continue
			}
			known[name] = true
			missing = append(missing, column(name, typ))
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Name < missing[j].Name })
	return missing
}

func valueFieldType(value any) (bigquery.FieldType, bool) {
	switch value.(type) {
	case int, int32, int64:
		return bigquery.IntegerFieldType, true
	case float32, float64:
		return bigquery.FloatFieldType, true
	case string:
		return bigquery.StringFieldType, true
	case bool:
		return bigquery.BooleanFieldType, true
	default:
		return "", false
	}
}

// toMessageDescriptor converts a table schema to a protobuf message
// descriptor. Timestamps are microseconds since the epoch.
func toMessageDescriptor(schema bigquery.Schema) (protoreflect.MessageDescriptor, error) {
	descriptorProto := descriptorProtoFor(schema)

	fileDescriptorProto := &descriptorpb.FileDescriptorProto{
		Name:        proto.String("message.proto"),
		Package:     proto.String("dynamic"),
		Syntax:      proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{descriptorProto},
	}

	files, err := protodesc.NewFiles(&descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{fileDescriptorProto},
	})
	if err != nil {
		return nil, errs.Wrap(err)
	}

	fileDescriptor, err := files.FindFileByPath("message.proto")
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return fileDescriptor.Messages().ByName("BqMessage"), nil
}

func descriptorProtoFor(schema bigquery.Schema) *descriptorpb.DescriptorProto {
	desc := &descriptorpb.DescriptorProto{
		Name:  proto.String("BqMessage"),
		Field: make([]*descriptorpb.FieldDescriptorProto, 0, len(schema)),
	}
	for ix, field := range schema {
		fd := &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(field.Name),
			JsonName: proto.String(field.Name),
			Number:   proto.Int32(int32(ix + 1)),
			Options:  &descriptorpb.FieldOptions{},
		}
		switch field.Type {
		case bigquery.StringFieldType:
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()
		case bigquery.IntegerFieldType, bigquery.TimestampFieldType:
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum()
		case bigquery.FloatFieldType:
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE.Enum()
		case bigquery.BooleanFieldType:
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_BOOL.Enum()
		case bigquery.BytesFieldType:
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_BYTES.Enum()
		default:
			continue
		}
		desc.Field = append(desc.Field, fd)
	}
	return desc
}

// PBDescriptor returns the protobuf descriptor of the current schema.
func (s *Schema) PBDescriptor() *descriptorpb.DescriptorProto {
	s.mu.Lock()
	defer s.mu.Unlock()
	return descriptorProtoFor(s.tableMetadata.Schema)
}

// RecordToPB serializes record with the current message descriptor. Fields
// without a column are skipped.
func (s *Schema) RecordToPB(record *Record) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.messageDescriptor == nil {
		return nil, errs.Errorf("message descriptor is not initialized")
	}

	msg := dynamicpb.NewMessage(s.messageDescriptor)
	fields := s.messageDescriptor.Fields()

	set := func(name string, value any) {
		field := fields.ByName(protoreflect.Name(name))
		if field == nil {
			return
		}
		if v, ok := protoValue(field.Kind(), value); ok {
			msg.Set(field, v)
		}
	}

	set("source_instance", record.Instance)
	set("sender_ip", record.SenderIP)
	set("protocol", record.Protocol)
	set("received_at", record.ReceivedAt.UnixMicro())
	for key, value := range record.Fields {
		set(FieldColumn(key), value)
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, pkgerrors.WithStack(err)
	}
	return data, nil
}

func protoValue(kind protoreflect.Kind, value any) (protoreflect.Value, bool) {
	switch kind {
	case protoreflect.StringKind:
		if v, ok := value.(string); ok {
			return protoreflect.ValueOfString(v), true
		}
	case protoreflect.Int64Kind:
		switch v := value.(type) {
		case int:
			return protoreflect.ValueOfInt64(int64(v)), true
		case int32:
			return protoreflect.ValueOfInt64(int64(v)), true
		case int64:
			return protoreflect.ValueOfInt64(v), true
		case float64:
			return protoreflect.ValueOfInt64(int64(v)), true
		}
	case protoreflect.DoubleKind:
		switch v := value.(type) {
		case float64:
			return protoreflect.ValueOfFloat64(v), true
		case int:
			return protoreflect.ValueOfFloat64(float64(v)), true
		case int64:
			return protoreflect.ValueOfFloat64(float64(v)), true
		}
	case protoreflect.BoolKind:
		if v, ok := value.(bool); ok {
			return protoreflect.ValueOfBool(v), true
		}
	}
	return protoreflect.Value{}, false
}

// LoadTableMetadata loads the metadata of table. A missing table is created
// with the schema of proto, partitioned by day of received_at.
func LoadTableMetadata(ctx context.Context, ds *bigquery.Dataset, table string, proto protocol.Name) (*bigquery.TableMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	meta, err := ds.Table(table).Metadata(ctx)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 404 {
		err = ds.Table(table).Create(ctx, &bigquery.TableMetadata{
			Name:                   table,
			RequirePartitionFilter: true,
			TimePartitioning: &bigquery.TimePartitioning{
				Type:  bigquery.DayPartitioningType,
				Field: "received_at",
			},
			Clustering: &bigquery.Clustering{
				Fields: []string{"sender_ip"},
			},
			Schema: TableSchema(proto),
		})
		if err != nil {
			return nil, pkgerrors.WithStack(err)
		}
		meta, err = ds.Table(table).Metadata(ctx)
	}
	if err != nil {
		return nil, pkgerrors.WithStack(err)
	}
	return meta, nil
}

// TableName returns the table events of proto are stored in.
func TableName(prefix string, proto protocol.Name) string {
	name := string(proto)
	if name == "" {
		name = "unknown"
	}
	all := nonSafeTableNameCharacters.ReplaceAllString(prefix+"_"+name, "_")
	all = multiUnderscore.ReplaceAllString(all, "_")
	return strings.Trim(all, "_")
}

// FieldColumn converts a payload field name to its column name:
// userId becomes user_id.
func FieldColumn(key string) string {
	var out strings.Builder
	for i, r := range key {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				out.WriteByte('_')
			}
			out.WriteRune(r - 'A' + 'a')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			out.WriteRune(r)
		default:
			out.WriteByte('_')
		}
	}
	return out.String()
}

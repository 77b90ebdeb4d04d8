// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package bigquery

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"storj.io/ekeyd"
	"storj.io/ekeyd/archive"
	"storj.io/ekeyd/destination"
	"storj.io/ekeyd/protocol"
)

func TestTableName(t *testing.T) {
	require.Equal(t, "ekey_home", TableName("ekey", protocol.Home))
	require.Equal(t, "gate_1_multi", TableName("gate-1", protocol.Multi))
	require.Equal(t, "ekey_unknown", TableName("ekey__", ""))
}

func TestFieldColumn(t *testing.T) {
	require.Equal(t, "user_id", FieldColumn("userId"))
	require.Equal(t, "serial_nr", FieldColumn("serialNr"))
	require.Equal(t, "relays_id", FieldColumn("relaysId"))
	require.Equal(t, "finger", FieldColumn("finger"))
	require.Equal(t, "a_b", FieldColumn("a.b"))
}

func homeEvent(t *testing.T) *ekeyd.Event {
	home, err := protocol.DecodeHome([]byte("1_0046_4_80156809150025_1_2"))
	require.NoError(t, err)
	return &ekeyd.Event{
		SenderIP:   "10.0.0.7",
		Protocol:   protocol.Home,
		ReceivedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Payload:    home,
	}
}

func TestRecordSave(t *testing.T) {
	row, insertID, err := NewRecord("gate", homeEvent(t)).Save()
	require.NoError(t, err)
	require.Empty(t, insertID)
	require.Equal(t, "gate", row["source_instance"])
	require.Equal(t, "10.0.0.7", row["sender_ip"])
	require.Equal(t, "home", row["protocol"])
	require.Equal(t, 46, row["user_id"])
	require.Equal(t, "open", row["action"])
	require.Equal(t, "Relays2", row["relay"])
}

func TestFromArchive(t *testing.T) {
	r := FromArchive("gate", &archive.Record{
		SenderIP: "10.0.0.7",
		Protocol: "home",
		Payload:  map[string]any{"userId": float64(46), "ratio": 0.5, "action": "open"},
	})
	require.Equal(t, int64(46), r.Fields["userId"])
	require.Equal(t, 0.5, r.Fields["ratio"])
	require.Equal(t, "open", r.Fields["action"])
}

func TestMissingColumns(t *testing.T) {
	records := []*Record{{Fields: map[string]any{"userId": 1, "extraFlag": true, "note": "x", "nested": []int{1}}}}
	missing := missingColumns(TableSchema(protocol.Home), records)
	require.Equal(t, bigquery.Schema{
		column("extra_flag", bigquery.BooleanFieldType),
		column("note", bigquery.StringFieldType),
	}, missing)

	require.Empty(t, missingColumns(TableSchema(protocol.Home), []*Record{NewRecord("", homeEvent(t))}))
}

func TestRecordToPB(t *testing.T) {
	schema, err := newSchema("ekey_home", protocol.Home, &bigquery.TableMetadata{Schema: TableSchema(protocol.Home)})
	require.NoError(t, err)

	ev := homeEvent(t)
	data, err := schema.RecordToPB(NewRecord("gate", ev))
	require.NoError(t, err)

	msg := dynamicpb.NewMessage(schema.messageDescriptor)
	require.NoError(t, proto.Unmarshal(data, msg))

	get := func(name string) protoreflect.Value {
		return msg.Get(schema.messageDescriptor.Fields().ByName(protoreflect.Name(name)))
	}
	require.Equal(t, "gate", get("source_instance").String())
	require.Equal(t, "10.0.0.7", get("sender_ip").String())
	require.Equal(t, ev.ReceivedAt.UnixMicro(), get("received_at").Int())
	require.Equal(t, int64(46), get("user_id").Int())
	require.Equal(t, "80156809150025", get("serial_nr").String())
	require.Equal(t, "Left Hand Index Finger", get("finger").String())

	require.Len(t, schema.PBDescriptor().Field, len(TableSchema(protocol.Home)))
}

type fakeSaver struct {
	mu      sync.Mutex
	records map[string][]*Record
	closed  bool
}

func (f *fakeSaver) Save(records map[string][]*Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records == nil {
		f.records = map[string][]*Record{}
	}
	for table, rows := range records {
		f.records[table] = append(f.records[table], rows...)
	}
	return nil
}

func (f *fakeSaver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestDestination(t *testing.T) {
	saver := &fakeSaver{}
	d := NewDestination(zaptest.NewLogger(t), saver, "ekey")
	d.Instance = "gate"

	d.Submit(homeEvent(t), &ekeyd.Event{SenderIP: "10.0.0.8", Protocol: protocol.Rare})
	d.SaveForwarded(&destination.Forwarded{
		Instance: "remote",
		Records:  []*archive.Record{{SenderIP: "10.0.0.9", Protocol: "home"}},
	})

	require.Len(t, saver.records["ekey_home"], 2)
	require.Len(t, saver.records["ekey_rare"], 1)
	require.Equal(t, "remote", saver.records["ekey_home"][1].Instance)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)
	require.True(t, saver.closed)

	d.Submit(homeEvent(t))
	require.Len(t, saver.records["ekey_home"], 2)
}

func TestParseParams(t *testing.T) {
	cfg, err := ParseParams(destination.Params{"project": "p", "dataset": "d"})
	require.NoError(t, err)
	require.Equal(t, Config{Project: "p", Dataset: "d", Prefix: DefaultPrefix}, cfg)

	_, err = ParseParams(destination.Params{"project": "p"})
	require.Error(t, err)

	_, err = ParseParams(destination.Params{"project": "p", "dataset": "d", "appName": "x"})
	require.Error(t, err)
}

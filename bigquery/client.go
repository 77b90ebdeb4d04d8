// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package bigquery stores events in BigQuery, one table per protocol.
package bigquery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/bigquery/storage/managedwriter"
	"github.com/pkg/errors"
	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"storj.io/ekeyd/protocol"
)

var mon = monkit.Package()

// insertBatchSize limits the rows sent in one request.
const insertBatchSize = 500

// Client writes records to the tables of one dataset.
type Client struct {
	log          *zap.Logger
	projectID    string
	datasetID    string
	client       *bigquery.Client
	writerClient *managedwriter.Client

	streamMu sync.Mutex
	streams  map[string]*managedwriter.ManagedStream

	streamCtx    context.Context
	streamCancel context.CancelFunc

	schemaMu sync.Mutex
	tables   map[string]*Schema
}

// NewClient connects to project. No request is made until the first save.
func NewClient(ctx context.Context, log *zap.Logger, project, dataset string, options ...option.ClientOption) (*Client, error) {
	client, err := bigquery.NewClient(ctx, project, options...)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sctx, scancel := context.WithCancel(context.Background())

	writerClient, err := managedwriter.NewClient(sctx, project, options...)
	if err != nil {
		scancel()
		_ = client.Close()
		return nil, errors.WithStack(err)
	}

	return &Client{
		log:          log,
		projectID:    project,
		datasetID:    dataset,
		client:       client,
		writerClient: writerClient,
		streamCtx:    sctx,
		streamCancel: scancel,
		streams:      map[string]*managedwriter.ManagedStream{},
		tables:       map[string]*Schema{},
	}, nil
}

func (b *Client) dataset() *bigquery.Dataset {
	return b.client.Dataset(b.datasetID)
}

// managedStream returns the cached write stream of table.
func (b *Client) managedStream(ctx context.Context, table string, schema *Schema) (*managedwriter.ManagedStream, error) {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()

	if stream, ok := b.streams[table]; ok {
		return stream, nil
	}

	tableID := fmt.Sprintf("projects/%s/datasets/%s/tables/%s", b.projectID, b.datasetID, table)
	stream, err := b.writerClient.NewManagedStream(ctx,
		managedwriter.WithDestinationTable(tableID),
		managedwriter.WithType(managedwriter.DefaultStream),
		managedwriter.EnableWriteRetries(true),
		managedwriter.WithSchemaDescriptor(schema.PBDescriptor()),
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	b.streams[table] = stream
	return stream, nil
}

func (b *Client) dropStream(table string) {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()
	if stream, ok := b.streams[table]; ok {
		_ = stream.Close()
		delete(b.streams, table)
	}
}

func (b *Client) schema(ctx context.Context, table string, proto protocol.Name) (*Schema, error) {
	b.schemaMu.Lock()
	defer b.schemaMu.Unlock()
	if schema, ok := b.tables[table]; ok {
		return schema, nil
	}
	schema, err := NewSchema(ctx, b.dataset(), table, proto)
	if err != nil {
		return nil, err
	}
	b.tables[table] = schema
	return schema, nil
}

// Save writes records grouped by table name. Every table must only receive
// records of one protocol.
func (b *Client) Save(records map[string][]*Record) (err error) {
	defer mon.Task()(nil)(&err)

	ctx, cancel := context.WithTimeout(b.streamCtx, time.Minute)
	defer cancel()

	for table, rows := range records {
		if len(rows) == 0 {
			continue
		}
		schema, err := b.schema(ctx, table, protocol.Name(rows[0].Protocol))
		if err != nil {
			return err
		}

		changed, err := schema.UpdateIfRequired(ctx, rows, b.dataset())
		if err != nil {
			return err
		}
		if changed {
			b.dropStream(table)
		}

		useManagedWriter := true
		for i := 0; i < len(rows); i += insertBatchSize {
			batch := rows[i:min(i+insertBatchSize, len(rows))]

			if useManagedWriter {
				err := b.saveWithManagedWriter(table, batch, schema)
				if err == nil {
					continue
				}
				useManagedWriter = false
				b.log.Warn("storage write failed, falling back to streaming inserts",
					zap.String("table", table), zap.Error(err))
			}

			if err := b.dataset().Table(table).Inserter().Put(ctx, batch); err != nil {
				return errors.WithStack(err)
			}
		}
		mon.Counter("bigquery_rows", monkit.NewSeriesTag("table", table)).Inc(int64(len(rows)))
	}
	return nil
}

func (b *Client) saveWithManagedWriter(table string, batch []*Record, schema *Schema) error {
	stream, err := b.managedStream(b.streamCtx, table, schema)
	if err != nil {
		return err
	}

	messages := make([][]byte, 0, len(batch))
	for _, record := range batch {
		data, err := schema.RecordToPB(record)
		if err != nil {
			return err
		}
		messages = append(messages, data)
	}

	result, err := stream.AppendRows(b.streamCtx, messages)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := result.GetResult(b.streamCtx); err != nil && !errors.Is(err, context.Canceled) {
		return errors.WithStack(err)
	}
	return nil
}

// Close closes the streams and the clients.
func (b *Client) Close() error {
	var group error

	b.streamMu.Lock()
	for table, stream := range b.streams {
		group = multierr.Append(group, errors.WithStack(stream.Close()))
		delete(b.streams, table)
	}
	b.streamMu.Unlock()

	group = multierr.Append(group, errors.WithStack(b.writerClient.Close()))
	group = multierr.Append(group, errors.WithStack(b.client.Close()))
	b.streamCancel()
	return group
}

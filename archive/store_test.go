// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/ekeyd"
	"storj.io/ekeyd/protocol"
)

func TestEscape(t *testing.T) {
	for _, val := range []string{"home", "10.0.0.7", "fd00::50", "Mixed_Case"} {
		escaped := Escape(val)
		require.NotContains(t, escaped, string(filepath.Separator))
		unescaped, err := Unescape(escaped)
		require.NoError(t, err)
		require.Equal(t, val, unescaped)
	}

	_, err := Unescape("+")
	require.Error(t, err)
	_, err = Unescape("_z")
	require.Error(t, err)
}

func TestComputeParse(t *testing.T) {
	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	path := Compute("/var/lib/ekeyd", at, "multi", "fd00::50")
	require.Equal(t, filepath.FromSlash("/var/lib/ekeyd/2026-05/06-07/multi/fd00_3a_3a50.ekz"), path)

	proto, sender, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, "multi", proto)
	require.Equal(t, "fd00::50", sender)

	_, _, err = Parse("/var/lib/ekeyd/notes.txt")
	require.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	home, _ := protocol.DecodeHome([]byte("1_0046_4_80156809150025_1_2"))
	multi, _ := protocol.DecodeMulti([]byte("10003JOSEF----17280156809150025GAR-1-"))

	require.NoError(t, store.Append(
		&ekeyd.Event{SenderIP: "10.0.0.7", Protocol: protocol.Home, ReceivedAt: at, Payload: home},
		&ekeyd.Event{SenderIP: "10.0.0.8", Protocol: protocol.Multi, ReceivedAt: at, Payload: multi},
	))
	require.NoError(t, store.Append(
		&ekeyd.Event{SenderIP: "10.0.0.7", Protocol: protocol.Home, ReceivedAt: at.Add(time.Minute), Payload: home},
	))
	require.NoError(t, store.DropAll())

	// appending after the files were closed reopens them.
	require.NoError(t, store.Append(&ekeyd.Event{SenderIP: "10.0.0.7", Protocol: "ekey", ReceivedAt: at}))
	require.NoError(t, store.Close())

	files, err := Files(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)

	var records []*Record
	require.NoError(t, Walk(dir, func(r *Record) error {
		records = append(records, r)
		return nil
	}))
	require.Len(t, records, 4)

	bySender := map[string]int{}
	for _, r := range records {
		bySender[r.Protocol+"/"+r.SenderIP]++
	}
	require.Equal(t, map[string]int{"home/10.0.0.7": 2, "multi/10.0.0.8": 1, "ekey/10.0.0.7": 1}, bySender)

	var out bytes.Buffer
	require.NoError(t, WriteCSV(&out, records))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	require.True(t, strings.HasPrefix(lines[0], "receivedAt,protocol,senderIp,action,"))

	out.Reset()
	require.NoError(t, WriteJSON(&out, records[:1]))
	require.Contains(t, out.String(), `"senderIp":"`)
}

func TestReadFileTruncated(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	home, _ := protocol.DecodeHome([]byte("1_0046_4_80156809150025_1_2"))
	require.NoError(t, store.Append(&ekeyd.Event{SenderIP: "10.0.0.7", Protocol: protocol.Home, ReceivedAt: time.Now(), Payload: home}))
	require.NoError(t, store.Close())

	files, err := Files(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(files[0], data[:len(data)-4], 0o644))

	err = ReadFile(files[0], func(*Record) error { return nil })
	require.Error(t, err)
}

func TestStoreKeepsEmptyPayload(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	short, _ := protocol.DecodeHome([]byte("short"))
	require.NoError(t, store.Append(
		&ekeyd.Event{SenderIP: "10.0.0.7", Protocol: protocol.Home, ReceivedAt: at, Payload: short},
		&ekeyd.Event{SenderIP: "10.0.0.8", Protocol: "ekey", ReceivedAt: at},
	))
	require.NoError(t, store.Close())

	payloads := map[string]map[string]any{}
	require.NoError(t, Walk(dir, func(r *Record) error {
		payloads[r.SenderIP] = r.Payload
		return nil
	}))
	require.Len(t, payloads, 2)
	require.NotNil(t, payloads["10.0.0.7"])
	require.Empty(t, payloads["10.0.0.7"])
	require.Nil(t, payloads["10.0.0.8"])
}

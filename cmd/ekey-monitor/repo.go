// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"sort"
	"sync"

	"storj.io/ekeyd/archive"
)

// Event is a record shown by the monitor.
type Event struct {
	*archive.Record
	// Instance is the forwarding ekeyd, empty for datagrams received
	// directly from a terminal.
	Instance string
}

// Outcome summarizes the action of an event.
func (e *Event) Outcome() string {
	if action, ok := e.Payload["action"].(string); ok {
		return action
	}
	if len(e.Payload) == 0 {
		return "-"
	}
	return "?"
}

// Who names the user of an event.
func (e *Event) Who() string {
	if name, ok := e.Payload["username"].(string); ok && name != "" {
		return name
	}
	if id, ok := e.Payload["userId"]; ok {
		return fmt.Sprintf("user %v", id)
	}
	return ""
}

// Repo stores the received events in memory, keeping at most limit.
type Repo struct {
	mu     sync.Mutex
	limit  int
	events []*Event
	total  int
}

// NewRepo creates a Repo keeping the last limit events.
func NewRepo(limit int) *Repo {
	return &Repo{limit: limit}
}

// Add stores e.
func (r *Repo) Add(e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	r.events = append(r.events, e)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append(r.events[:0], r.events[len(r.events)-r.limit:]...)
	}
}

// Count returns how many events were added in total.
func (r *Repo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Last returns up to n of the most recent events, newest first.
func (r *Repo) Last(n int) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*Event
	for i := len(r.events) - 1; i >= 0 && len(res) < n; i-- {
		res = append(res, r.events[i])
	}
	return res
}

// Row is one line of the summary: events per sender and outcome.
type Row struct {
	Sender   string
	Protocol string
	Outcome  string
	Count    int
}

// Summary counts the stored events per sender, protocol and outcome, most
// frequent first.
func (r *Repo) Summary() []Row {
	r.mu.Lock()
	defer r.mu.Unlock()

	type key struct{ sender, protocol, outcome string }
	counts := map[key]int{}
	for _, e := range r.events {
		counts[key{e.SenderIP, e.Protocol, e.Outcome()}]++
	}

	rows := make([]Row, 0, len(counts))
	for k, count := range counts {
		rows = append(rows, Row{Sender: k.sender, Protocol: k.protocol, Outcome: k.outcome, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		if rows[i].Sender != rows[j].Sender {
			return rows[i].Sender < rows[j].Sender
		}
		return rows[i].Outcome < rows[j].Outcome
	})
	return rows
}

package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/mesh-protocol/meshcop-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Nodes             map[string]*NodeStats
	URIs              map[string]*URIStats
	Sessions          map[uint16]int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// NodeStats holds statistics for a single capturing node.
type NodeStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Role      log.Role
}

// URIStats counts management messages for one resource path.
type URIStats struct {
	Requests  int
	Responses int
	Rejected  int

	totalResponse time.Duration
	timed         int
}

// MeanResponse returns the average request/response latency, or zero when
// no response carried a timing.
func (u *URIStats) MeanResponse() time.Duration {
	if u.timed == 0 {
		return 0
	}
	return u.totalResponse / time.Duration(u.timed)
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Nodes:             make(map[string]*NodeStats),
		URIs:              make(map[string]*URIStats),
		Sessions:          make(map[uint16]int),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	node, ok := s.Nodes[event.NodeID]
	if !ok {
		node = &NodeStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Role:      event.LocalRole,
		}
		s.Nodes[event.NodeID] = node
	}
	node.Events++
	if event.Timestamp.After(node.LastSeen) {
		node.LastSeen = event.Timestamp
	}
	if event.Timestamp.Before(node.FirstSeen) {
		node.FirstSeen = event.Timestamp
	}

	if event.SessionID != nil {
		s.Sessions[*event.SessionID]++
	}

	if msg := event.Message; msg != nil && msg.URIPath != "" {
		u, ok := s.URIs[msg.URIPath]
		if !ok {
			u = &URIStats{}
			s.URIs[msg.URIPath] = u
		}
		switch msg.Type {
		case log.MessageTypeRequest:
			u.Requests++
		case log.MessageTypeResponse:
			u.Responses++
			if msg.State != nil && *msg.State < 0 {
				u.Rejected++
			}
			if msg.ResponseTime != nil {
				u.totalResponse += *msg.ResponseTime
				u.timed++
			}
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== MeshCoP Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerManagement, log.LayerSecurity} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Nodes: %d\n", len(stats.Nodes))
	if len(stats.Nodes) > 0 {
		ids := make([]string, 0, len(stats.Nodes))
		for id := range stats.Nodes {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return stats.Nodes[ids[i]].FirstSeen.Before(stats.Nodes[ids[j]].FirstSeen)
		})

		fmt.Fprintln(w)
		for _, id := range ids {
			n := stats.Nodes[id]
			duration := n.LastSeen.Sub(n.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %s, %d events, duration %s\n", shortenNodeID(id), n.Role, n.Events, duration)
		}
	}

	if len(stats.URIs) > 0 {
		paths := make([]string, 0, len(stats.URIs))
		for p := range stats.URIs {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		fmt.Fprintln(w)
		fmt.Fprintln(w, "Resources:")
		for _, p := range paths {
			u := stats.URIs[p]
			fmt.Fprintf(w, "  /%-10s %d req, %d rsp", p, u.Requests, u.Responses)
			if u.Rejected > 0 {
				fmt.Fprintf(w, ", %d rejected", u.Rejected)
			}
			if mean := u.MeanResponse(); mean > 0 {
				fmt.Fprintf(w, ", mean %s", formatDuration(mean))
			}
			fmt.Fprintln(w)
		}
	}

	if len(stats.Sessions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Commissioner Sessions: %d\n", len(stats.Sessions))
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vslqcore/vslq"
	"github.com/vslqcore/vslq/internal/cursor"
	"github.com/vslqcore/vslq/internal/logging"
	"github.com/vslqcore/vslq/internal/query"
	"github.com/vslqcore/vslq/internal/wire"
)

func main() {
	var (
		groupingStr = flag.String("grouping", "request", "dispatch grouping: raw, vxid, request, session")
		count       = flag.Int("count", 20, "number of synthetic sessions to generate")
		urlContains = flag.String("query", "", "only dispatch trees with a record whose payload contains this substring")
		verbose     = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	grouping, err := parseGrouping(*groupingStr)
	if err != nil {
		log.Fatalf("invalid grouping %q: %v", *groupingStr, err)
	}

	ring, err := cursor.NewSimRing(1<<20, wire.Decode)
	if err != nil {
		log.Fatalf("failed to allocate ring: %v", err)
	}
	defer ring.Close()

	opts := []vslq.Option{vslq.WithLogger(logger)}
	if *urlContains != "" {
		opts = append(opts, vslq.WithPredicate(query.PayloadContains(*urlContains)))
	}

	q, err := vslq.New(ring.NewCursor(), wire.Decode, grouping, opts...)
	if err != nil {
		log.Fatalf("failed to construct dispatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	produced := make(chan struct{})
	go func() {
		defer close(produced)
		generate(ring, *count)
	}()

	logger.Info("tailing synthetic log", "grouping", grouping.String(), "count", *count)

	dispatched := 0
	cb := func(nodes []vslq.TreeCursor) error {
		for _, tc := range nodes {
			printNode(tc)
		}
		dispatched++
		return nil
	}

	for {
		select {
		case <-produced:
			if err := q.Dispatch(ctx, cb); err != nil {
				logger.Error("dispatch error", "error", err)
			}
			if err := q.Flush(cb); err != nil {
				logger.Error("flush error", "error", err)
			}
			fmt.Printf("\ndispatched %d trees\n", dispatched)
			return
		case <-ctx.Done():
			q.Close()
			fmt.Printf("\nstopped early, dispatched %d trees\n", dispatched)
			return
		case <-time.After(20 * time.Millisecond):
			if err := q.Dispatch(ctx, cb); err != nil {
				logger.Error("dispatch error", "error", err)
				return
			}
		}
	}
}

// generate writes a synthetic stream of count sessions, each wrapping
// one request, every third of which fetches through a backend child,
// into ring.
func generate(ring *cursor.SimRing, count int) {
	next := uint64(1)
	newVxid := func() uint64 {
		v := next
		next++
		return v
	}

	for i := 0; i < count; i++ {
		sess := newVxid()
		ring.Append(wire.Encode(vslq.TagBegin, sess, []byte("sess 0 start")))

		req := newVxid()
		ring.Append(wire.Encode(vslq.TagLink, sess, []byte(fmt.Sprintf("req %d link", req))))
		ring.Append(wire.Encode(vslq.TagBegin, req, []byte(fmt.Sprintf("req %d rxreq", sess))))
		ring.Append(wire.Encode(vslq.TagData, req, []byte(fmt.Sprintf("ReqURL /item/%d", i))))

		if i%3 == 0 {
			bereq := newVxid()
			ring.Append(wire.Encode(vslq.TagLink, req, []byte(fmt.Sprintf("bereq %d link", bereq))))
			ring.Append(wire.Encode(vslq.TagBegin, bereq, []byte(fmt.Sprintf("bereq %d fetch", req))))
			ring.Append(wire.Encode(vslq.TagData, bereq, []byte(fmt.Sprintf("BereqURL /backend/%d", i))))
			ring.Append(wire.Encode(vslq.TagEnd, bereq, nil))
		}

		ring.Append(wire.Encode(vslq.TagEnd, req, nil))
		ring.Append(wire.Encode(vslq.TagEnd, sess, nil))

		time.Sleep(time.Millisecond)
	}
}

func printNode(tc vslq.TreeCursor) {
	indent := strings.Repeat("  ", tc.Level())
	fmt.Printf("%svxid=%d\n", indent, tc.Vxid())
	for tc.Next() {
		rec := tc.Record()
		fmt.Printf("%s  %-5s %s\n", indent, tagName(rec.Tag()), rec.Payload())
	}
}

func tagName(tag vslq.Tag) string {
	switch tag {
	case vslq.TagBegin:
		return "Begin"
	case vslq.TagLink:
		return "Link"
	case vslq.TagEnd:
		return "End"
	case vslq.TagBatch:
		return "Batch"
	default:
		return "Data"
	}
}

func parseGrouping(s string) (vslq.Grouping, error) {
	switch s {
	case "raw":
		return vslq.GroupingRaw, nil
	case "vxid":
		return vslq.GroupingVxid, nil
	case "request":
		return vslq.GroupingRequest, nil
	case "session":
		return vslq.GroupingSession, nil
	default:
		return 0, fmt.Errorf("must be one of raw, vxid, request, session")
	}
}

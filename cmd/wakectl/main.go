// Command wakectl queries a running wakewatch over its HTTP API.
//
//	wakectl [-server URL] status
//	wakectl [-server URL] sessions [-limit N]
//	wakectl [-server URL] session ID
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/wakewatch/internal/api"
	"github.com/banshee-data/wakewatch/internal/httputil"
	"github.com/banshee-data/wakewatch/internal/session"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "wakewatch base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: wakectl [flags] status|sessions|session ID\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := &client{base: strings.TrimRight(*server, "/"), http: &http.Client{}}
	if err := run(ctx, c, flag.Args(), os.Stdout); err != nil {
		log.Fatal(err)
	}
}

type client struct {
	base string
	http httputil.HTTPClient
}

func (c *client) get(ctx context.Context, path string, v interface{}) error {
	return httputil.GetJSON(ctx, c.http, c.base+path, v)
}

func run(ctx context.Context, c *client, args []string, w io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command: status, sessions, or session")
	}
	switch args[0] {
	case "status":
		return printStatus(ctx, c, w)
	case "sessions":
		fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
		limit := fs.Int("limit", 20, "sessions to list")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return printSessions(ctx, c, *limit, w)
	case "session":
		if len(args) != 2 {
			return fmt.Errorf("usage: session ID")
		}
		return printSession(ctx, c, args[1], w)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printStatus(ctx context.Context, c *client, w io.Writer) error {
	var st session.Status
	if err := c.get(ctx, "/api/status", &st); err != nil {
		return err
	}
	if st.ID == "" {
		_, err := fmt.Fprintln(w, "idle: no session yet")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "session\t%s\n", st.ID)
	fmt.Fprintf(tw, "source\t%s\n", st.Source)
	fmt.Fprintf(tw, "state\t%s\n", st.State)
	fmt.Fprintf(tw, "progress\t%.2f (%d/%d frames)\n", st.Progress, st.SuccessCount, st.Required)
	fmt.Fprintf(tw, "volume\t%.2f\n", session.VolumeFor(st.Progress))
	fmt.Fprintf(tw, "frames\t%d scored, %d motion, %d invalid\n", st.FramesScored, st.MotionFrames, st.InvalidFrames)
	fmt.Fprintf(tw, "excluded\t%d pixels\n", st.ExcludedPixels)
	return tw.Flush()
}

func printSessions(ctx context.Context, c *client, limit int, w io.Writer) error {
	var recs []session.Record
	if err := c.get(ctx, "/api/sessions?limit="+strconv.Itoa(limit), &recs); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tOUTCOME\tPEAK\tFRAMES")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%d\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Duration().Round(time.Second),
			r.Outcome, r.PeakProgress, r.FramesScored)
	}
	return tw.Flush()
}

func printSession(ctx context.Context, c *client, id string, w io.Writer) error {
	var d api.SessionDetail
	if err := c.get(ctx, "/api/sessions/"+url.PathEscape(id), &d); err != nil {
		return err
	}
	r := d.Record
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "session\t%s\n", r.ID)
	fmt.Fprintf(tw, "outcome\t%s after %s\n", r.Outcome, r.Duration().Round(time.Second))
	fmt.Fprintf(tw, "qualifying\tmean %.1f, stddev %.1f\n", r.QualifyingMean, r.QualifyingStdDev)
	fmt.Fprintf(tw, "progress\t%d changes, peak %.2f\n", len(d.Progress), r.PeakProgress)
	fmt.Fprintf(tw, "chart\t%s/api/sessions/%s/chart\n", c.base, r.ID)
	return tw.Flush()
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aarthig0611/face-recognition-app/internal/capture"
	"github.com/aarthig0611/face-recognition-app/internal/config"
	"github.com/aarthig0611/face-recognition-app/internal/session"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a capture session from the terminal",
	Long: `Run a capture session against a camera snapshot URL or a directory of
frames, print recognitions as they happen and the emotion report at the end.

The session ends on Ctrl+C, or when a directory source runs out of frames.

Example:
  facerec watch --dir ./frames --interval 200ms
  facerec watch --url http://camera.local/snapshot.jpg`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("dir", "", "Replay the images of this directory in name order")
	watchCmd.Flags().String("url", "", "Poll this JPEG snapshot URL")
	watchCmd.Flags().Duration("interval", 0, "Tick interval (overrides SESSION_INTERVAL)")
	watchCmd.Flags().Bool("json", false, "Print events and the report as JSON")
	watchCmd.MarkFlagsMutuallyExclusive("dir", "url")
}

// consoleSink prints session events as they arrive.
type consoleSink struct {
	json bool
}

func (c consoleSink) Publish(e session.Event) {
	if c.json {
		_ = outputJSON(e)
		return
	}
	at := e.At.Format("15:04:05.000")
	switch e.Type {
	case session.EventAnnotationReady:
		a := e.Annotation
		fmt.Printf("%s  %-20s %-10s distance %.3f\n", at, a.Label, a.Emotion, a.Distance)
	case session.EventFaceUnresolved:
		fmt.Printf("%s  unknown face (fingerprint %.32s...)\n", at, e.Unresolved.Fingerprint)
	case session.EventSessionFailed:
		fmt.Printf("%s  session failed: %s\n", at, e.Error)
	case session.EventSessionStarted:
		fmt.Printf("%s  session %s started\n", at, e.SessionID)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	url := mustGetString(cmd, "url")
	jsonOutput := mustGetBool(cmd, "json")
	if dir == "" && url == "" {
		return errors.New("one of --dir or --url is required")
	}

	cfg := config.Load()
	if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
		cfg.Session.Interval = interval
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if !jsonOutput {
		a.printGallery()
	}

	done := make(chan *session.Report, 1)
	a.manager.AddSink(consoleSink{json: jsonOutput})
	a.manager.AddSink(session.SinkFunc(func(e session.Event) {
		if e.Type != session.EventSessionReport {
			return
		}
		select {
		case done <- e.Report:
		default:
		}
	}))

	var src capture.Source
	if dir != "" {
		src = capture.NewDirectorySource(dir)
	} else {
		src = capture.NewSnapshotSource(url, cfg.Detector.Timeout)
	}

	o, err := a.manager.Start(ctx, src)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var report *session.Report
	select {
	case report = <-done:
	case <-sigChan:
		if report, err = a.manager.Stop(o.ID()); err != nil {
			return err
		}
	}

	if jsonOutput {
		return outputJSON(report)
	}
	printReport(report)
	return nil
}

func printReport(r *session.Report) {
	var duration time.Duration
	if r.EndedAt != nil {
		duration = r.EndedAt.Sub(r.StartedAt)
	}

	fmt.Printf("\nSession %s (%s) ended: %s\n", r.SessionID, r.Source, r.Reason)
	if r.Error != "" {
		fmt.Printf("  Error:      %s\n", r.Error)
	}
	fmt.Printf("  Duration:   %s\n", formatDuration(duration))
	fmt.Printf("  Frames:     %d (%d errors, %d skipped ticks)\n", r.Counters.Frames, r.Counters.FrameErrors, r.Counters.SkippedTicks)
	fmt.Printf("  Detections: %d (%d unresolved)\n", r.Counters.Detections, r.Counters.Unresolved)

	if len(r.People) == 0 {
		fmt.Println("\nNo known person was recognized.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nPERSON\tEMOTION\tTIME\tSHARE\tRANK")
	for _, p := range r.People {
		for _, s := range p.Emotions {
			fmt.Fprintf(w, "%s\t%s\t%.1fs\t%.1f%%\t%d\n", p.Label, s.Emotion, float64(s.DurationMs)/1000, s.Percent, s.Rank)
		}
	}
	w.Flush()
}

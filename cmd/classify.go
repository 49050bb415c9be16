package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mosport/venue-signal/internal/lifecycle"
	"github.com/mosport/venue-signal/internal/model"
)

var (
	classifyStart  string
	classifyStatus string
	classifyAt     string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Print the tier and next-check interval for an event",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now().UTC()
		if classifyAt != "" {
			t, err := time.Parse(time.RFC3339, classifyAt)
			if err != nil {
				return eris.Wrap(err, "parse --at")
			}
			now = t
		}
		return classify(cmd.OutOrStdout(), classifyStart, classifyStatus, now)
	},
}

func classify(w io.Writer, startRaw, statusRaw string, now time.Time) error {
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return eris.Wrap(err, "parse --start")
	}
	status := model.EventStatus(statusRaw)
	switch status {
	case model.EventStatusScheduled, model.EventStatusLive, model.EventStatusFinished, model.EventStatusCancelled:
	default:
		return eris.Errorf("unknown status %q", statusRaw)
	}

	tier := lifecycle.TierOf(start, status, now)
	_, err = fmt.Fprintf(w, "tier=%s next_check=%s live_window=%t\n",
		tier, lifecycle.NextCheck(start, status, now), lifecycle.InLiveWindow(start, status, now))
	return err
}

func init() {
	classifyCmd.Flags().StringVar(&classifyStart, "start", "", "event start time (RFC 3339)")
	classifyCmd.Flags().StringVar(&classifyStatus, "status", "scheduled", "event status")
	classifyCmd.Flags().StringVar(&classifyAt, "at", "", "evaluate at this time instead of now (RFC 3339)")
	_ = classifyCmd.MarkFlagRequired("start")
	rootCmd.AddCommand(classifyCmd)
}

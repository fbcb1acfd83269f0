package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tripplanner/internal/model"
	"tripplanner/internal/schedule"
)

type optimizeInput struct {
	Start       model.GeoPoint         `json:"start"`
	Places      []model.Place          `json:"places"`
	Preferences model.RoutePreferences `json:"preferences"`
}

func newOptimizeCmd(app *App) *cobra.Command {
	var file, start, mode string
	var back bool

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Order places into a short route",
		Long:  "Reads {start, places, preferences} as JSON from --file or stdin and prints the optimized route.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in optimizeInput
			if err := readInput(app, file, &in); err != nil {
				return err
			}
			if start != "" {
				p, err := parsePoint(start)
				if err != nil {
					return err
				}
				in.Start = p
			}
			if mode != "" {
				in.Preferences.Mode = model.TransportMode(mode)
			}
			if back {
				in.Preferences.ReturnToStart = true
			}
			route, err := app.Optimizer.Optimize(context.Background(), in.Start, in.Places, in.Preferences)
			if err != nil {
				return err
			}
			return printJSON(app, route)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Input JSON file (default stdin)")
	cmd.Flags().StringVar(&start, "start", "", "Start as lat,lng (overrides the input)")
	cmd.Flags().StringVar(&mode, "mode", "", "Transport mode: driving, walking or transit")
	cmd.Flags().BoolVar(&back, "return", false, "Close the route at the start")
	return cmd
}

func newScheduleCmd(app *App) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Turn slotted stops into a timed itinerary",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req schedule.Request
			if err := readInput(app, file, &req); err != nil {
				return err
			}
			res, err := schedule.Schedule(req)
			if err != nil {
				return err
			}
			return printJSON(app, res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Input JSON file (default stdin)")
	return cmd
}

func newSuggestCmd(app *App) *cobra.Command {
	var day int
	var destination string
	var refresh bool

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Show activity suggestions for one day at a destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(destination) == "" {
				return fmt.Errorf("--destination is required")
			}
			ctx := context.Background()
			if refresh {
				if err := app.Suggest.Refresh(ctx, day, destination); err != nil {
					return err
				}
			}
			got, src := app.Suggest.GetOrFetch(ctx, day, destination)
			return printJSON(app, map[string]any{"day": day, "destination": destination, "source": src, "suggestions": got})
		},
	}

	cmd.Flags().IntVar(&day, "day", 1, "Day number within the trip")
	cmd.Flags().StringVar(&destination, "destination", "", "Destination name")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Drop any cached set first")
	return cmd
}

func parsePoint(s string) (model.GeoPoint, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return model.GeoPoint{}, fmt.Errorf("point %q: want lat,lng", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return model.GeoPoint{}, fmt.Errorf("point %q: %w", s, err)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return model.GeoPoint{}, fmt.Errorf("point %q: %w", s, err)
	}
	return model.GeoPoint{Lat: la, Lng: lo}, nil
}

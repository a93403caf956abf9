package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dkeye/meshcall/internal/domain"
)

func newRoomsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List active rooms on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			endpoint, err := roomsURL(cfg.ServerURL)
			if err != nil {
				return err
			}
			rooms, err := fetchRooms(cmd.Context(), http.DefaultClient, endpoint)
			if err != nil {
				return err
			}
			renderRooms(cmd.OutOrStdout(), rooms)
			return nil
		},
	}
}

// roomsURL maps the signaling websocket URL onto the rooms endpoint of the
// same server.
func roomsURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "http":
		u.Scheme = "http"
	case "wss", "https":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = "/api/rooms"
	u.RawQuery = ""
	return u.String(), nil
}

func fetchRooms(ctx context.Context, client *http.Client, endpoint string) ([]domain.RoomStats, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list rooms: %s", resp.Status)
	}

	var body struct {
		Rooms []domain.RoomStats `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode rooms: %w", err)
	}
	return body.Rooms, nil
}

func renderRooms(w io.Writer, rooms []domain.RoomStats) {
	if len(rooms) == 0 {
		fmt.Fprintln(w, "No active rooms.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Room", "Members", "Creator", "Sharing", "Created"})
	for _, r := range rooms {
		sharing := "-"
		if r.ScreenSharingMemberID != nil {
			sharing = r.ScreenSharingMemberID.Short()
		}
		t.AppendRow(table.Row{
			r.RoomID,
			fmt.Sprintf("%d/%d", r.MemberCount, domain.MaxMembers),
			r.CreatorID.Short(),
			sharing,
			r.CreatedAt.Local().Format(time.DateTime),
		})
	}
	t.Render()
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	statusAddr string
	statusJSON bool
)

func init() {
	flags := StatusCmd.PersistentFlags()

	flags.StringVar(&statusAddr, "addr", net.JoinHostPort("127.0.0.1", "7362"), "The address of a running esplink")
	flags.BoolVar(&statusJSON, "json", false, "Print the raw status document")
}

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state of a running esplink",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+statusAddr+"/status", nil)
		if err != nil {
			return err
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status: %s", resp.Status)
		}

		out := cmd.OutOrStdout()

		if statusJSON {
			fmt.Fprintf(out, "%s\n", body)
			return nil
		}

		doc := gjson.ParseBytes(body)

		fmt.Fprintf(out, "state:    %s\n", doc.Get("state").String())
		fmt.Fprintf(out, "mode:     %s\n", doc.Get("mode").String())
		fmt.Fprintf(out, "port:     %d\n", doc.Get("port").Int())
		fmt.Fprintf(out, "station:  associated=%t ip=%t\n",
			doc.Get("station.associated").Bool(),
			doc.Get("station.hasIP").Bool())

		doc.Get("registry.clients").ForEach(func(_, c gjson.Result) bool {
			fmt.Fprintf(out, "client %d: %d queued\n", c.Get("id").Int(), c.Get("queued").Int())
			return true
		})

		fmt.Fprintf(out, "light:    %t\n", doc.Get("app.light").Bool())
		fmt.Fprintf(out, "feeds:    %d\n", doc.Get("app.feeds").Int())

		return nil
	},
}

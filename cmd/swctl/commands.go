package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
	"github.com/weatherdash/offline-proxy/internal/control"
)

func newMessageCmd(opts *globalOptions) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "message <action>",
		Short: "Post a control message",
		Long: "Post a control message to the proxy and print the reply.\n" +
			"Actions: skipWaiting, getCacheSize, clearCache, queueRequest, queueNotification.",
		Example: `  swctl message getCacheSize
  swctl message queueRequest --data '{"method":"POST","url":"/api/weather/favorites"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := control.Message{Action: args[0]}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				msg.Data = json.RawMessage(data)
			}
			body, err := json.Marshal(msg)
			if err != nil {
				return err
			}

			client, err := newClient(opts)
			if err != nil {
				return err
			}
			resp, err := client.do(cmd.Context(), http.MethodPost, "/message", body)
			if err != nil {
				return err
			}

			var reply control.Reply
			if err := json.Unmarshal(resp, &reply); err != nil {
				return fmt.Errorf("decode reply: %w", err)
			}
			if reply.Ignored {
				fmt.Fprintf(cmd.ErrOrStderr(), "action %q ignored by proxy\n", reply.Action)
			}
			printJSON(cmd, resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON payload for the action")
	return cmd
}

func newSyncCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <tag>",
		Short: "Fire a background sync event",
		Long:  "Fire a background sync event. Tags: weather-data-sync, weather-notification-sync, weather-refresh.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			resp, err := client.do(cmd.Context(), http.MethodPost, "/sync/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			printJSON(cmd, resp)
			return nil
		},
	}
}

func newPushCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push [payload]",
		Short: "Deliver a push message",
		Long:  "Deliver a push message. Without a payload the proxy shows its default notification.",
		Example: `  swctl push
  swctl push '{"title":"Storm warning","body":"Gusts up to 90 km/h"}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := []byte{}
			if len(args) == 1 {
				body = []byte(args[0])
			}
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			resp, err := client.do(cmd.Context(), http.MethodPost, "/push", body)
			if err != nil {
				return err
			}
			printJSON(cmd, resp)
			return nil
		},
	}
}

func newClickCmd(opts *globalOptions) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "click <action>",
		Short: "Simulate a notification click",
		Long:  "Simulate a notification click. Actions: view, dismiss, or an empty string for the body.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{"action": args[0]}
			if target != "" {
				payload["data"] = map[string]any{"url": target}
			}
			body, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			if _, err := client.do(cmd.Context(), http.MethodPost, "/notification-click", body); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "url carried in the notification data")
	return cmd
}

func newStateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show lifecycle, cache and client state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			resp, err := client.do(cmd.Context(), http.MethodGet, "/state", nil)
			if err != nil {
				return err
			}
			printJSON(cmd, resp)
			return nil
		},
	}
}

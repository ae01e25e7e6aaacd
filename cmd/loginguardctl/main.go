// Command loginguardctl is the admin CLI for a running loginguard node: it
// drives the HTTP façade's admin routes for blocklist/allowlist entries,
// counter inspection, and webhook registration.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loginguard/engine/pkg/utils"
)

var (
	nodeAddr string
	authUser string
	authPass string
)

func main() {
	root := &cobra.Command{Use: "loginguardctl"}
	root.PersistentFlags().StringVar(&nodeAddr, "addr", utils.EnvOrDefault("LOGINGUARDCTL_ADDR", "http://127.0.0.1:8084"), "loginguard node base URL")
	root.PersistentFlags().StringVar(&authUser, "user", "loginguard", "basic auth user")
	root.PersistentFlags().StringVar(&authPass, "password", utils.EnvOrDefault("LOGINGUARDCTL_PASSWORD", ""), "basic auth password")

	root.AddCommand(blwlCmd())
	root.AddCommand(twCmd())
	root.AddCommand(hookCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func client() *http.Client { return &http.Client{} }

func newRequest(method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequest(method, strings.TrimRight(nodeAddr, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if authPass != "" {
		req.SetBasicAuth(authUser, authPass)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func do(method, path string, body []byte) ([]byte, error) {
	req, err := newRequest(method, path, body)
	if err != nil {
		return nil, utils.Wrap(err, "build request")
	}
	resp, err := client().Do(req)
	if err != nil {
		return nil, utils.Wrap(err, "send request")
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, utils.Wrap(err, "read response")
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("loginguardctl: %s %s: %d: %s", method, path, resp.StatusCode, string(out))
	}
	return out, nil
}

func blwlCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "blwl", Short: "inspect and edit the blocklist/allowlist stores"}

	var list, kind, reason string
	var ttl int64

	add := &cobra.Command{
		Use:   "add <key>",
		Short: "add an entry to the bl or wl store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]any{
				"kind": kind, "key": args[0], "ttl_seconds": ttl, "reason": reason,
			})
			_, err := do(http.MethodPost, "/blwl/"+list, body)
			return err
		},
	}
	add.Flags().StringVar(&list, "list", "bl", "bl or wl")
	add.Flags().StringVar(&kind, "kind", "ip", "ip, login, or ip_login")
	add.Flags().Int64Var(&ttl, "ttl", 3600, "entry TTL in seconds")
	add.Flags().StringVar(&reason, "reason", "", "reason recorded with the entry")

	del := &cobra.Command{
		Use:   "del <key>",
		Short: "delete an entry from the bl or wl store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/blwl/%s/%s/%s", list, kind, url.PathEscape(args[0]))
			_, err := do(http.MethodDelete, path, nil)
			return err
		},
	}
	del.Flags().StringVar(&list, "list", "bl", "bl or wl")
	del.Flags().StringVar(&kind, "kind", "ip", "ip, login, or ip_login")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list entries in the bl or wl store",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := do(http.MethodGet, fmt.Sprintf("/blwl/%s/%s", list, kind), nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	listCmd.Flags().StringVar(&list, "list", "bl", "bl or wl")
	listCmd.Flags().StringVar(&kind, "kind", "ip", "ip, login, or ip_login")

	cmd.AddCommand(add, del, listCmd)
	return cmd
}

func twCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tw", Short: "inspect and reset counter-store entries"}

	var store, field string

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "read a field's current aggregate for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/tw/%s/%s?key=%s", store, field, url.QueryEscape(args[0]))
			out, err := do(http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	get.Flags().StringVar(&store, "store", "report", "counter store name")
	get.Flags().StringVar(&field, "field", "fail", "field name")

	reset := &cobra.Command{
		Use:   "reset <key>",
		Short: "clear all of a key's counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/tw/%s/reset?key=%s", store, url.QueryEscape(args[0]))
			_, err := do(http.MethodPost, path, nil)
			return err
		},
	}
	reset.Flags().StringVar(&store, "store", "report", "counter store name")

	cmd.AddCommand(get, reset)
	return cmd
}

func hookCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "hook", Short: "register and test webhook endpoints"}

	var events, hookURL, name string
	var active bool

	register := &cobra.Command{
		Use:   "register",
		Short: "register a new webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			evs := []string{}
			if events != "" {
				evs = strings.Split(events, ",")
			}
			body, _ := json.Marshal(map[string]any{
				"name": name, "events": evs, "active": active,
				"config": map[string]string{"url": hookURL},
			})
			out, err := do(http.MethodPost, "/hooks", body)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	register.Flags().StringVar(&name, "name", "", "hook name")
	register.Flags().StringVar(&events, "events", "", "comma-separated event list")
	register.Flags().StringVar(&hookURL, "url", "", "delivery URL")
	register.Flags().BoolVar(&active, "active", true, "hook is active")

	ping := &cobra.Command{
		Use:   "ping <name>",
		Short: "trigger a synchronous dry-run delivery of a named hook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := do(http.MethodPost, "/command/"+url.PathEscape(args[0]), nil)
			return err
		},
	}

	cmd.AddCommand(register, ping)
	return cmd
}

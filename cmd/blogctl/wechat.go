package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/cloudblog-api/pkg/wechat"
)

func wechatCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wechat",
		Short: "Query the WeChat Cloud database and functions",
		Long: `Calls the WeChat Cloud API with a client-credential access token obtained
from WECHAT_APP_ID and WECHAT_APP_SECRET. WECHAT_ENV selects the cloud environment.`,
	}
	cmd.AddCommand(wechatFindCmd(opts), wechatCountCmd(opts), wechatInvokeCmd(opts))
	return cmd
}

func (o *rootOptions) wechatClient() (*wechat.Client, error) {
	cfg := o.cfg.Wechat
	if cfg.Env == "" {
		return nil, errors.New("WECHAT_ENV is not set")
	}

	base := wechat.Config{Env: cfg.Env, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}
	opts := []wechat.Option{wechat.WithLogger(o.logger)}
	if cfg.AppID != "" && cfg.AppSecret != "" {
		tokens := wechat.NewTokenSource(wechat.NewClient(base, wechat.WithLogger(o.logger)),
			cfg.AppID, cfg.AppSecret, 0, o.logger)
		opts = append(opts, wechat.WithTokenProvider(tokens))
	}
	return wechat.NewClient(base, opts...), nil
}

func parseWhere(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var where map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &where); err != nil {
		return nil, fmt.Errorf("invalid --where: %w", err)
	}
	return where, nil
}

func wechatFindCmd(opts *rootOptions) *cobra.Command {
	var (
		where string
		order string
		desc  bool
		limit int
		skip  int
	)

	cmd := &cobra.Command{
		Use:   "find <collection>",
		Short: "Find documents in a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseWhere(where)
			if err != nil {
				return err
			}
			client, err := opts.wechatClient()
			if err != nil {
				return err
			}

			find := wechat.FindOptions{Where: filter, Limit: limit, Skip: skip}
			if order != "" {
				find.OrderBy = &wechat.Order{Field: order, Desc: desc}
			}
			var docs []map[string]interface{}
			if _, err := wechat.NewModelAPI(client).Find(cmd.Context(), args[0], find, &docs); err != nil {
				return err
			}
			if docs == nil {
				docs = []map[string]interface{}{}
			}
			return printJSON(cmd.OutOrStdout(), docs)
		},
	}

	cmd.Flags().StringVar(&where, "where", "", `filter as JSON, e.g. {"status":"published"}`)
	cmd.Flags().StringVar(&order, "order", "", "field to sort on")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum documents")
	cmd.Flags().IntVar(&skip, "skip", 0, "documents to skip")
	return cmd
}

func wechatCountCmd(opts *rootOptions) *cobra.Command {
	var where string

	cmd := &cobra.Command{
		Use:   "count <collection>",
		Short: "Count documents in a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseWhere(where)
			if err != nil {
				return err
			}
			client, err := opts.wechatClient()
			if err != nil {
				return err
			}
			n, err := wechat.NewModelAPI(client).Count(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().StringVar(&where, "where", "", "filter as JSON")
	return cmd
}

func wechatInvokeCmd(opts *rootOptions) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "invoke <function>",
		Short: "Invoke a cloud function and print its response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload interface{} = map[string]interface{}{}
			if data != "" {
				if err := json.Unmarshal([]byte(data), &payload); err != nil {
					return fmt.Errorf("invalid --data: %w", err)
				}
			}
			client, err := opts.wechatClient()
			if err != nil {
				return err
			}
			result, err := client.InvokeCloudFunction(cmd.Context(), args[0], payload)
			if err != nil {
				return err
			}
			var decoded interface{}
			if err := result.Decode(&decoded); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), result.RespData)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), decoded)
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "function payload as JSON")
	return cmd
}

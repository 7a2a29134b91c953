package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/oilpriceapi-go/pkg/client"
)

// maxParallelCodes bounds concurrent calls of one latest invocation.
const maxParallelCodes = 4

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "oilprice",
		Short:   "Query commodity prices, diesel prices and price alerts from OilPriceAPI",
		Version: client.Version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.opts.apiKey, "api-key", "", "API key (default $"+envAPIKey+")")
	flags.StringVar(&a.opts.baseURL, "base-url", "", "API base URL (default $"+envBaseURL+" or "+client.DefaultBaseURL+")")
	flags.StringVar(&a.opts.redisURL, "redis-url", "", "Redis for quota tracking (default $"+envRedisURL+")")
	flags.StringVar(&a.opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.IntVar(&a.opts.retries, "retries", client.DefaultMaxRetries, "additional attempts after a retryable failure")
	flags.DurationVar(&a.opts.timeout, "timeout", client.DefaultTimeout, "timeout of each attempt")
	flags.BoolVar(&a.opts.debug, "debug", false, "log every attempt")
	flags.BoolVar(&a.opts.pretty, "pretty", false, "human-readable logs")

	rootCmd.AddCommand(
		latestCmd(a),
		historicalCmd(a),
		commoditiesCmd(a),
		categoriesCmd(a),
		commodityCmd(a),
		dieselCmd(a),
		alertsCmd(a),
		quotaCmd(a),
	)
	return rootCmd
}

func latestCmd(a *app) *cobra.Command {
	var watch time.Duration

	cmd := &cobra.Command{
		Use:   "latest [CODE...]",
		Short: "Latest prices, for all commodities or the given codes",
		Example: `  oilprice latest
  oilprice latest WTI_USD BRENT_CRUDE_USD
  oilprice latest WTI_USD --watch 5m --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.apiClient(ctx)
			if err != nil {
				return err
			}

			for {
				prices, err := fetchLatest(ctx, c, args)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), prices); err != nil {
					return err
				}
				if watch <= 0 {
					return nil
				}

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(watch):
				}
			}
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "repeat every interval until interrupted")
	return cmd
}

// fetchLatest queries each code concurrently and returns the prices in
// argument order. No codes means all commodities.
func fetchLatest(ctx context.Context, c *client.Client, codes []string) ([]client.Price, error) {
	if len(codes) == 0 {
		return c.Prices.Latest(ctx, "")
	}

	results := make([][]client.Price, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelCodes)

	for i, code := range codes {
		g.Go(func() error {
			prices, err := c.Prices.Latest(gctx, code)
			if err != nil {
				return fmt.Errorf("latest %s: %w", code, err)
			}
			results[i] = prices
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []client.Price
	for _, prices := range results {
		all = append(all, prices...)
	}
	return all, nil
}

func historicalCmd(a *app) *cobra.Command {
	var opts client.HistoricalOptions

	cmd := &cobra.Command{
		Use:     "historical",
		Short:   "Historical prices",
		Example: `  oilprice historical --code WTI_USD --period past_week --interval daily`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			prices, err := c.Prices.Historical(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), prices)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Period, "period", "", "past_day, past_week, past_month or past_year")
	f.StringVar(&opts.Code, "code", "", "commodity code")
	f.StringVar(&opts.StartDate, "start", "", "start date (YYYY-MM-DD)")
	f.StringVar(&opts.EndDate, "end", "", "end date (YYYY-MM-DD)")
	f.StringVar(&opts.Interval, "interval", "", "raw, hourly, daily, weekly or monthly")
	f.IntVar(&opts.PerPage, "per-page", 0, "results per page")
	f.IntVar(&opts.Page, "page", 0, "page number")
	return cmd
}

func commoditiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "commodities",
		Short: "List supported commodities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			commodities, err := c.Commodities.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), commodities)
		},
	}
}

func categoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List commodity categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			categories, err := c.Commodities.Categories(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), categories)
		},
	}
}

func commodityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "commodity CODE",
		Short: "Show one commodity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			commodity, err := c.Commodities.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), commodity)
		},
	}
}

func dieselCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diesel",
		Short: "Retail diesel prices",
	}

	average := &cobra.Command{
		Use:     "average STATE",
		Short:   "Average diesel price of a US state",
		Example: `  oilprice diesel average CA`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			price, err := c.Diesel.StateAverage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), price)
		},
	}

	var lat, lng, radius float64
	stations := &cobra.Command{
		Use:     "stations",
		Short:   "Diesel stations near a location",
		Example: `  oilprice diesel stations --lat 37.77 --lng -122.42 --radius 5`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			result, err := c.Diesel.Stations(cmd.Context(), lat, lng, radius)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	stations.Flags().Float64Var(&lat, "lat", 0, "latitude")
	stations.Flags().Float64Var(&lng, "lng", 0, "longitude")
	stations.Flags().Float64Var(&radius, "radius", client.DefaultStationRadius, "search radius in miles")
	stations.MarkFlagRequired("lat")
	stations.MarkFlagRequired("lng")

	cmd.AddCommand(average, stations)
	return cmd
}

// alertFlags binds the alert fields to flags. Only flags the user set end
// up in the request.
type alertFlags struct {
	name     string
	code     string
	operator string
	value    float64
	webhook  string
	enabled  bool
	cooldown int
	metadata string
}

func (f *alertFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.name, "name", "", "alert name")
	fs.StringVar(&f.code, "code", "", "commodity code")
	fs.StringVar(&f.operator, "operator", "", "greater_than, less_than, equals, greater_than_or_equal or less_than_or_equal")
	fs.Float64Var(&f.value, "value", 0, "threshold price")
	fs.StringVar(&f.webhook, "webhook", "", "https webhook URL")
	fs.BoolVar(&f.enabled, "enabled", true, "whether the alert is active")
	fs.IntVar(&f.cooldown, "cooldown", 0, "minutes between triggers")
	fs.StringVar(&f.metadata, "metadata", "", "JSON object stored with the alert")
}

func (f *alertFlags) params(cmd *cobra.Command) (client.AlertParams, error) {
	var p client.AlertParams
	changed := cmd.Flags().Changed

	if changed("name") {
		p.Name = client.String(f.name)
	}
	if changed("code") {
		p.CommodityCode = client.String(f.code)
	}
	if changed("operator") {
		p.ConditionOperator = client.String(f.operator)
	}
	if changed("value") {
		p.ConditionValue = client.Float64(f.value)
	}
	if changed("webhook") {
		p.WebhookURL = client.String(f.webhook)
	}
	if changed("enabled") {
		p.Enabled = client.Bool(f.enabled)
	}
	if changed("cooldown") {
		p.CooldownMinutes = client.Int(f.cooldown)
	}
	if changed("metadata") {
		if !json.Valid([]byte(f.metadata)) {
			return p, fmt.Errorf("%w: metadata is not valid JSON", client.ErrInvalidArgument)
		}
		p.Metadata = json.RawMessage(f.metadata)
	}
	return p, nil
}

func alertsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Manage price alerts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			alerts, err := c.Alerts.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), alerts)
		},
	}

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			alert, err := c.Alerts.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), alert)
		},
	}

	var createFlags alertFlags
	create := &cobra.Command{
		Use:     "create",
		Short:   "Create an alert",
		Example: `  oilprice alerts create --name "WTI above 80" --code WTI_USD --operator greater_than --value 80 --webhook https://example.com/hook`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := createFlags.params(cmd)
			if err != nil {
				return err
			}
			c, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			alert, err := c.Alerts.Create(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), alert)
		},
	}
	createFlags.bind(create)

	var updateFlags alertFlags
	update := &cobra.Command{
		Use:     "update ID",
		Short:   "Change fields of an alert",
		Example: `  oilprice alerts update 42 --enabled=false`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := updateFlags.params(cmd)
			if err != nil {
				return err
			}
			c, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			alert, err := c.Alerts.Update(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), alert)
		},
	}
	updateFlags.bind(update)

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.Alerts.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted alert %s\n", args[0])
			return nil
		},
	}

	testWebhook := &cobra.Command{
		Use:   "test-webhook URL",
		Short: "Send a sample alert payload to a webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			result, err := c.Alerts.TestWebhook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.AddCommand(list, get, create, update, del, testWebhook)
	return cmd
}

func quotaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the last quota reported by the API",
		Long: `Show the request quota recorded from the X-RateLimit-* headers of earlier
calls made with the same API key. Requires Redis (--redis-url or REDIS_URL).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := a.quotaTracker(cmd.Context(), a.fallback(a.opts.apiKey, envAPIKey))
			if err != nil {
				return err
			}
			state, err := tracker.GetState(cmd.Context())
			if err != nil {
				return err
			}
			if state == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no quota recorded yet")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Limit          int       `json:"limit"`
				Remaining      int       `json:"remaining"`
				ResetAt        time.Time `json:"reset_at"`
				ResetIn        string    `json:"reset_in"`
				LastUpdate     time.Time `json:"last_update"`
				IsHealthy      bool      `json:"is_healthy"`
				IsCritical     bool      `json:"is_critical"`
				RemainingRatio float64   `json:"remaining_ratio"`
			}{
				Limit:          state.Limit,
				Remaining:      state.Remaining,
				ResetAt:        state.ResetAt,
				ResetIn:        state.TimeUntilReset().Round(time.Second).String(),
				LastUpdate:     state.LastUpdate,
				IsHealthy:      state.IsHealthy,
				IsCritical:     state.IsCritical(),
				RemainingRatio: state.RemainingRatio(),
			})
		},
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/secureclaw/secureclaw/internal/audit"
	"github.com/secureclaw/secureclaw/internal/formatter"
	"github.com/secureclaw/secureclaw/internal/monitor"
)

const stopTimeout = 10 * time.Second

var (
	monitorMetricsAddr string
	monitorJSON        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the background monitors until interrupted",
	Long: `Audit once, then run the credential, memory-integrity and cost monitors
against the state directory, printing each new alert as it is raised.
Stops cleanly on SIGINT or SIGTERM.

With --metrics-addr, Prometheus metrics are served on /metrics.

Examples:
  secureclaw monitor
  secureclaw monitor --json --metrics-addr 127.0.0.1:9464`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	monitorCmd.GroupID = "core"
	monitorCmd.Flags().StringVar(&monitorMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	monitorCmd.Flags().BoolVar(&monitorJSON, "json", false, "Print alerts as JSON lines")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	score := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "secureclaw",
		Name:      "audit_score",
		Help:      "Score of the startup audit.",
	})
	reg.MustRegister(score)
	metrics := monitor.NewMetrics(reg)

	auditor := audit.New(audit.WithLogger(logger), audit.WithScoreGauge(score))
	report, err := auditor.Run(ctx, newAuditContext(), audit.Options{})
	if err != nil {
		return err
	}
	logger.Info("startup audit", zap.Int("score", report.Score), zap.Int("findings", len(report.Findings)))
	if report.Summary.Critical > 0 {
		logger.Warn("critical findings present; run secureclaw audit", zap.Int("critical", report.Summary.Critical))
	}

	var srv *http.Server
	if monitorMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: monitorMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", monitorMetricsAddr))
	}

	sup := monitor.NewSupervisor(settings, monitor.WithLogger(logger), monitor.WithMetrics(metrics))
	if err := sup.StartAll(ctx, stateDir); err != nil {
		_ = sup.StopAll(context.Background())
		return err
	}
	logger.Info("monitors started", zap.String("state_dir", stateDir))

	streamAlerts(ctx, cmd, sup)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	err = sup.StopAll(stopCtx)
	if srv != nil {
		_ = srv.Shutdown(stopCtx)
	}
	logger.Info("monitors stopped")
	return err
}

// streamAlerts prints alerts not seen before until ctx is done.
func streamAlerts(ctx context.Context, cmd *cobra.Command, sup *monitor.Supervisor) {
	out := cmd.OutOrStdout()
	jw := formatter.NewJSONLWriter(out)
	seen := map[string]bool{}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		// Only IDs still held by a history are kept, so evicted alerts drop out.
		current := map[string]bool{}
		for _, st := range sup.Statuses() {
			for _, a := range st.Alerts {
				current[a.ID] = true
				if seen[a.ID] {
					continue
				}
				if monitorJSON {
					_ = jw.Write(a)
				} else {
					printAlert(out, a)
				}
			}
		}
		seen = current
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

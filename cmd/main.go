/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUTHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/client-go/dynamic"
	_ "k8s.io/client-go/plugin/pkg/client/auth"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/digi-dev/mounter/internal/bridge"
	"github.com/digi-dev/mounter/internal/ledger"
	"github.com/digi-dev/mounter/internal/metrics"
	"github.com/digi-dev/mounter/internal/modelref"
	"github.com/digi-dev/mounter/internal/mounter"
	"github.com/digi-dev/mounter/internal/store"
)

var setupLog = ctrl.Log.WithName("setup")

func init() {
	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
}

func main() {
	var metricsPort int
	flag.IntVar(&metricsPort, "metrics-port", 8080, "The port for the metrics server.")

	group := os.Getenv("GROUP")
	version := os.Getenv("VERSION")
	plural := os.Getenv("PLURAL")
	name := os.Getenv("NAME")
	if group == "" || version == "" || plural == "" || name == "" {
		setupLog.Info("GROUP, VERSION, PLURAL and NAME must all be set")
		os.Exit(1)
	}

	namespace := os.Getenv("NAMESPACE")
	if namespace == "" {
		namespace = modelref.DefaultNamespace
	}

	gvr := modelref.GVR{Group: group, Version: version, Plural: plural}
	nsn := modelref.NSN{Namespace: namespace, Name: name}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	metricsMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	metricsServer := &http.Server{
		Addr:    ":" + strconv.Itoa(metricsPort),
		Handler: metricsMux,
	}
	go func() {
		setupLog.Info("starting metrics server", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			setupLog.Error(err, "problem running metrics server")
			os.Exit(1)
		}
	}()

	ctx := ctrl.SetupSignalHandler()

	exporter, shutdownMetrics, err := metrics.InitOTLPExporter(ctx)
	if err != nil {
		setupLog.Error(err, "unable to initialize OTLP exporter")
		os.Exit(1)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			setupLog.Error(err, "failed to shutdown OTLP exporter")
		}
	}()

	if os.Getenv("MOUNTER") == "false" {
		setupLog.Info("mounter disabled via MOUNTER=false, serving metrics only")
		<-ctx.Done()
		return
	}

	dynClient, err := dynamic.NewForConfig(ctrl.GetConfigOrDie())
	if err != nil {
		setupLog.Error(err, "unable to build dynamic client")
		os.Exit(1)
	}

	sc := store.New(dynClient)
	led := ledger.New()

	m := mounter.New(sc, led, gvr, nsn, setupLog.WithName("mounter"),
		mounter.WithBridge(bridge.New(led)),
		mounter.WithMetrics(exporter),
	)

	if err := m.Start(ctx); err != nil {
		setupLog.Error(err, "unable to start mounter")
		os.Exit(1)
	}
	defer m.Stop()

	setupLog.Info("mounter started", "gvr", gvr.String(), "nsn", nsn.String())
	<-ctx.Done()
	setupLog.Info("shutting down")
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/driver"
	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/observability"
	"git.srvlab.io/whiskey/solidfire-block-driver/pkg/profile"
)

const driverVersion = "0.1.0"

var (
	// Cluster configuration
	endpoint = flag.String("endpoint", "", "Cluster management endpoint: https://<login>:<password>@<mvip>/json-rpc/<version> (required)")
	tlsSkip  = flag.Bool("tls-insecure-skip-verify", false, "Skip TLS certificate verification for the management endpoint")

	// Tenant configuration
	clusterID     = flag.String("cluster-id", "", "Tenant identifier, used as account and access group name (required)")
	volumePrefix  = flag.String("volume-prefix", "flock", "Prefix for volume names")
	initiatorName = flag.String("initiator-name", "", "Override the local initiator IQN instead of reading /etc/iscsi/initiatorname.iscsi")
	svip          = flag.String("svip", "", "Override the storage VIP (ip:port) instead of discovering it from the cluster")

	// Profiles
	profilesFile = flag.String("profiles-file", "", "JSON file mapping profile names to QoS settings; merged over the built-in tiers")

	// Observability
	metricsAddress = flag.String("metrics-address", "", "Listen address for Prometheus metrics, e.g. :9810; empty disables metrics")

	// Version flag
	version = flag.Bool("version", false, "Print version and exit")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *version {
		fmt.Println(driverVersion)
		os.Exit(0)
	}

	if *endpoint == "" {
		klog.Fatal("--endpoint is required")
	}
	if *clusterID == "" {
		klog.Fatal("--cluster-id is required")
	}

	profiles, err := loadProfiles(*profilesFile)
	if err != nil {
		klog.Fatalf("Failed to load profiles from %s: %v", *profilesFile, err)
	}

	var metrics *observability.Metrics
	if *metricsAddress != "" {
		metrics = observability.NewMetrics()
	}

	config := driver.Config{
		Endpoint:              *endpoint,
		ClusterID:             *clusterID,
		VolumePrefix:          *volumePrefix,
		InitiatorName:         *initiatorName,
		SVIP:                  *svip,
		Profiles:              profiles,
		TLSInsecureSkipVerify: *tlsSkip,
		Metrics:               metrics,
	}

	klog.Infof("Creating SolidFire block driver for cluster %q", *clusterID)
	if _, err := driver.New(config); err != nil {
		klog.Fatalf("Failed to bootstrap driver: %v", err)
	}

	if metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			klog.Infof("Serving metrics on %s", *metricsAddress)
			if err := http.ListenAndServe(*metricsAddress, mux); err != nil {
				klog.Fatalf("Metrics server failed: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	klog.Infof("Received signal %s, shutting down", sig)
}

// loadProfiles reads a profile map from a JSON file. An empty path
// means the built-in tiers only.
func loadProfiles(path string) (map[string]profile.Profile, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var profiles map[string]profile.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	klog.V(4).Infof("Loaded %d profiles from %s", len(profiles), path)
	return profiles, nil
}

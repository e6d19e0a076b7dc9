package datastore

import "github.com/prometheus/client_golang/prometheus"

func CacheMisses() prometheus.Counter { return cacheMissMetric }

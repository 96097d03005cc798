// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package form

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packetd/formdecode/common"
)

var (
	partsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "parts_decoded_total",
			Help:      "Completed parts decoded total",
		},
		[]string{"kind"},
	)

	bytesOffered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "bytes_offered_total",
			Help:      "Bytes handed to Offer total",
		},
	)

	fileSpills = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "file_spills_total",
			Help:      "File uploads spilled past the in-memory threshold total",
		},
	)

	decodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "decode_errors_total",
			Help:      "Decode errors total",
		},
		[]string{"state"},
	)

	offerLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: common.App,
			Name:      "offer_duration_seconds",
			Help:      "Offer call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func observePartDecoded(isFile bool) {
	if isFile {
		partsDecoded.WithLabelValues("file").Inc()
		return
	}
	partsDecoded.WithLabelValues("attribute").Inc()
}

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

package tracekit

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceIDFromHTTPHeader(t *testing.T) {
	genID := func(traceID string) pcommon.TraceID {
		tid, _ := trace.TraceIDFromHex(traceID)
		return pcommon.TraceID(tid)
	}

	tests := []struct {
		name        string
		traceParent string
		want        pcommon.TraceID
		wantOK      bool
	}{
		{
			name:        "valid",
			traceParent: "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01",
			want:        genID("0af7651916cd43dd8448eb211c80319c"),
			wantOK:      true,
		},
		{
			name:        "invalid traceid",
			traceParent: "00-0af7651916cd43dd8448eb211c80319!-b7ad6b7169203331-01",
			wantOK:      false,
		},
		{
			name:        "invalid version",
			traceParent: "02-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01",
			wantOK:      false,
		},
		{
			name:        "missing header",
			traceParent: "",
			wantOK:      false,
		},
		{
			name:        "wrong segment count",
			traceParent: "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331",
			wantOK:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := make(http.Header)
			if tt.traceParent != "" {
				header.Set(headerTraceParent, tt.traceParent)
			}

			got, ok := TraceIDFromHTTPHeader(header)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRandomTraceIDAndSpanID(t *testing.T) {
	a := RandomTraceID()
	b := RandomTraceID()
	assert.NotEqual(t, a, b)

	sa := RandomSpanID()
	sb := RandomSpanID()
	assert.NotEqual(t, sa, sb)
}

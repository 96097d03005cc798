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

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/packetd/formdecode/common"
	"github.com/packetd/formdecode/form"
	"github.com/packetd/formdecode/internal/labels"
	"github.com/packetd/formdecode/internal/sigs"
	"github.com/packetd/formdecode/internal/tracekit"
	"github.com/packetd/formdecode/logger"
)

type serveCmdConfig struct {
	Addr      string `config:"addr"`
	H2C       bool   `config:"h2c"`
	MaxMemory int64  `config:"maxMemory"`
	TempDir   string `config:"tempDir"`
}

var serveConfig serveCmdConfig

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a demo HTTP server that decodes multipart/form-data uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := newUploadServer(serveConfig)

		if serveConfig.H2C {
			srv.Handler = h2c.NewHandler(srv.Handler, &http2.Server{})
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Infof("serve: listening on %s (h2c=%v)", serveConfig.Addr, serveConfig.H2C)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		case <-sigs.Terminate():
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.Infof("serve: shutting down")
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
		}
		return nil
	},
}

func newUploadServer(cfg serveCmdConfig) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/upload", handleUpload(cfg)).Methods(http.MethodPost)
	return &http.Server{Addr: cfg.Addr, Handler: r}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"uptime":      time.Now().Unix() - common.Started(),
		"concurrency": common.Concurrency(),
	})
}

// requestID builds a short correlation id from request-shaped labels (the
// way controller/connstream tags a roundtrip for its logs), independent of
// whether the caller sent a traceparent header.
func requestID(r *http.Request) string {
	ls := labels.Labels{
		{Name: "method", Value: r.Method},
		{Name: "path", Value: r.URL.Path},
		{Name: "remote", Value: r.RemoteAddr},
	}
	return fmt.Sprintf("%x", ls.Hash())
}

type uploadSummary struct {
	Name     string `json:"name"`
	IsFile   bool   `json:"is_file"`
	Filename string `json:"filename,omitempty"`
	Bytes    int    `json:"bytes,omitempty"`
}

// handleUpload feeds the decoder from a live request: it pulls raw bytes
// off the request body in fixed-size reads and hands them to Offer, rather
// than buffering the whole body with r.ParseMultipartForm.
func handleUpload(cfg serveCmdConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := requestID(r)
		if tid, ok := tracekit.TraceIDFromHTTPHeader(r.Header); ok {
			reqID = tid.String()
		}

		factory := form.NewDiskFactory(form.DiskFactoryConfig{
			MaxMemory: cfg.MaxMemory,
			TempDir:   cfg.TempDir,
		})
		dec, err := form.New(factory, r.Header, form.EncodingUTF8)
		if err != nil {
			logger.Warnf("serve[%s]: %v", reqID, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		buf := make([]byte, common.ReadWriteBlockSize)
		for {
			n, readErr := r.Body.Read(buf)
			if n > 0 {
				if err := dec.Offer(buf[:n], readErr != nil); err != nil {
					logger.Warnf("serve[%s]: decode error: %v", reqID, err)
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
			}
			if readErr != nil {
				if n == 0 {
					if err := dec.Offer(nil, true); err != nil {
						logger.Warnf("serve[%s]: decode error: %v", reqID, err)
						http.Error(w, err.Error(), http.StatusBadRequest)
						return
					}
				}
				break
			}
		}
		defer func() {
			if err := dec.Destroy(); err != nil {
				logger.Warnf("serve[%s]: destroy: %v", reqID, err)
			}
		}()

		var out []uploadSummary
		for dec.HasNext() {
			p, err := dec.Next()
			if err != nil {
				logger.Warnf("serve[%s]: next: %v", reqID, err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			s := uploadSummary{Name: p.Name(), IsFile: p.IsFile()}
			if p.IsFile() {
				s.Filename = p.File.Filename()
			} else {
				s.Bytes = len(p.Attribute.Value())
			}
			out = append(out, s)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveConfig.Addr, "addr", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&serveConfig.H2C, "h2c", false, "Serve HTTP/2 over cleartext")
	serveCmd.Flags().Int64Var(&serveConfig.MaxMemory, "max-memory", 1<<20, "Bytes a file upload may hold in memory before spilling to disk")
	serveCmd.Flags().StringVar(&serveConfig.TempDir, "temp-dir", "", "Directory for spilled file uploads (default os.TempDir())")
	rootCmd.AddCommand(serveCmd)
}

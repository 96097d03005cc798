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
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/packetd/formdecode/common"
	"github.com/packetd/formdecode/form"
	"github.com/packetd/formdecode/internal/bufbytes"
	"github.com/packetd/formdecode/internal/splitio"
	"github.com/packetd/formdecode/internal/zerocopy"
)

type decodeCmdConfig struct {
	Body         string
	ContentType  string
	ChunkSize    int
	Format       string
	Compress     bool
	PreviewLines int
	MaxMemory    int64
	TempDir      string
}

var decodeConfig decodeCmdConfig

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a multipart/form-data body read from a file",
	Example: "# formdecode decode --body req.bin " +
		`--content-type 'multipart/form-data; boundary=ABC'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(decodeConfig.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		if decodeConfig.PreviewLines > 0 {
			previewHeaderLines(body, decodeConfig.PreviewLines)
		}

		header := http.Header{}
		header.Set("Content-Type", decodeConfig.ContentType)

		factory := form.NewDiskFactory(form.DiskFactoryConfig{
			MaxMemory: decodeConfig.MaxMemory,
			TempDir:   decodeConfig.TempDir,
		})
		dec, err := form.New(factory, header, form.EncodingUTF8)
		if err != nil {
			return fmt.Errorf("construct decoder: %w", err)
		}

		chunkSize := decodeConfig.ChunkSize
		if chunkSize <= 0 {
			chunkSize = common.ReadWriteBlockSize
		}
		if len(body) == 0 {
			if err := dec.Offer(nil, true); err != nil {
				return fmt.Errorf("offer: %w", err)
			}
		}
		for offset := 0; offset < len(body); offset += chunkSize {
			end := offset + chunkSize
			if end > len(body) {
				end = len(body)
			}
			isLast := end >= len(body)
			if err := dec.Offer(body[offset:end], isLast); err != nil {
				return fmt.Errorf("offer at byte %d: %w", offset, err)
			}
		}

		var parts []form.Part
		for dec.HasNext() {
			p, err := dec.Next()
			if err != nil {
				return fmt.Errorf("next: %w", err)
			}
			parts = append(parts, p)
		}

		format := form.ExportJSONLines
		if decodeConfig.Format == "binary" {
			format = form.ExportBinary
		}
		return form.WriteParts(os.Stdout, parts, format, decodeConfig.Compress)
	},
}

// previewHeaderLines prints up to n raw lines from the start of body using a
// one-shot, whole-buffer line split (no rollback needed: the entire file is
// already resident, unlike the streaming decode path below it). Each line is
// capped so a pathological single "line" with no terminator for megabytes
// can't flood the terminal.
func previewHeaderLines(body []byte, n int) {
	const maxLinePreview = 256
	const previewWindow = 4096

	zc := zerocopy.NewBuffer(body)
	defer zc.Close()
	window, _ := zc.Read(previewWindow)

	reader := splitio.NewReader(window)
	for i := 0; i < n; i++ {
		line, eof := reader.ReadLine()
		if eof {
			break
		}
		capped := bufbytes.New(maxLinePreview)
		capped.Write(line)
		fmt.Fprintf(os.Stderr, "preview[%d]: %q\n", i, capped.TrimCStringText())
	}
}

func init() {
	decodeCmd.Flags().StringVar(&decodeConfig.Body, "body", "", "Path to the raw request body to decode")
	decodeCmd.Flags().StringVar(&decodeConfig.ContentType, "content-type", "", "Content-Type header value, including boundary=")
	decodeCmd.Flags().IntVar(&decodeConfig.ChunkSize, "chunk-size", common.ReadWriteBlockSize, "Bytes per simulated Offer call")
	decodeCmd.Flags().StringVar(&decodeConfig.Format, "format", "json", "Output format [json|binary]")
	decodeCmd.Flags().BoolVar(&decodeConfig.Compress, "compress", false, "Snappy-compress binary export frames")
	decodeCmd.Flags().IntVar(&decodeConfig.PreviewLines, "preview-lines", 0, "Print the first N raw lines of the body to stderr before decoding")
	decodeCmd.Flags().Int64Var(&decodeConfig.MaxMemory, "max-memory", 1<<20, "Bytes a file upload may hold in memory before spilling to disk")
	decodeCmd.Flags().StringVar(&decodeConfig.TempDir, "temp-dir", "", "Directory for spilled file uploads (default os.TempDir())")
	_ = decodeCmd.MarkFlagRequired("body")
	_ = decodeCmd.MarkFlagRequired("content-type")
	rootCmd.AddCommand(decodeCmd)
}

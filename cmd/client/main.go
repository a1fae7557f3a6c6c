// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command client uploads a file to a fileanalyse server and prints the
// JSON response.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/fawa-io/fileanalyse/pkg/fwlog"
	"github.com/fawa-io/fileanalyse/pkg/sniff"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fwlog.Fatal(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	server := fs.String("server", "http://localhost:3000", "Base URL of the fileanalyse server")
	field := fs.String("field", "upfile", "Multipart field name")
	declared := fs.String("type", "", "Declared MIME type (sniffed from the file when empty)")
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: client [flags] <file>")
	}
	path := fs.Arg(0)

	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if *declared == "" {
		mime, ok := sniff.Sniff(content).MIME()
		if !ok {
			mime = "application/octet-stream"
		}
		*declared = mime
		fwlog.Debugf("declaring %s as %s", path, mime)
	}

	body, contentType, err := encode(*field, filepath.Base(path), *declared, content)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(*server, "/")+"/api/fileanalyse", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fwlog.Errorf("Failed to close response body: %v", err)
		}
	}()

	if id := resp.Header.Get("X-Object-Id"); id != "" {
		fwlog.Infof("stored as %s", id)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload rejected: %s", resp.Status)
	}
	return nil
}

func encode(field, name, declared string, content []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	h.Set("Content-Type", declared)
	w, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := w.Write(content); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

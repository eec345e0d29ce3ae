package refapp

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gatewire/gatewire/pkg/gateway"
)

// handleStatic serves one file from the static directory, with support for
// single-part byte ranges. The file content itself is streamed by the
// server core via a path-based body event, so large files never pass
// through the application.
func (a *App) handleStatic(ctx context.Context, scope gateway.HTTPScope, reqPath string, receive gateway.ReceiveFunc, send gateway.SendFunc) error {
	if scope.Method != "GET" && scope.Method != "HEAD" {
		return respondText(ctx, send, 405, "method not allowed\n")
	}

	rel := strings.TrimPrefix(reqPath, "/static/")
	clean := path.Clean("/" + rel)
	if strings.Contains(clean, "..") {
		return respondText(ctx, send, 400, "bad path\n")
	}
	name := filepath.Join(a.staticDir, filepath.FromSlash(clean))

	info, err := os.Stat(name)
	if err != nil || info.IsDir() {
		return respondText(ctx, send, 404, "not found\n")
	}
	size := info.Size()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	offset, length, status, ok := resolveRange(scope.Headers, size)
	if !ok {
		if err := send(ctx, gateway.HTTPResponseStart{
			Status: 416,
			Headers: gateway.Headers{
				{Name: "content-range", Value: fmt.Sprintf("bytes */%d", size)},
			},
		}); err != nil {
			return err
		}
		return send(ctx, gateway.HTTPResponseBody{})
	}

	headers := gateway.Headers{
		{Name: "content-type", Value: contentType},
		{Name: "accept-ranges", Value: "bytes"},
	}
	if status == 206 {
		headers = append(headers, gateway.Header{
			Name:  "content-range",
			Value: fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, size),
		})
	}

	if err := send(ctx, gateway.HTTPResponseStart{Status: status, Headers: headers}); err != nil {
		return err
	}
	return send(ctx, gateway.HTTPResponseBody{Path: name, Offset: offset, Length: length})
}

// resolveRange interprets a Range request header against the file size,
// returning the byte window, the response status (200 or 206), and whether
// the request is satisfiable. Only single-part "bytes=" ranges are
// honored; anything else falls back to the full file, as the RFC allows.
func resolveRange(headers gateway.Headers, size int64) (offset, length int64, status int, ok bool) {
	raw, present := headers.Get("range")
	if !present {
		return 0, size, 200, true
	}
	spec, isBytes := strings.CutPrefix(raw, "bytes=")
	if !isBytes || strings.Contains(spec, ",") {
		return 0, size, 200, true
	}

	startStr, endStr, dash := strings.Cut(strings.TrimSpace(spec), "-")
	if !dash {
		return 0, size, 200, true
	}

	if startStr == "" {
		// Suffix range: last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, n, 206, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, 0, false
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, 0, false
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return start, end - start + 1, 206, true
}

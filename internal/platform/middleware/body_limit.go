package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const defaultBodyLimit = 1 << 20

// BodyLimit rejects request bodies larger than limit with 413. The limit is
// a human-readable size: "1M", "512K", "1G" or a bare byte count.
//
// Bodies are capped while they are read, so a form or JSON body without a
// Content-Length is caught too. Whatever error the handler makes of the
// truncated read, the client sees 413.
func BodyLimit(limit string) echo.MiddlewareFunc {
	maxBytes := parseLimit(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > maxBytes {
				return payloadTooLarge(c, maxBytes)
			}

			body := &cappedBody{ReadCloser: http.MaxBytesReader(c.Response(), req.Body, maxBytes)}
			req.Body = body

			err := next(c)
			if body.exceeded {
				return payloadTooLarge(c, maxBytes)
			}
			return err
		}
	}
}

// cappedBody remembers whether the wrapped MaxBytesReader hit its limit.
type cappedBody struct {
	io.ReadCloser
	exceeded bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		b.exceeded = true
	}
	return n, err
}

func payloadTooLarge(c echo.Context, limit int64) error {
	return errorResponse(c, http.StatusRequestEntityTooLarge, "too-large",
		fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit))
}

var sizeSuffixes = []struct {
	suffix string
	shift  uint
}{
	{"GB", 30}, {"G", 30},
	{"MB", 20}, {"M", 20},
	{"KB", 10}, {"K", 10},
}

// parseLimit converts "1M", "512K", "1GB" or "1024" to bytes. Empty or
// unparsable input falls back to 1 MB.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	var shift uint
	for _, sz := range sizeSuffixes {
		if strings.HasSuffix(s, sz.suffix) {
			s = strings.TrimSuffix(s, sz.suffix)
			shift = sz.shift
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return defaultBodyLimit
	}
	return n << shift
}

package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	neturl "net/url"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"peterbot/internal/logging"
)

const maxParallelDownloads = 4

// inlineImage is a downloaded image ready to embed in a request.
type inlineImage struct {
	URL      string
	MIMEType string
	Data     []byte
}

// fetchImages downloads urls concurrently and returns them in input order.
// Failed or oversized downloads are logged and skipped.
func fetchImages(ctx context.Context, hc *http.Client, urls []string, maxBytes int64) []inlineImage {
	if len(urls) == 0 {
		return nil
	}

	results := make([]*inlineImage, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDownloads)

	for i, u := range urls {
		g.Go(func() error {
			img, err := fetchImage(gctx, hc, u, maxBytes)
			if err != nil {
				logging.GenerationWarn("skipping image %s: %v", redactURL(u), err)
				return nil
			}
			results[i] = img
			return nil
		})
	}
	_ = g.Wait()

	images := make([]inlineImage, 0, len(urls))
	var total uint64
	for _, img := range results {
		if img != nil {
			images = append(images, *img)
			total += uint64(len(img.Data))
		}
	}
	logging.GenerationDebug("fetched %d/%d images (%s)", len(images), len(urls), humanize.Bytes(total))
	return images
}

func fetchImage(ctx context.Context, hc *http.Client, url string, maxBytes int64) (*inlineImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		// *url.Error repeats the full URL, which may carry credentials.
		var ue *neturl.Error
		if errors.As(err, &ue) {
			return nil, ue.Err
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("%s exceeds limit of %s",
			humanize.Bytes(uint64(resp.ContentLength)), humanize.Bytes(uint64(maxBytes)))
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("body exceeds limit of %s", humanize.Bytes(uint64(maxBytes)))
	}

	return &inlineImage{
		URL:      url,
		MIMEType: imageMIMEType(resp.Header.Get("Content-Type")),
		Data:     data,
	}, nil
}

// imageMIMEType normalizes a Content-Type header, defaulting to image/jpeg.
func imageMIMEType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return "image/jpeg"
	}
	return mt
}

// redactURL shortens u to host and file name for logs. Telegram file URLs
// embed the bot token in the path.
func redactURL(u string) string {
	parsed, err := neturl.Parse(u)
	if err != nil || parsed.Host == "" {
		return "<invalid url>"
	}
	return parsed.Scheme + "://" + parsed.Host + "/.../" + path.Base(parsed.Path)
}

// flashctl is the host-side counterpart to restadapter: a CLI that
// drives a running cmd/trickler image's firmware-update REST verbs over
// the network. It uses babyapi.Client purely for its generic, non-CRUD
// MakeGenericRequest path, since none of start/write/finalize/activate/
// rollback/status is a GetID()-shaped resource.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/calvinmclean/babyapi"

	"github.com/opentrickler/trickler-core/updater"
)

// nilResource satisfies babyapi.Client's type parameter without standing
// in for any real CRUD resource; flashctl never calls Post/Patch/Get on
// the typed client, only MakeGenericRequest.
type nilResource struct {
	// include NilResource so we don't implement Render/Bind which are not needed
	*babyapi.NilResource
}

func (nilResource) GetID() string { return "" }

type flashClient struct {
	base   string
	client *babyapi.Client[*nilResource]
	http   *http.Client
}

func newFlashClient(addr string) *flashClient {
	return &flashClient{
		base:   addr,
		client: babyapi.NewClient[*nilResource](addr, "/"),
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *flashClient) post(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.MakeGenericRequest(req, out)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	if resp.Response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.Response.StatusCode)
	}
	return nil
}

func (c *flashClient) status(ctx context.Context) (updater.Status, error) {
	var status updater.Status
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/status", nil)
	if err != nil {
		return status, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&status)
	return status, err
}

func main() {
	addr := flag.String("addr", "http://trickler.local", "base URL of the running image's REST adapter")
	cmd := flag.String("cmd", "status", "start|write|finalize|activate|rollback|status")
	file := flag.String("file", "", "firmware image path, for write")
	version := flag.String("version", "", "firmware version string, for start")
	crc := flag.Uint("crc32", 0, "expected CRC32, for finalize")
	flag.Parse()

	ctx := context.Background()
	c := newFlashClient(*addr)

	var err error
	switch *cmd {
	case "start":
		data, rerr := os.ReadFile(*file)
		if rerr != nil {
			fmt.Fprintln(os.Stderr, rerr)
			os.Exit(1)
		}
		err = c.post(ctx, "/start", map[string]any{"size": len(data), "version": *version}, nil)
	case "write":
		data, rerr := os.ReadFile(*file)
		if rerr != nil {
			fmt.Fprintln(os.Stderr, rerr)
			os.Exit(1)
		}
		err = writeChunks(ctx, c, data)
	case "finalize":
		err = c.post(ctx, "/finalize", map[string]any{"crc32": uint32(*crc)}, nil)
	case "activate":
		err = c.post(ctx, "/activate", nil, nil)
	case "rollback":
		err = c.post(ctx, "/rollback", nil, nil)
	case "status":
		status, serr := c.status(ctx)
		if serr != nil {
			err = serr
			break
		}
		fmt.Printf("%+v\n", status)
	default:
		fmt.Fprintf(os.Stderr, "unknown -cmd %q\n", *cmd)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const writeChunkSize = 4096

func writeChunks(ctx context.Context, c *flashClient, data []byte) error {
	for off := 0; off < len(data); off += writeChunkSize {
		end := off + writeChunkSize
		if end > len(data) {
			end = len(data)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/write", bytes.NewReader(data[off:end]))
		if err != nil {
			return err
		}
		if _, err := c.client.MakeGenericRequest(req, nil); err != nil {
			return fmt.Errorf("write chunk at %d: %w", off, err)
		}
	}
	return nil
}

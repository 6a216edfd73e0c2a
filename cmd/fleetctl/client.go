package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"fleetd/pkg/types"
)

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *client) do(method, path string, body any) ([]byte, int, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, c.base+path, rdr)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// command posts to a lifecycle endpoint and renders the CommandResult.
// A failed command exits non-zero but still prints the structured detail.
func (c *client) command(w io.Writer, path string, body any) error {
	data, code, err := c.do(http.MethodPost, path, body)
	if err != nil {
		return err
	}
	var res types.CommandResult
	if err := json.Unmarshal(data, &res); err != nil {
		return apiError(code, data)
	}
	if res.State != nil {
		fmt.Fprintf(w, "%s: %s\n", res.State.ID, res.State.Status)
	}
	if res.Success {
		if res.Message != "" {
			fmt.Fprintln(w, res.Message)
		}
		return nil
	}
	if res.Code != "" {
		return fmt.Errorf("%s: %s", res.Code, res.Message)
	}
	return fmt.Errorf("command failed (http %d): %s", code, res.Message)
}

// postJSON posts and pretty-prints whatever JSON comes back.
func (c *client) postJSON(w io.Writer, path string, body any) error {
	data, code, err := c.do(http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if code < 200 || code >= 300 {
		return apiError(code, data)
	}
	return prettyPrint(w, data)
}

func (c *client) getJSON(w io.Writer, path string) error {
	data, code, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if code < 200 || code >= 300 {
		return apiError(code, data)
	}
	return prettyPrint(w, data)
}

// printFleetStatus renders GET /services as an aligned table plus a GPU
// summary line, the shape operators eyeball most often.
func (c *client) printFleetStatus(w io.Writer) error {
	data, code, err := c.do(http.MethodGet, "/services", nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return apiError(code, data)
	}
	var st types.FleetStatusResponse
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	ids := make([]string, 0, len(st.Services))
	for id := range st.Services {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(w, "%-16s %-10s %-8s %-8s %s\n", "SERVICE", "STATUS", "HEALTHY", "GPU", "ENDPOINT")
	for _, id := range ids {
		s := st.Services[id]
		gpuMark := "-"
		if s.GPUIntensive {
			gpuMark = "yes"
		}
		healthy := "-"
		if s.Status == "running" {
			healthy = fmt.Sprintf("%t", s.Healthy)
		}
		fmt.Fprintf(w, "%-16s %-10s %-8s %-8s %s\n", s.ID, s.Status, healthy, gpuMark, s.Endpoint)
	}

	fmt.Fprintf(w, "\ngpu slots: %d/%d", st.GPUActive, st.GPULimit)
	if st.GPU != nil {
		fmt.Fprintf(w, "  vram: %d/%d MB used  util: %d%%",
			st.GPU.UsedMB, st.GPU.TotalMB, st.GPU.UtilizationPct)
	}
	fmt.Fprintf(w, "\nuptime: %s  starts: %d  stops: %d  idle stops: %d  rejections: %d\n",
		(time.Duration(st.UptimeSeconds) * time.Second).String(),
		st.StartsTotal, st.StopsTotal, st.IdleStopsTotal, st.RejectionsTotal)
	return nil
}

func apiError(code int, body []byte) error {
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return fmt.Errorf("http %d: %s", code, er.Error)
	}
	return fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))
}

func prettyPrint(w io.Writer, data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, werr := w.Write(data)
		return werr
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
